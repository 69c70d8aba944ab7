package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio"
	"github.com/mbi-div-b/daqdio/drivers"
)

var (
	Version string
	Build   string
)

func main() {
	log.Info("daqdio started")
	log.Info("mock instance for testing puproses, should work on MacOs")

	syncDuration := 250 * time.Millisecond
	log.Info("sync interval", "duration", syncDuration)

	dd := daqdio.New()
	dd.Name = "mock"
	dd.PortA = int(daqdio.ModeInput)
	dd.PortB = int(daqdio.ModeOutput)
	dd.PortC = int(daqdio.ModeOutput)
	dd.HkPin = "88008800"
	dd.HkDirectory = "./mock_homekit"
	dd.HttpAddr = "localhost:8080"
	dd.FakeDriver = &drivers.MockDio{}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, dd, syncDuration)
	if err != nil {
		log.Fatal("mock stopped", "err", err)
	}
}

func run(ctx context.Context, dd *daqdio.DaqDio, syncDuration time.Duration) (err error) {
	defer dd.Close()

	err = dd.InitDriver(ctx)
	if err != nil {
		return errors.Wrap(err, "driver init failed")
	}
	err = dd.InitChannels()
	if err != nil {
		return errors.Wrap(err, "channel init failed")
	}

	dd.FakeDriver.MonitorStateChanges(os.Stdout)
	dd.PrintChannelStatus(os.Stdout)

	err = dd.StartHttp()
	if err != nil {
		log.Error("http server not started", "err", err)
	}

	log.Info("starting mock with HomeKit service")
	go dd.StartTicker(ctx, syncDuration)
	err = dd.StartHomeKit(ctx, "mock: "+Version)
	if err != nil {
		log.Error("HomeKit server stopped", "err", err)
	}
	return nil
}
