package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio"
)

const defaultSyncInterval = "250ms"

var (
	Version string
	Build   string

	config       = flag.String("config", "config.json", "path of the configuration file")
	flagInstall  = flag.Bool("install", false, "Install service in os")
	syncInterval = flag.String("sync", defaultSyncInterval, "input sync interval (time.Duration)")
	logLevel     = flag.String("log-level", "", "overrides LogLevel from the config file (debug, info, warn, error)")

	daqService = servicemaker.ServiceMaker{
		User:               "daqdio",
		UserGroups:         []string{"gpio", "i2c"},
		ServicePath:        "/etc/systemd/system/daqdio.service",
		ServiceDescription: "daqdio service: digital io device server with http, mqtt and HomeKit access. github.com/mbi-div-b/daqdio",
		ExecDir:            "/srv/daqdio",
		ExecName:           "daqdio",
	}
)

func main() {
	log.Info("daqdio started", "version", Version, "build", Build)
	flag.Parse()

	if *flagInstall {
		err := daqService.InstallService()
		if err != nil {
			log.Fatal("service install failed", "err", err)
		}
		log.Info("service installed!")
		return
	}

	syncDuration, err := time.ParseDuration(*syncInterval)
	if err != nil {
		log.Fatal("invalid sync interval", "err", err)
	}

	dd, err := daqdio.LoadConfig(*config)
	if err != nil {
		log.Fatal("can't load config, will terminate", "err", err)
	}

	level := dd.LogLevel
	if len(*logLevel) > 0 {
		level = *logLevel
	}
	if len(level) > 0 {
		err = daqdio.SetLogLevel(level)
		if err != nil {
			log.Fatal("invalid log level", "err", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = run(ctx, dd, syncDuration)
	if err != nil {
		log.Fatal("daqdio stopped", "status", dd.Status(), "err", err)
	}
	log.Info("daqdio stopping")
}

// run brings the device up and serves it until ctx is done. The device is
// always closed before run returns.
func run(ctx context.Context, dd *daqdio.DaqDio, syncDuration time.Duration) (err error) {
	defer func() {
		closeErr := dd.Close()
		if closeErr != nil {
			log.Error("close failed", "err", closeErr)
		}
	}()

	log.Info("will init daqdio driver...")
	err = dd.InitDriver(ctx)
	if err != nil {
		dd.PrintChannelStatus(os.Stdout)
		return errors.Wrap(err, "driver init failed")
	}

	log.Info("will init daqdio channels...")
	err = dd.InitChannels()
	if err != nil {
		dd.PrintChannelStatus(os.Stdout)
		return errors.Wrap(err, "channel init failed")
	}

	dd.PrintChannelStatus(os.Stdout)

	if len(dd.HttpAddr) > 0 {
		err = dd.StartHttp()
		if err != nil {
			log.Error("http server not started, we will proceed...", "err", err)
		}
	}

	if len(dd.MqttBroker) > 0 {
		err = dd.InitMqtt()
		if err != nil {
			log.Error("mqtt not connected, we will proceed...", "err", err)
		}
	}

	if dd.Influx != nil {
		err = dd.InitInflux()
		if err != nil {
			log.Error("influx recorder disabled", "err", err)
		}
	}

	if len(dd.HkPin) == 8 {
		log.Info("Starting with HomeKit server")

		go dd.StartTicker(ctx, syncDuration)
		err = dd.StartHomeKit(ctx, Version)
		if err != nil {
			log.Error("HomeKit server stopped", "err", err)
		}
	} else {
		log.Info("HomeKit not configured, disabled")
		dd.StartTicker(ctx, syncDuration)
	}

	return nil
}
