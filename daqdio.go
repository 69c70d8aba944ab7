package daqdio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio/drivers"
	"github.com/mbi-div-b/daqdio/mqtt"
)

const defaultDeviceName = "daqdio"

type State string

const (
	StateInit  State = "INIT"
	StateOn    State = "ON"
	StateAlarm State = "ALARM"
)

// DaqDio is a single digital io device together with everything publishing
// its channels. It is filled from the json config file.
type DaqDio struct {
	Name string

	PortsConfig

	LogLevel string

	HkPin       string
	HkDirectory string
	HkAddress   string
	HkDebug     bool

	HttpAddr  string
	HttpToken string

	MqttBroker string

	Influx *InfluxRecorder

	Mcp23017   *drivers.McpDio
	Gpio       *drivers.GpioDio
	FakeDriver *drivers.MockDio

	driver     drivers.DioDriver
	controller *DioController
	mqttClient *mqtt.MqttClient
	httpServer *HttpServer
	logger     *log.Logger

	// guarded by stateLock, set once the HomeKit server starts
	hk *homeKitBridge

	state     State
	status    string
	stateLock sync.RWMutex
}

// New returns a device with the default properties:
// every port an input, counter enabled, first discovered device.
func New() *DaqDio {
	return &DaqDio{
		Name: defaultDeviceName,
		PortsConfig: PortsConfig{
			PortA:         int(ModeInput),
			PortB:         int(ModeInput),
			PortC:         int(ModeInput),
			CounterEnable: true,
		},
		state: StateInit,
	}
}

func LoadConfig(path string) (*DaqDio, error) {
	configFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open config file (%s)", path)
	}
	defer configFile.Close()

	return ReadConfig(configFile)
}

func ReadConfig(reader io.Reader) (*DaqDio, error) {
	dd := New()

	cBuff, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading config")
	}

	err = json.Unmarshal(cBuff, dd)
	if err != nil {
		return nil, errors.Wrap(err, "failed unmarshalling json config")
	}

	if len(dd.Name) == 0 {
		dd.Name = defaultDeviceName
	}

	return dd, nil
}

func (dd *DaqDio) getLogger() *log.Logger {
	if dd.logger == nil {
		dd.logger = newLogger(dd.Name)
	}
	return dd.logger
}

func (dd *DaqDio) setState(state State, status string) {
	dd.stateLock.Lock()
	defer dd.stateLock.Unlock()

	dd.state = state
	dd.status = status
}

func (dd *DaqDio) State() State {
	dd.stateLock.RLock()
	defer dd.stateLock.RUnlock()

	if len(dd.state) == 0 {
		return StateInit
	}
	return dd.state
}

func (dd *DaqDio) Status() string {
	dd.stateLock.RLock()
	defer dd.stateLock.RUnlock()

	return dd.status
}

func (dd *DaqDio) selectDriver() (drivers.DioDriver, error) {
	selected := []drivers.DioDriver{}

	if dd.Gpio != nil {
		selected = append(selected, dd.Gpio)
	}
	if dd.Mcp23017 != nil {
		selected = append(selected, dd.Mcp23017)
	}
	if dd.FakeDriver != nil {
		selected = append(selected, dd.FakeDriver)
	}

	switch len(selected) {
	case 0:
		return nil, &ConfigurationError{Field: "driver", Reason: "no dio driver configured"}
	case 1:
		return selected[0], nil
	}

	names := []string{}
	for _, driver := range selected {
		names = append(names, driver.String())
	}
	return nil, &ConfigurationError{Field: "driver", Reason: fmt.Sprintf("only one dio driver allowed, got %v", names)}
}

// InitDriver discovers devices with the configured driver and connects to
// the one at DescriptorIndex.
func (dd *DaqDio) InitDriver(ctx context.Context) (err error) {
	logger := dd.getLogger()
	dd.setState(StateInit, "")

	defer func() {
		if err != nil {
			dd.setState(StateAlarm, fmt.Sprintf("Error: %v", err))
		}
	}()

	dd.driver, err = dd.selectDriver()
	if err != nil {
		return
	}

	err = dd.driver.Setup(ctx)
	if err != nil {
		err = errors.Wrapf(err, "failed to setup %s driver", dd.driver)
		return
	}

	descriptors := dd.driver.Descriptors()
	if len(descriptors) == 0 {
		err = errors.New("No DAQ devices found")
		return
	}
	if dd.DescriptorIndex < 0 || dd.DescriptorIndex >= len(descriptors) {
		err = &ConfigurationError{
			Field:  "descriptor index",
			Reason: fmt.Sprintf("%d out of range, %d device(s) found", dd.DescriptorIndex, len(descriptors)),
		}
		return
	}
	if len(dd.driver.PortIds()) == 0 {
		err = errors.New("The DAQ device does not support digital input")
		return
	}

	err = dd.driver.Connect(dd.DescriptorIndex)
	if err != nil {
		err = errors.Wrapf(err, "failed to connect to %s", descriptors[dd.DescriptorIndex])
		return
	}

	dd.setState(StateOn, "")
	logger.Info(fmt.Sprintf("Establish a connection to the DAQ device %s", descriptors[dd.DescriptorIndex]))
	return
}

// InitChannels applies the port configuration to the connected device.
func (dd *DaqDio) InitChannels() error {
	if dd.driver == nil {
		return errors.New("driver not initialised")
	}

	dd.getLogger().Info("Init dynamic attribute")
	dd.controller = NewDioController(dd.driver, newLogger(dd.Name+" dio"))
	_, err := dd.controller.ApplyConfiguration(dd.PortsConfig)
	if err != nil {
		dd.setState(StateAlarm, fmt.Sprintf("Error: %v", err))
		return errors.Wrap(err, "failed to apply port configuration")
	}

	return nil
}

func (dd *DaqDio) Controller() *DioController {
	return dd.controller
}

func (dd *DaqDio) PrintChannelStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "=== %s [%s] ===\n", dd.Name, dd.State())
	if dd.controller == nil {
		fmt.Fprintln(writer, "| no channels configured")
		fmt.Fprintln(writer, "-----------------------------")
		return
	}

	fmt.Fprintf(writer, "| driver: %s\n", dd.driver)
	for _, port := range Ports {
		fmt.Fprintf(writer, "| port %s: %s", port, dd.controller.Mode(port))
		if shadow, ok := dd.controller.Shadow(port); ok {
			fmt.Fprintf(writer, " (register %08b)", shadow)
		}
		fmt.Fprintln(writer)
	}
	fmt.Fprintf(writer, "| channels: ")
	for _, ch := range dd.controller.Channels() {
		fmt.Fprintf(writer, "%s(%s), ", ch.Name, ch.Access)
	}
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}

// outputLevels returns the last commanded register of every output port.
func (dd *DaqDio) outputLevels() map[PortName]uint8 {
	outputs := make(map[PortName]uint8)
	for _, port := range Ports {
		if shadow, ok := dd.controller.Shadow(port); ok {
			outputs[port] = shadow
		}
	}
	return outputs
}

// Sync reads all inputs once and hands them to every running publisher.
func (dd *DaqDio) Sync(ctx context.Context) error {
	if dd.controller == nil {
		return ErrNotConfigured
	}

	snapshot, err := dd.controller.Snapshot()
	if err != nil {
		return errors.Wrap(err, "failed to read inputs")
	}

	outputs := dd.outputLevels()

	dd.stateLock.RLock()
	hk := dd.hk
	dd.stateLock.RUnlock()
	if hk != nil {
		hk.sync(snapshot, outputs)
	}

	if dd.mqttClient != nil {
		err = publishInputs(dd.mqttClient, dd.topicPrefix(), snapshot)
		if err != nil {
			return errors.Wrap(err, "failed to publish inputs")
		}
	}

	if dd.Influx != nil && dd.Influx.IsReady() {
		err = dd.Influx.Record(ctx, snapshot, outputs, time.Now())
		if err != nil {
			return errors.Wrap(err, "failed to record inputs")
		}
	}

	return nil
}

func (dd *DaqDio) StartTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := dd.Sync(ctx)
			if err != nil {
				dd.getLogger().Error("sync failed", "err", err)
			}
		}
	}
}

func (dd *DaqDio) StartHttp() error {
	if dd.controller == nil {
		return ErrNotConfigured
	}
	if len(dd.HttpAddr) == 0 {
		return errors.New("http address not set")
	}

	dd.httpServer = NewHttpServer(dd.HttpAddr, dd.HttpToken, dd.controller, dd)
	return dd.httpServer.Start()
}

func (dd *DaqDio) InitInflux() error {
	if dd.Influx == nil {
		return errors.New("influx not configured")
	}

	return dd.Influx.Setup(dd.Name)
}

// Close stops the remote surfaces first, so no write lands after the
// outputs are released, then drives outputs low and closes the driver.
func (dd *DaqDio) Close() (err error) {
	if dd.httpServer != nil {
		httpErr := dd.httpServer.Close()
		if httpErr != nil {
			err = errors.Wrap(httpErr, "failed to close http server")
		}
	}

	if dd.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		mqttErr := dd.mqttClient.Disconnect(ctx)
		if mqttErr != nil && err == nil {
			err = errors.Wrap(mqttErr, "failed to disconnect mqtt")
		}
	}

	if dd.controller != nil {
		releaseErr := dd.controller.ReleaseOutputs()
		if releaseErr != nil && err == nil {
			err = errors.Wrap(releaseErr, "failed to release outputs")
		}
	}

	if dd.Influx != nil {
		dd.Influx.Close()
	}

	if dd.driver != nil {
		closeErr := dd.driver.Close()
		if closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close %s driver", dd.driver)
		}
	}

	return
}
