package daqdio

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mbi-div-b/daqdio/drivers"
	"github.com/mbi-div-b/daqdio/register"
)

// PortsConfig holds the raw device properties: one mode per port (0 disabled,
// 1 input, 2 output), the counter switch and the descriptor to connect to.
type PortsConfig struct {
	PortA           int
	PortB           int
	PortC           int
	CounterEnable   bool
	DescriptorIndex int

	// UnknownModeAsDisabled keeps the old behaviour of disabling a port with
	// an unknown mode instead of refusing the configuration.
	UnknownModeAsDisabled bool
}

func (pc PortsConfig) raw(port PortName) int {
	switch port {
	case PortA:
		return pc.PortA
	case PortB:
		return pc.PortB
	case PortC:
		return pc.PortC
	}
	return int(ModeDisabled)
}

type portState struct {
	name PortName
	id   drivers.PortId
	mode PortMode

	// last commanded level of every line, only used on output ports
	shadow [register.Width]bool
	lock   sync.RWMutex
}

// DioController is the only user of the driver once the device is
// connected. It turns channel reads and writes into whole port register
// operations.
type DioController struct {
	driver drivers.DioDriver
	logger *log.Logger

	table *ChannelTable
	ports map[PortName]*portState
	lock  sync.RWMutex
}

func NewDioController(driver drivers.DioDriver, logger *log.Logger) *DioController {
	if logger == nil {
		logger = newLogger("DioController")
	}
	return &DioController{driver: driver, logger: logger}
}

func (c *DioController) checkDevice(index int) error {
	if c.driver == nil {
		return &ConfigurationError{Field: "device", Reason: "no dio driver set"}
	}

	descriptors := c.driver.Descriptors()
	if len(descriptors) == 0 {
		return &ConfigurationError{Field: "device", Reason: "no DAQ devices found"}
	}
	if index < 0 || index >= len(descriptors) {
		return &ConfigurationError{
			Field:  "descriptor index",
			Reason: fmt.Sprintf("%d out of range, %d device(s) found", index, len(descriptors)),
		}
	}
	if !c.driver.IsReady() {
		return &ConfigurationError{Field: "device", Reason: fmt.Sprintf("%s is not connected", descriptors[index])}
	}
	return nil
}

func (c *DioController) resolveMode(port PortName, cfg PortsConfig) (PortMode, error) {
	if !cfg.UnknownModeAsDisabled {
		return ResolvePortMode(port, cfg.raw(port))
	}

	mode, fellBack := ResolvePortModeLegacy(port, cfg.raw(port))
	if fellBack {
		c.logger.Warn("unknown port mode, port disabled", "port", port, "mode", cfg.raw(port))
	}
	return mode, nil
}

// ApplyConfiguration resolves the port modes, builds the channel table and
// sets the port directions on the device. On error nothing is exposed and the
// controller stays unconfigured.
func (c *DioController) ApplyConfiguration(cfg PortsConfig) (*ChannelTable, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.table != nil {
		return nil, ErrAlreadyConfigured
	}

	err := c.checkDevice(cfg.DescriptorIndex)
	if err != nil {
		return nil, err
	}

	ids := c.driver.PortIds()
	table := NewChannelTable()
	ports := make(map[PortName]*portState)

	for i, name := range Ports {
		mode, err := c.resolveMode(name, cfg)
		if err != nil {
			return nil, err
		}
		if mode == ModeDisabled {
			c.logger.Info(fmt.Sprintf("Port %s not configured", name))
			continue
		}
		if i >= len(ids) {
			return nil, &ConfigurationError{
				Field:  fmt.Sprintf("port %s", name),
				Reason: fmt.Sprintf("%s driver has no such port", c.driver),
			}
		}

		for _, ch := range BuildChannels(name, mode) {
			err = table.Register(ch)
			if err != nil {
				return nil, err
			}
			c.logger.Debug(fmt.Sprintf("Initialized %s %s", mode, ch.Name))
		}
		ports[name] = &portState{name: name, id: ids[i], mode: mode}
	}

	if cfg.CounterEnable {
		err = table.Register(counterChannel())
		if err != nil {
			return nil, err
		}
		c.logger.Info("Initialized CTR")
	}

	if table.Len() == 0 {
		c.logger.Warn("No ports are selected.")
	}

	for _, name := range Ports {
		ps, enabled := ports[name]
		if !enabled {
			continue
		}
		dir, _ := ps.mode.Direction()
		err = c.driver.ConfigurePort(ps.id, dir)
		if err != nil {
			return nil, &PortError{Port: name, Op: "configure", Err: err}
		}
		c.logger.Info(fmt.Sprintf("%s configured as %s", name, ps.mode))
	}

	c.table = table
	c.ports = ports
	return table, nil
}

func (c *DioController) resolve(name string) (ch Channel, ps *portState, err error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.table == nil {
		err = ErrNotConfigured
		return
	}
	ch, err = c.table.Lookup(name)
	if err != nil {
		return
	}
	ps = c.ports[ch.Port]
	return
}

func (c *DioController) Lookup(name string) (Channel, error) {
	ch, _, err := c.resolve(name)
	return ch, err
}

// Channels returns the configured channels in table order, nil before
// ApplyConfiguration succeeded.
func (c *DioController) Channels() []Channel {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.table == nil {
		return nil
	}
	return c.table.All()
}

func (c *DioController) Mode(port PortName) PortMode {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if ps, found := c.ports[port]; found {
		return ps.mode
	}
	return ModeDisabled
}

// ReadChannel reads the whole register of the channel's port and returns the
// channel's line. Every call goes to the device.
func (c *DioController) ReadChannel(name string) (bool, error) {
	ch, ps, err := c.resolve(name)
	if err != nil {
		return false, err
	}
	if ch.Access != AccessRead {
		return false, &DirectionError{Name: name, Access: ch.Access, Op: "read"}
	}
	if ch.IsCounter() {
		return false, ErrNotImplemented
	}

	ps.lock.RLock()
	defer ps.lock.RUnlock()

	value, err := c.driver.ReadPort(ps.id)
	if err != nil {
		return false, &PortError{Port: ps.name, Channel: name, Op: "read", Err: err}
	}
	return register.Decode(value)[ch.Bit], nil
}

// WriteChannel sets one output line. The device only takes whole registers,
// so the other 7 lines are written with their last commanded level.
func (c *DioController) WriteChannel(name string, value bool) error {
	ch, ps, err := c.resolve(name)
	if err != nil {
		return err
	}
	if ch.Access != AccessWrite {
		return &DirectionError{Name: name, Access: ch.Access, Op: "write"}
	}

	ps.lock.Lock()
	defer ps.lock.Unlock()

	pending := ps.shadow
	pending[ch.Bit] = value

	err = c.driver.WritePort(ps.id, register.Encode(pending))
	if err != nil {
		return &PortError{Port: ps.name, Channel: name, Op: "write", Err: err}
	}
	ps.shadow = pending
	return nil
}

func (c *DioController) ReadCounter() (bool, error) {
	_, _, err := c.resolve(string(PortCounter))
	if err != nil {
		return false, err
	}
	return false, ErrNotImplemented
}

// Shadow returns the last register written to an output port.
func (c *DioController) Shadow(port PortName) (value uint8, ok bool) {
	c.lock.RLock()
	ps, found := c.ports[port]
	c.lock.RUnlock()
	if !found || ps.mode != ModeOutput {
		return
	}

	ps.lock.RLock()
	defer ps.lock.RUnlock()

	return register.Encode(ps.shadow), true
}

func (c *DioController) portStates(mode PortMode) (states []*portState) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	for _, name := range Ports {
		if ps, found := c.ports[name]; found && ps.mode == mode {
			states = append(states, ps)
		}
	}
	return
}

// Snapshot reads every input port once and returns the level of each input
// channel by name.
func (c *DioController) Snapshot() (map[string]bool, error) {
	if c.Channels() == nil {
		return nil, ErrNotConfigured
	}

	snapshot := make(map[string]bool)
	for _, ps := range c.portStates(ModeInput) {
		ps.lock.RLock()
		value, err := c.driver.ReadPort(ps.id)
		ps.lock.RUnlock()
		if err != nil {
			return nil, &PortError{Port: ps.name, Op: "read", Err: err}
		}

		for bit, state := range register.Decode(value) {
			snapshot[fmt.Sprintf("%s%d", ps.name, bit)] = state
		}
	}
	return snapshot, nil
}

// ReleaseOutputs drives every output port low. The first error is returned,
// the remaining ports are still released.
func (c *DioController) ReleaseOutputs() (err error) {
	for _, ps := range c.portStates(ModeOutput) {
		ps.lock.Lock()
		writeErr := c.driver.WritePort(ps.id, 0)
		if writeErr == nil {
			ps.shadow = [register.Width]bool{}
		} else if err == nil {
			err = &PortError{Port: ps.name, Op: "release", Err: writeErr}
		}
		ps.lock.Unlock()
	}
	return
}
