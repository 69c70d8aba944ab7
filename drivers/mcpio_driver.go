package drivers

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"

	"github.com/mbi-div-b/daqdio/register"
)

const mcpioDriverName = "mcpio"
const mcpBaseAddress = 0x20

// McpDio maps ports A and B onto GPA0-7 and GPB0-7 of one MCP23017. Port C is
// served by GPA0-7 of a second expander when PortCDevNo is set.
type McpDio struct {
	BusNo         uint8
	DevNo         uint8
	PortCDevNo    *uint8
	InvertInputs  bool
	InvertOutputs bool

	device  *mcp23017.Device
	deviceC *mcp23017.Device
	isReady bool
}

type mcpPort struct {
	device    *mcp23017.Device
	pinOffset uint8
}

func (mcp *McpDio) Setup(ctx context.Context) (err error) {
	if mcp.PortCDevNo != nil && *mcp.PortCDevNo == mcp.DevNo {
		return errors.Errorf("mcp23017 port C device (%d) must differ from ports A/B device", *mcp.PortCDevNo)
	}

	mcp.device, err = mcp23017.Open(mcp.BusNo, mcp.DevNo)
	if err != nil {
		mcp.device = nil
		return errors.Wrapf(err, "failed to open mcp23017 (bus %d, dev %d)", mcp.BusNo, mcp.DevNo)
	}

	if mcp.PortCDevNo != nil {
		mcp.deviceC, err = mcp23017.Open(mcp.BusNo, *mcp.PortCDevNo)
		if err != nil {
			mcp.deviceC = nil
			mcp.device.Close()
			mcp.device = nil
			return errors.Wrapf(err, "failed to open mcp23017 for port C (bus %d, dev %d)", mcp.BusNo, *mcp.PortCDevNo)
		}
	}

	return nil
}

func (mcp *McpDio) Descriptors() []Descriptor {
	if mcp.device == nil {
		return nil
	}
	return []Descriptor{{
		ProductName: "MCP23017",
		UniqueId:    fmt.Sprintf("i2c-%d@0x%02x", mcp.BusNo, mcpBaseAddress+mcp.DevNo),
		DevString:   fmt.Sprintf("MCP23017 on /dev/i2c-%d at 0x%02x", mcp.BusNo, mcpBaseAddress+mcp.DevNo),
	}}
}

func (mcp *McpDio) Connect(descriptorIndex int) error {
	if mcp.device == nil {
		return errors.New("mcpio driver not set up")
	}
	if descriptorIndex != 0 {
		return errors.Errorf("mcpio descriptor index %d out of range", descriptorIndex)
	}
	mcp.isReady = true
	return nil
}

func (mcp *McpDio) String() string {
	return mcpioDriverName
}

func (mcp *McpDio) IsReady() bool {
	return mcp.isReady
}

func (mcp *McpDio) Close() (err error) {
	mcp.isReady = false
	if mcp.deviceC != nil {
		err = mcp.deviceC.Close()
	}
	if mcp.device != nil {
		closeErr := mcp.device.Close()
		if closeErr != nil {
			err = closeErr
		}
	}
	return
}

func (mcp *McpDio) PortIds() []PortId {
	if mcp.PortCDevNo != nil {
		return []PortId{0, 1, 2}
	}
	return []PortId{0, 1}
}

func (mcp *McpDio) port(port PortId) (mp mcpPort, err error) {
	switch port {
	case 0:
		mp = mcpPort{device: mcp.device, pinOffset: 0}
	case 1:
		mp = mcpPort{device: mcp.device, pinOffset: 8}
	case 2:
		mp = mcpPort{device: mcp.deviceC, pinOffset: 0}
	}
	if mp.device == nil {
		err = errors.Errorf("mcpio port %d not available", port)
	}
	return
}

func (mcp *McpDio) ConfigurePort(port PortId, direction Direction) error {
	mp, err := mcp.port(port)
	if err != nil {
		return err
	}

	for i := uint8(0); i < register.Width; i++ {
		pin := mp.pinOffset + i
		switch direction {
		case DirectionInput:
			err = mp.device.PinMode(pin, mcp23017.INPUT)
			if err == nil {
				err = mp.device.SetPullUp(pin, true)
			}
		case DirectionOutput:
			err = mp.device.PinMode(pin, mcp23017.OUTPUT)
		default:
			err = errors.Errorf("unsupported %s", direction)
		}
		if err != nil {
			return errors.Wrapf(err, "mcpio port %d pin %d", port, pin)
		}
	}
	return nil
}

func (mcp *McpDio) ReadPort(port PortId) (uint8, error) {
	mp, err := mcp.port(port)
	if err != nil {
		return 0, err
	}

	var lines [register.Width]bool
	for i := uint8(0); i < register.Width; i++ {
		level, err := mp.device.DigitalRead(mp.pinOffset + i)
		if err != nil {
			return 0, errors.Wrapf(err, "mcpio port %d pin %d", port, mp.pinOffset+i)
		}
		lines[i] = bool(level) != mcp.InvertInputs
	}
	return register.Encode(lines), nil
}

func (mcp *McpDio) WritePort(port PortId, value uint8) error {
	mp, err := mcp.port(port)
	if err != nil {
		return err
	}

	for i, state := range register.Decode(value) {
		pin := mp.pinOffset + uint8(i)
		err = mp.device.DigitalWrite(pin, mcp23017.PinLevel(state != mcp.InvertOutputs))
		if err != nil {
			return errors.Wrapf(err, "mcpio port %d pin %d", port, pin)
		}
	}
	return nil
}
