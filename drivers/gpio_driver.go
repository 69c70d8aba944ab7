package drivers

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/mbi-div-b/daqdio/register"
)

const gpioDriverName = "gpio"

// GpioDio builds up to three ports out of Raspberry Pi GPIO lines. Each port
// lists its 8 BCM pin numbers, line 0 first.
type GpioDio struct {
	PortA []uint8
	PortB []uint8
	PortC []uint8

	InvertInputs  bool
	InvertOutputs bool

	isOpen  bool
	isReady bool
}

func (gp *GpioDio) ports() [][]uint8 {
	return [][]uint8{gp.PortA, gp.PortB, gp.PortC}
}

func (gp *GpioDio) checkPins() error {
	used := make(map[uint8]int)
	for portNo, pins := range gp.ports() {
		if len(pins) == 0 {
			continue
		}
		if len(pins) != register.Width {
			return errors.Errorf("gpio port %d needs %d pins, got %d", portNo, register.Width, len(pins))
		}
		for _, pin := range pins {
			if pin > 27 {
				return errors.Errorf("gpio pin %d out of range (BCM 0-27)", pin)
			}
			if other, found := used[pin]; found {
				return errors.Errorf("gpio pin %d assigned to port %d and port %d", pin, other, portNo)
			}
			used[pin] = portNo
		}
	}
	return nil
}

func (gp *GpioDio) Setup(ctx context.Context) error {
	err := gp.checkPins()
	if err != nil {
		return errors.Wrap(err, "failed to Setup gpio driver")
	}

	err = rpio.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to Setup gpio driver for ports: %v, %v, %v; ", gp.PortA, gp.PortB, gp.PortC)
	}
	gp.isOpen = true
	return nil
}

func (gp *GpioDio) Descriptors() []Descriptor {
	if !gp.isOpen {
		return nil
	}
	return []Descriptor{{ProductName: "Raspberry Pi GPIO", UniqueId: "bcm2835", DevString: "Raspberry Pi GPIO (/dev/gpiomem)"}}
}

func (gp *GpioDio) Connect(descriptorIndex int) error {
	if !gp.isOpen {
		return errors.New("gpio driver not set up")
	}
	if descriptorIndex != 0 {
		return errors.Errorf("gpio descriptor index %d out of range", descriptorIndex)
	}
	gp.isReady = true
	return nil
}

func (gp *GpioDio) String() string {
	return gpioDriverName
}

func (gp *GpioDio) IsReady() bool {
	return gp.isReady
}

func (gp *GpioDio) Close() error {
	gp.isReady = false
	if !gp.isOpen {
		return nil
	}
	gp.isOpen = false
	return rpio.Close()
}

// PortIds lists the leading ports with pins assigned, a gap ends the list.
func (gp *GpioDio) PortIds() (ids []PortId) {
	for i, pins := range gp.ports() {
		if len(pins) != register.Width {
			return
		}
		ids = append(ids, PortId(i))
	}
	return
}

func (gp *GpioDio) pins(port PortId) ([]uint8, error) {
	ports := gp.ports()
	if int(port) >= len(ports) || len(ports[port]) != register.Width {
		return nil, errors.Errorf("gpio port %d has no pins assigned", port)
	}
	return ports[port], nil
}

func (gp *GpioDio) ConfigurePort(port PortId, direction Direction) error {
	pins, err := gp.pins(port)
	if err != nil {
		return err
	}

	for _, p := range pins {
		pin := rpio.Pin(p)
		switch direction {
		case DirectionInput:
			pin.Input()
			pin.PullUp()
		case DirectionOutput:
			pin.Output()
		default:
			return errors.Errorf("gpio port %d: unsupported %s", port, direction)
		}
	}
	return nil
}

func (gp *GpioDio) ReadPort(port PortId) (uint8, error) {
	pins, err := gp.pins(port)
	if err != nil {
		return 0, err
	}

	var lines [register.Width]bool
	for i, p := range pins {
		if gp.InvertInputs {
			lines[i] = rpio.Pin(p).Read() == rpio.Low
		} else {
			lines[i] = rpio.Pin(p).Read() == rpio.High
		}
	}
	return register.Encode(lines), nil
}

func (gp *GpioDio) WritePort(port PortId, value uint8) error {
	pins, err := gp.pins(port)
	if err != nil {
		return err
	}

	for i, state := range register.Decode(value) {
		if gp.InvertOutputs {
			state = !state
		}
		if state {
			rpio.Pin(pins[i]).High()
		} else {
			rpio.Pin(pins[i]).Low()
		}
	}
	return nil
}
