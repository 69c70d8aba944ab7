package daqdio

import (
	"fmt"

	"github.com/mbi-div-b/daqdio/drivers"
	"github.com/mbi-div-b/daqdio/register"
)

type PortName string

const (
	PortA PortName = "A"
	PortB PortName = "B"
	PortC PortName = "C"

	// PortCounter owns the counter channel only, it has no register.
	PortCounter PortName = "CTR"
)

// Ports lists the register ports in channel table order.
var Ports = []PortName{PortA, PortB, PortC}

type PortMode int

const (
	ModeDisabled PortMode = 0
	ModeInput    PortMode = 1
	ModeOutput   PortMode = 2
)

func (m PortMode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeInput:
		return "DI"
	case ModeOutput:
		return "DO"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Direction returns the directive sent to the driver for a port in this mode.
func (m PortMode) Direction() (dir drivers.Direction, ok bool) {
	switch m {
	case ModeInput:
		return drivers.DirectionInput, true
	case ModeOutput:
		return drivers.DirectionOutput, true
	}
	return
}

func ResolvePortMode(port PortName, raw int) (PortMode, error) {
	switch PortMode(raw) {
	case ModeDisabled, ModeInput, ModeOutput:
		return PortMode(raw), nil
	}
	return ModeDisabled, &ConfigurationError{
		Field:  fmt.Sprintf("port %s", port),
		Reason: fmt.Sprintf("mode %d is not one of 0 (disabled), 1 (input), 2 (output)", raw),
	}
}

// ResolvePortModeLegacy treats unknown modes as disabled. The returned flag
// reports that the fallback was taken, so the caller can warn about it.
func ResolvePortModeLegacy(port PortName, raw int) (mode PortMode, fellBack bool) {
	mode, err := ResolvePortMode(port, raw)
	if err != nil {
		return ModeDisabled, true
	}
	return mode, false
}

func BuildChannels(port PortName, mode PortMode) (channels []Channel) {
	var access Access
	switch mode {
	case ModeInput:
		access = AccessRead
	case ModeOutput:
		access = AccessWrite
	default:
		return nil
	}

	for bit := 0; bit < register.Width; bit++ {
		channels = append(channels, Channel{
			Name:   fmt.Sprintf("%s%d", port, bit),
			Port:   port,
			Bit:    bit,
			Access: access,
		})
	}
	return
}

func counterChannel() Channel {
	return Channel{Name: string(PortCounter), Port: PortCounter, Access: AccessRead}
}
