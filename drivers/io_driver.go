package drivers

import (
	"context"
	"fmt"
)

// DioDriver is the hardware side of a digital io device: it discovers the
// devices it can reach, connects to one of them and then moves whole port
// registers in and out.
type DioDriver interface {
	Setup(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool

	Descriptors() []Descriptor
	Connect(descriptorIndex int) error

	// PortIds returns native ids of the ports A, B, C (in that order). A driver
	// that can only serve fewer ports returns a shorter slice.
	PortIds() []PortId
	ConfigurePort(port PortId, direction Direction) error
	ReadPort(port PortId) (uint8, error)
	WritePort(port PortId, value uint8) error
}

func MapAllDioDrivers() map[string]DioDriver {
	drivers := []DioDriver{
		&GpioDio{},
		&McpDio{},
		&MockDio{},
	}

	mapped := make(map[string]DioDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}

// PortId is a driver owned handle of a single 8 line port.
type PortId uint8

type Direction int

const (
	DirectionInput  Direction = 1
	DirectionOutput Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

type Descriptor struct {
	ProductName string
	UniqueId    string
	DevString   string
}

func (d Descriptor) String() string {
	if len(d.DevString) > 0 {
		return d.DevString
	}
	return fmt.Sprintf("%s (%s)", d.ProductName, d.UniqueId)
}
