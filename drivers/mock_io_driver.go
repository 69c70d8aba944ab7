package drivers

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const mockDriverName = "mock_driver"
const mockPortCount = 3

// MockDio keeps port registers in memory. It is used by tests and by the
// mock binary, so it can be set up with any number of discovered devices and
// told to fail on selected ports.
type MockDio struct {
	// NoDevices makes Setup discover nothing.
	NoDevices bool
	Devices   int
	Ports     int

	descriptors []Descriptor
	connected   int
	ready       bool

	registers  map[PortId]uint8
	directions map[PortId]Direction
	configured []PortId
	writes     map[PortId][]uint8
	readCount  map[PortId]int

	failRead      map[PortId]error
	failWrite     map[PortId]error
	failConfigure map[PortId]error

	writeTo          io.Writer
	writeStateChange bool

	lock sync.Mutex
}

func (md *MockDio) Setup(ctx context.Context) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.descriptors = []Descriptor{}
	if !md.NoDevices {
		devices := md.Devices
		if devices < 1 {
			devices = 1
		}
		for i := 0; i < devices; i++ {
			md.descriptors = append(md.descriptors, Descriptor{
				ProductName: "MOCK-DIO24",
				UniqueId:    fmt.Sprintf("%08X", 0xABCDEF00+i),
				DevString:   fmt.Sprintf("MOCK-DIO24 (%08X)", 0xABCDEF00+i),
			})
		}
	}

	md.registers = make(map[PortId]uint8)
	md.directions = make(map[PortId]Direction)
	md.writes = make(map[PortId][]uint8)
	md.readCount = make(map[PortId]int)
	md.configured = nil
	md.connected = -1
	return nil
}

func (md *MockDio) Descriptors() []Descriptor {
	md.lock.Lock()
	defer md.lock.Unlock()

	return append([]Descriptor{}, md.descriptors...)
}

func (md *MockDio) Connect(descriptorIndex int) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	if descriptorIndex < 0 || descriptorIndex >= len(md.descriptors) {
		return errors.Errorf("mock descriptor index %d out of range (%d devices)", descriptorIndex, len(md.descriptors))
	}
	md.connected = descriptorIndex
	md.ready = true
	return nil
}

func (md *MockDio) Close() error {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.ready = false
	md.connected = -1
	return nil
}

func (md *MockDio) String() string {
	return mockDriverName
}

func (md *MockDio) IsReady() bool {
	md.lock.Lock()
	defer md.lock.Unlock()

	return md.ready
}

func (md *MockDio) PortIds() (ids []PortId) {
	ports := md.Ports
	if ports < 1 {
		ports = mockPortCount
	}
	for i := 0; i < ports; i++ {
		ids = append(ids, PortId(10+i))
	}
	return
}

func (md *MockDio) knownPort(port PortId) bool {
	for _, id := range md.PortIds() {
		if id == port {
			return true
		}
	}
	return false
}

func (md *MockDio) ConfigurePort(port PortId, direction Direction) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	if !md.ready {
		return errors.New("mock device not connected")
	}
	if err := md.failConfigure[port]; err != nil {
		return err
	}
	if !md.knownPort(port) {
		return errors.Errorf("mock port %d not found", port)
	}
	md.directions[port] = direction
	md.configured = append(md.configured, port)
	return nil
}

func (md *MockDio) ReadPort(port PortId) (uint8, error) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if !md.ready {
		return 0, errors.New("mock device not connected")
	}
	if err := md.failRead[port]; err != nil {
		return 0, err
	}
	if !md.knownPort(port) {
		return 0, errors.Errorf("mock port %d not found", port)
	}
	md.readCount[port]++
	return md.registers[port], nil
}

func (md *MockDio) WritePort(port PortId, value uint8) error {
	md.lock.Lock()
	defer md.lock.Unlock()

	if !md.ready {
		return errors.New("mock device not connected")
	}
	if err := md.failWrite[port]; err != nil {
		return err
	}
	if !md.knownPort(port) {
		return errors.Errorf("mock port %d not found", port)
	}
	if md.writeStateChange && md.registers[port] != value {
		fmt.Fprintf(md.writeTo, "[port %d] register changed %08b -> %08b\n", port, md.registers[port], value)
	}
	md.registers[port] = value
	md.writes[port] = append(md.writes[port], value)
	return nil
}

// SetRegister sets the level seen on a port, as if driven from outside.
func (md *MockDio) SetRegister(port PortId, value uint8) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if md.registers == nil {
		md.registers = make(map[PortId]uint8)
	}
	md.registers[port] = value
}

func (md *MockDio) Register(port PortId) uint8 {
	md.lock.Lock()
	defer md.lock.Unlock()

	return md.registers[port]
}

func (md *MockDio) Direction(port PortId) (dir Direction, configured bool) {
	md.lock.Lock()
	defer md.lock.Unlock()

	dir, configured = md.directions[port]
	return
}

// Configured lists ports in the order ConfigurePort was called on them.
func (md *MockDio) Configured() []PortId {
	md.lock.Lock()
	defer md.lock.Unlock()

	return append([]PortId{}, md.configured...)
}

func (md *MockDio) Writes(port PortId) []uint8 {
	md.lock.Lock()
	defer md.lock.Unlock()

	return append([]uint8{}, md.writes[port]...)
}

func (md *MockDio) Reads(port PortId) int {
	md.lock.Lock()
	defer md.lock.Unlock()

	return md.readCount[port]
}

// FailReads makes every following ReadPort on port return err; nil clears it.
func (md *MockDio) FailReads(port PortId, err error) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if md.failRead == nil {
		md.failRead = make(map[PortId]error)
	}
	md.failRead[port] = err
}

func (md *MockDio) FailWrites(port PortId, err error) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if md.failWrite == nil {
		md.failWrite = make(map[PortId]error)
	}
	md.failWrite[port] = err
}

func (md *MockDio) FailConfigure(port PortId, err error) {
	md.lock.Lock()
	defer md.lock.Unlock()

	if md.failConfigure == nil {
		md.failConfigure = make(map[PortId]error)
	}
	md.failConfigure[port] = err
}

func (md *MockDio) MonitorStateChanges(writer io.Writer) {
	md.lock.Lock()
	defer md.lock.Unlock()

	md.writeTo = writer
	md.writeStateChange = true
}
