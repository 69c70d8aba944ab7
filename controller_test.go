package daqdio

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio/drivers"
)

func TestApplyConfiguration(t *testing.T) {
	c, md := configuredController(t, inputOutput)

	channels := c.Channels()
	assertInts(t, len(channels), 16)
	for i, ch := range channels {
		if i < 8 {
			assertStrings(t, ch.Name, fmt.Sprintf("A%d", i))
			if ch.Access != AccessRead {
				t.Errorf("%s should be READ", ch.Name)
			}
		} else {
			assertStrings(t, ch.Name, fmt.Sprintf("B%d", i-8))
			if ch.Access != AccessWrite {
				t.Errorf("%s should be WRITE", ch.Name)
			}
		}
	}

	_, err := c.Lookup("C0")
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Errorf("C0 should not exist, got %v", err)
	}
	_, err = c.Lookup("CTR")
	if !errors.As(err, &unknown) {
		t.Errorf("CTR should not exist, got %v", err)
	}

	configured := md.Configured()
	if len(configured) != 2 || configured[0] != mockPortA || configured[1] != mockPortB {
		t.Errorf("unexpected configured ports: %v", configured)
	}
	dir, _ := md.Direction(mockPortA)
	if dir != drivers.DirectionInput {
		t.Errorf("port A got %s", dir)
	}
	dir, _ = md.Direction(mockPortB)
	if dir != drivers.DirectionOutput {
		t.Errorf("port B got %s", dir)
	}
	_, configuredC := md.Direction(mockPortC)
	assertBools(t, configuredC, false)
}

func TestApplyConfigurationCounter(t *testing.T) {
	c, _ := configuredController(t, PortsConfig{PortA: 0, PortB: 0, PortC: 1, CounterEnable: true})

	channels := c.Channels()
	assertInts(t, len(channels), 9)
	assertStrings(t, channels[0].Name, "C0")
	assertStrings(t, channels[8].Name, "CTR")
}

func TestApplyConfigurationInvalidMode(t *testing.T) {
	md := connectedMock(t)
	c := NewDioController(md, nil)

	table, err := c.ApplyConfiguration(PortsConfig{PortA: 1, PortB: 2, PortC: 7})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if table != nil {
		t.Error("no table should be returned on error")
	}
	if c.Channels() != nil {
		t.Errorf("controller exposes channels after failed configuration: %v", c.Channels())
	}
	assertInts(t, len(md.Configured()), 0)

	_, err = c.ReadChannel("A0")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestApplyConfigurationLegacyUnknownMode(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 1, PortB: 9, PortC: 2, UnknownModeAsDisabled: true})

	assertInts(t, len(c.Channels()), 16)
	if c.Mode(PortB) != ModeDisabled {
		t.Errorf("port B got %s", c.Mode(PortB))
	}
	assertInts(t, len(md.Configured()), 2)
}

func TestApplyConfigurationDevice(t *testing.T) {
	t.Run("no driver", func(t *testing.T) {
		c := NewDioController(nil, nil)
		_, err := c.ApplyConfiguration(inputOutput)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("no devices", func(t *testing.T) {
		md := &drivers.MockDio{NoDevices: true}
		md.Setup(context.Background())
		c := NewDioController(md, nil)
		_, err := c.ApplyConfiguration(inputOutput)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("descriptor index out of range", func(t *testing.T) {
		c := NewDioController(connectedMock(t), nil)
		cfg := inputOutput
		cfg.DescriptorIndex = 3
		_, err := c.ApplyConfiguration(cfg)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		assertStrings(t, cfgErr.Field, "descriptor index")
	})

	t.Run("not connected", func(t *testing.T) {
		md := &drivers.MockDio{}
		md.Setup(context.Background())
		c := NewDioController(md, nil)
		_, err := c.ApplyConfiguration(inputOutput)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("port missing on device", func(t *testing.T) {
		md := &drivers.MockDio{Ports: 2}
		md.Setup(context.Background())
		md.Connect(0)
		c := NewDioController(md, nil)
		_, err := c.ApplyConfiguration(PortsConfig{PortA: 1, PortB: 1, PortC: 2})
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigurationError, got %v", err)
		}
		assertInts(t, len(md.Configured()), 0)
		if c.Channels() != nil {
			t.Error("controller exposes channels after failed configuration")
		}
	})
}

func TestApplyConfigurationHardwareFailure(t *testing.T) {
	md := connectedMock(t)
	fault := errors.New("port B does not accept direction")
	md.FailConfigure(mockPortB, fault)
	c := NewDioController(md, nil)

	_, err := c.ApplyConfiguration(inputOutput)
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Fatalf("expected PortError, got %v", err)
	}
	if portErr.Port != PortB || errors.Cause(err) != fault {
		t.Errorf("unexpected port error: %+v", portErr)
	}
	if c.Channels() != nil {
		t.Error("controller exposes channels after failed configuration")
	}
}

func TestApplyConfigurationTwice(t *testing.T) {
	c, _ := configuredController(t, inputOutput)

	_, err := c.ApplyConfiguration(PortsConfig{PortA: 2})
	if !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("expected ErrAlreadyConfigured, got %v", err)
	}
	if c.Mode(PortA) != ModeInput {
		t.Errorf("port A mode changed to %s", c.Mode(PortA))
	}
}

func TestReadChannel(t *testing.T) {
	c, md := configuredController(t, inputOutput)
	md.SetRegister(mockPortA, 0b00000100)

	for bit := 0; bit < 8; bit++ {
		got, err := c.ReadChannel(fmt.Sprintf("A%d", bit))
		if err != nil {
			t.Fatalf("ReadChannel returned err: %v", err)
		}
		assertBools(t, got, bit == 2)
	}
	assertInts(t, md.Reads(mockPortA), 8)

	md.SetRegister(mockPortA, 0b10000000)
	got, _ := c.ReadChannel("A2")
	assertBools(t, got, false)
	got, _ = c.ReadChannel("A7")
	assertBools(t, got, true)
}

func TestReadChannelErrors(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 1, PortB: 2, CounterEnable: true})

	_, err := c.ReadChannel("Z9")
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownChannelError, got %v", err)
	}

	_, err = c.ReadChannel("B0")
	var dirErr *DirectionError
	if !errors.As(err, &dirErr) {
		t.Errorf("expected DirectionError, got %v", err)
	}

	_, err = c.ReadChannel("CTR")
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}

	fault := errors.New("usb transfer timed out")
	md.FailReads(mockPortA, fault)
	_, err = c.ReadChannel("A1")
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Fatalf("expected PortError, got %v", err)
	}
	if portErr.Port != PortA || portErr.Channel != "A1" {
		t.Errorf("unexpected port error context: %+v", portErr)
	}
	if errors.Cause(err) != fault {
		t.Errorf("cause should be the driver error, got %v", errors.Cause(err))
	}
}

func TestWriteChannelAccumulates(t *testing.T) {
	c, md := configuredController(t, inputOutput)

	err := c.WriteChannel("B3", true)
	if err != nil {
		t.Fatalf("WriteChannel returned err: %v", err)
	}
	err = c.WriteChannel("B5", true)
	if err != nil {
		t.Fatalf("WriteChannel returned err: %v", err)
	}

	got, _ := md.ReadPort(mockPortB)
	assertRegister(t, got, 0b00101000)

	c.WriteChannel("B3", false)
	assertRegister(t, md.Register(mockPortB), 0b00100000)

	writes := md.Writes(mockPortB)
	assertInts(t, len(writes), 3)
	assertRegister(t, writes[0], 0b00001000)

	shadow, ok := c.Shadow(PortB)
	assertBools(t, ok, true)
	assertRegister(t, shadow, 0b00100000)

	_, ok = c.Shadow(PortA)
	assertBools(t, ok, false)
}

func TestWriteChannelErrors(t *testing.T) {
	c, md := configuredController(t, inputOutput)

	err := c.WriteChannel("A0", true)
	var dirErr *DirectionError
	if !errors.As(err, &dirErr) {
		t.Errorf("expected DirectionError, got %v", err)
	}
	assertInts(t, len(md.Writes(mockPortA)), 0)

	err = c.WriteChannel("Z9", true)
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownChannelError, got %v", err)
	}
}

func TestWriteChannelFailureKeepsShadow(t *testing.T) {
	c, md := configuredController(t, inputOutput)

	c.WriteChannel("B0", true)
	md.FailWrites(mockPortB, errors.New("device disconnected"))

	err := c.WriteChannel("B1", true)
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Fatalf("expected PortError, got %v", err)
	}

	shadow, _ := c.Shadow(PortB)
	assertRegister(t, shadow, 0b00000001)

	md.FailWrites(mockPortB, nil)
	c.WriteChannel("B2", true)
	assertRegister(t, md.Register(mockPortB), 0b00000101)
}

func TestWriteChannelConcurrent(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 2, PortB: 2})

	var wg sync.WaitGroup
	for round := 0; round < 20; round++ {
		for bit := 0; bit < 8; bit++ {
			for _, port := range []string{"A", "B"} {
				wg.Add(1)
				go func(name string) {
					defer wg.Done()
					if err := c.WriteChannel(name, true); err != nil {
						t.Errorf("WriteChannel(%s) returned err: %v", name, err)
					}
				}(fmt.Sprintf("%s%d", port, bit))
			}
		}
	}
	wg.Wait()

	assertRegister(t, md.Register(mockPortA), 0xff)
	assertRegister(t, md.Register(mockPortB), 0xff)
}

func TestReadCounter(t *testing.T) {
	c, _ := configuredController(t, PortsConfig{PortA: 1, CounterEnable: true})
	_, err := c.ReadCounter()
	if !errors.Is(err, ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}

	c, _ = configuredController(t, PortsConfig{PortA: 1})
	_, err = c.ReadCounter()
	var unknown *UnknownChannelError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownChannelError, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 1, PortB: 2, PortC: 1})
	md.SetRegister(mockPortA, 0x01)
	md.SetRegister(mockPortC, 0x80)

	snapshot, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned err: %v", err)
	}
	assertInts(t, len(snapshot), 16)
	assertBools(t, snapshot["A0"], true)
	assertBools(t, snapshot["A1"], false)
	assertBools(t, snapshot["C7"], true)
	if _, found := snapshot["B0"]; found {
		t.Error("output channels should not be in the snapshot")
	}
	assertInts(t, md.Reads(mockPortA), 1)
}

func TestReleaseOutputs(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 2, PortB: 1, PortC: 2})
	c.WriteChannel("A4", true)
	c.WriteChannel("C1", true)

	err := c.ReleaseOutputs()
	if err != nil {
		t.Fatalf("ReleaseOutputs returned err: %v", err)
	}
	assertRegister(t, md.Register(mockPortA), 0)
	assertRegister(t, md.Register(mockPortC), 0)
	assertInts(t, len(md.Writes(mockPortB)), 0)

	shadow, _ := c.Shadow(PortA)
	assertRegister(t, shadow, 0)
}
