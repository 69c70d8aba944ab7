package daqdio

import (
	"context"
	"testing"

	"github.com/mbi-div-b/daqdio/drivers"
)

const (
	mockPortA = drivers.PortId(10)
	mockPortB = drivers.PortId(11)
	mockPortC = drivers.PortId(12)
)

func assertBools(t testing.TB, got, want bool) {
	t.Helper()

	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func assertInts(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("got %d want %d", got, want)
	}
}

func assertStrings(t testing.TB, got, want string) {
	t.Helper()

	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func assertRegister(t testing.TB, got, want uint8) {
	t.Helper()

	if got != want {
		t.Errorf("got register %08b want %08b", got, want)
	}
}

func connectedMock(t testing.TB) *drivers.MockDio {
	t.Helper()

	md := &drivers.MockDio{}
	md.Setup(context.Background())
	if err := md.Connect(0); err != nil {
		t.Fatalf("mock Connect returned err: %v", err)
	}
	return md
}

func configuredController(t testing.TB, cfg PortsConfig) (*DioController, *drivers.MockDio) {
	t.Helper()

	md := connectedMock(t)
	c := NewDioController(md, nil)
	_, err := c.ApplyConfiguration(cfg)
	if err != nil {
		t.Fatalf("ApplyConfiguration returned err: %v", err)
	}
	return c, md
}

// inputOutput is port A input, port B output, port C disabled, no counter.
var inputOutput = PortsConfig{PortA: 1, PortB: 2, PortC: 0}
