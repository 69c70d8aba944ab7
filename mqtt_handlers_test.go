package daqdio

import (
	"sort"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

type recordingPublisher struct {
	published map[string]string
	fail      error
}

func (rp *recordingPublisher) Publish(topic string, payload []byte) error {
	if rp.fail != nil {
		return rp.fail
	}
	if rp.published == nil {
		rp.published = make(map[string]string)
	}
	rp.published[topic] = string(payload)
	return nil
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]bool{
		"on": true, "ON": true, "high": true, "1": true, "true": true, " true\n": true,
		"off": false, "Low": false, "0": false, "false": false,
	} {
		got, err := parseLevel(raw)
		if err != nil {
			t.Errorf("parseLevel(%q) returned err: %v", raw, err)
		}
		assertBools(t, got, want)
	}

	for _, raw := range []string{"", "2", "maybe"} {
		_, err := parseLevel(raw)
		if err == nil {
			t.Errorf("parseLevel(%q) should fail", raw)
		}
	}
}

func TestChannelHandlers(t *testing.T) {
	c, md := configuredController(t, PortsConfig{PortA: 1, PortB: 0, PortC: 2})

	handlers := channelHandlers("daqdio/bench", c, newLogger("test"))
	assertInts(t, len(handlers), 8)

	topics := []string{}
	for _, h := range handlers {
		topics = append(topics, h.MqttSubscribeTopic())
	}
	sort.Strings(topics)
	assertStrings(t, topics[0], "daqdio/bench/C0/set")
	assertStrings(t, topics[7], "daqdio/bench/C7/set")

	for _, h := range handlers {
		if h.MqttSubscribeTopic() == "daqdio/bench/C4/set" {
			h.MqttHandle(&paho.Publish{Topic: "daqdio/bench/C4/set", Payload: []byte("on")})
			h.MqttHandle(&paho.Publish{Topic: "daqdio/bench/C4/set", Payload: []byte("garbage")})
		}
	}
	assertRegister(t, md.Register(mockPortC), 0b00010000)
	assertInts(t, len(md.Writes(mockPortC)), 1)
}

func TestPublishInputs(t *testing.T) {
	c, md := configuredController(t, inputOutput)
	md.SetRegister(mockPortA, 0b10000001)
	snapshot, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned err: %v", err)
	}

	rp := &recordingPublisher{}
	err = publishInputs(rp, "daqdio/bench", snapshot)
	if err != nil {
		t.Fatalf("publishInputs returned err: %v", err)
	}
	assertInts(t, len(rp.published), 8)
	assertStrings(t, rp.published["daqdio/bench/A0"], "true")
	assertStrings(t, rp.published["daqdio/bench/A3"], "false")
	assertStrings(t, rp.published["daqdio/bench/A7"], "true")

	rp.fail = errors.New("broker gone")
	err = publishInputs(rp, "daqdio/bench", snapshot)
	if errors.Cause(err) != rp.fail {
		t.Errorf("expected broker error, got %v", err)
	}
}

func TestInitMqttRequiresBroker(t *testing.T) {
	dd := fakeDevice(t)
	err := dd.InitMqtt()
	if err == nil {
		t.Error("InitMqtt should fail without broker address")
	}

	dd = New()
	dd.MqttBroker = "tcp://localhost:1883"
	err = dd.InitMqtt()
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
