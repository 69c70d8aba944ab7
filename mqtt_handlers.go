package daqdio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/mbi-div-b/daqdio/mqtt"
	"github.com/mbi-div-b/daqdio/register"
)

const mqttTopicRoot = "daqdio"

// channelMqttHandler writes an output channel from "<prefix>/<channel>/set".
type channelMqttHandler struct {
	channel    Channel
	topic      string
	controller *DioController
	logger     *log.Logger
}

func (ch *channelMqttHandler) MqttSubscribeTopic() string {
	return ch.topic
}

func (ch *channelMqttHandler) MqttHandle(pub *paho.Publish) {
	value, err := parseLevel(string(pub.Payload))
	if err != nil {
		ch.logger.Warn("ignoring mqtt message", "topic", pub.Topic, "err", err)
		return
	}

	err = ch.controller.WriteChannel(ch.channel.Name, value)
	if err != nil {
		ch.logger.Error("mqtt write failed", "channel", ch.channel.Name, "err", err)
	}
}

func parseLevel(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "high":
		return true, nil
	case "off", "low":
		return false, nil
	}

	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, errors.Errorf("unrecognized level %q", raw)
	}
	return value, nil
}

func (dd *DaqDio) topicPrefix() string {
	return fmt.Sprintf("%s/%s", mqttTopicRoot, dd.Name)
}

func channelHandlers(prefix string, controller *DioController, logger *log.Logger) (handlers []mqtt.MqttHandler) {
	for _, ch := range controller.Channels() {
		if ch.Access != AccessWrite {
			continue
		}
		handlers = append(handlers, &channelMqttHandler{
			channel:    ch,
			topic:      fmt.Sprintf("%s/%s/set", prefix, ch.Name),
			controller: controller,
			logger:     logger,
		})
	}
	return
}

func publishInputs(publisher mqtt.Publisher, prefix string, snapshot map[string]bool) error {
	for _, port := range Ports {
		for bit := 0; bit < register.Width; bit++ {
			name := fmt.Sprintf("%s%d", port, bit)
			state, found := snapshot[name]
			if !found {
				continue
			}
			err := publisher.Publish(fmt.Sprintf("%s/%s", prefix, name), []byte(strconv.FormatBool(state)))
			if err != nil {
				return errors.Wrapf(err, "failed to publish %s", name)
			}
		}
	}
	return nil
}

func (dd *DaqDio) InitMqtt() (err error) {
	if len(dd.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}
	if dd.controller == nil {
		err = ErrNotConfigured
		return
	}

	mc, err := mqtt.NewMqttClient(dd.MqttBroker, dd.Name)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	dd.mqttClient = mc

	err = mc.Connect(channelHandlers(dd.topicPrefix(), dd.controller, dd.getLogger()))
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}
