package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ina219-exporter/pkg/config"
	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/output"
)

const (
	// defaults
	DefaultClientID = "ina219-exporter"
	DefaultTopic    = "ina219-exporter/status"

	qosAtLeastOnce = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	quiesceMillis  = 250
)

// MQTTOutput keeps a retained availability message on the broker. The last
// will flips it to offline if the process dies without publishing offline.
type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

// NewMQTT connects to the broker with offline registered as last will.
func NewMQTT(cfg config.MQTTConfig, offline output.Status) (output.Output, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	will, err := json.Marshal(offline)
	if err != nil {
		return nil, errors.Wrap(errors.ErrOutput, err)
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetWill(topic, string(will), qosAtLeastOnce, true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(errors.ErrOutput, fmt.Errorf("mqtt connect: %w", token.Error()))
	}

	return newMQTTOutput(client, topic), nil
}

func newMQTTOutput(client mqtt.Client, topic string) *MQTTOutput {
	return &MQTTOutput{client: client, topic: topic}
}

func (m *MQTTOutput) Publish(s output.Status) error {
	return publishJSON(m.client, m.topic, true, s)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(quiesceMillis)
	}
	return nil
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.ErrOutput, err)
	}
	token := client.Publish(topic, qosAtLeastOnce, retained, b)
	if !token.WaitTimeout(publishTimeout) {
		return errors.WithData(errors.ErrOutput, fmt.Sprintf("mqtt publish to %s timed out", topic))
	}
	if token.Error() != nil {
		return errors.Wrap(errors.ErrOutput, token.Error())
	}
	return nil
}
