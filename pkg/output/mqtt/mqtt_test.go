package mqtt

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/ina219-exporter/pkg/config"
	"github.com/ericogr/ina219-exporter/pkg/errors"
	"github.com/ericogr/ina219-exporter/pkg/exposition"
	"github.com/ericogr/ina219-exporter/pkg/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool { return t.complete }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }

func (t *fakeToken) Error() error { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Unused Client methods panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	published    []published
	disconnected bool
	token        *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{complete: true}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func testStatus(state output.State) output.Status {
	id := exposition.Identity{Namespace: "ina219", Version: "1.2.0", Board: "rpi4", Sensor: "ina219"}
	return output.NewStatus(state, id, "http://rpi4:9100/metrics", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
}

func TestPublishRetainedStatus(t *testing.T) {
	c := &fakeClient{}
	m := newMQTTOutput(c, "lab/ina219/status")

	require.NoError(t, m.Publish(testStatus(output.StateOnline)))
	require.Len(t, c.published, 1)

	p := c.published[0]
	assert.Equal(t, "lab/ina219/status", p.topic)
	assert.True(t, p.retained)
	assert.Equal(t, byte(qosAtLeastOnce), p.qos)

	var got output.Status
	require.NoError(t, json.Unmarshal(p.payload, &got))
	assert.Equal(t, output.StateOnline, got.State)
	assert.Equal(t, "http://rpi4:9100/metrics", got.MetricsURL)
	assert.Equal(t, "rpi4", got.Board)
	assert.NotContains(t, string(p.payload), "voltage")
}

func TestOfflineThenClose(t *testing.T) {
	c := &fakeClient{}
	m := newMQTTOutput(c, DefaultTopic)

	require.NoError(t, m.Publish(testStatus(output.StateOffline)))
	require.NoError(t, m.Close())
	assert.True(t, c.disconnected)
	require.Len(t, c.published, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.published[0].payload, &got))
	assert.Equal(t, "offline", got["state"])
	assert.Equal(t, DefaultTopic, c.published[0].topic)
	assert.True(t, c.published[0].retained)
}

func TestPublishErrors(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"broker error", &fakeToken{complete: true, err: fmt.Errorf("not authorized")}},
		{"timeout", &fakeToken{complete: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeClient{token: tt.token}
			m := newMQTTOutput(c, DefaultTopic)

			err := m.Publish(testStatus(output.StateOnline))
			require.Error(t, err)
			assert.Equal(t, errors.ErrOutput, errors.CodeOf(err))
		})
	}
}

func TestNewMQTTUnreachableBroker(t *testing.T) {
	cfg := config.MQTTConfig{Server: "tcp://127.0.0.1:1"}
	_, err := NewMQTT(cfg, testStatus(output.StateOffline))
	require.Error(t, err)
	assert.Equal(t, errors.ErrOutput, errors.CodeOf(err))
}
