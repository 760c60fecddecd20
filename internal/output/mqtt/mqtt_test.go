package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/ambilight/internal/config"
	"github.com/speedwagon-io/ambilight/internal/lib/logger/sl"
	"github.com/speedwagon-io/ambilight/internal/model"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes; any other mqtt.Client method panics.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	messages     []published
	err          error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func TestMQTTOutput_Publish(t *testing.T) {
	client := &fakeClient{}
	cfg := config.MQTTConfig{StateTopic: "ambilight/lux"}
	m := newMQTTOutput(sl.Discard(), client, cfg)

	require.NoError(t, m.Publish(model.LuxReading{Timestamp: 1758292914, Lux: 200.711}))

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "ambilight/lux", msg.topic)
	assert.False(t, msg.retained)
	assert.JSONEq(t, `{"timestamp":1758292914,"lux":200.711}`, string(msg.payload))

	require.NoError(t, m.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTOutput_Discovery(t *testing.T) {
	client := &fakeClient{}
	cfg := config.MQTTConfig{
		StateTopic:     "ambilight/lux",
		DiscoveryTopic: "homeassistant/sensor/ambilight/config",
	}
	newMQTTOutput(sl.Discard(), client, cfg)

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	assert.Equal(t, "homeassistant/sensor/ambilight/config", msg.topic)
	assert.True(t, msg.retained)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.payload, &payload))
	assert.Equal(t, "illuminance", payload["device_class"])
	assert.Equal(t, "lx", payload["unit_of_measurement"])
	assert.Equal(t, "ambilight/lux", payload["state_topic"])
	assert.Equal(t, "ambilight_ambilight_lux", payload["unique_id"])
}

func TestMQTTOutput_DiscoveryIDStableAcrossRestarts(t *testing.T) {
	cfg := config.MQTTConfig{
		StateTopic:     "home/bedroom/lux",
		DiscoveryTopic: "homeassistant/sensor/ambilight/config",
	}

	var ids []any
	for i := 0; i < 2; i++ {
		client := &fakeClient{}
		newMQTTOutput(sl.Discard(), client, cfg)
		require.Len(t, client.messages, 1)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(client.messages[0].payload, &payload))
		ids = append(ids, payload["unique_id"])
	}

	assert.Equal(t, "ambilight_home_bedroom_lux", ids[0])
	assert.Equal(t, ids[0], ids[1])
	assert.NotEqual(t, ClientID(""), ClientID(""))
}

func TestMQTTOutput_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	m := newMQTTOutput(sl.Discard(), client, config.MQTTConfig{StateTopic: "t"})

	assert.EqualError(t, m.Publish(model.LuxReading{Timestamp: 1, Lux: 1}), "broker gone")
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "custom", ClientID("custom"))

	generated := ClientID("")
	assert.True(t, strings.HasPrefix(generated, "ambilight-"))
	assert.NotEqual(t, generated, ClientID(""))
}
