package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/smarthubscraper/internal/config"
	"github.com/jgoulah/smarthubscraper/pkg/models"
)

// doneToken is an mqtt.Token that has already completed
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  string
}

// fakeMQTT records publishes; other mqtt.Client methods are not used
type fakeMQTT struct {
	mqtt.Client

	mu       sync.Mutex
	messages []published
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s string
	switch v := payload.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	f.messages = append(f.messages, published{topic: topic, retained: retained, payload: s})
	return doneToken{}
}

func (f *fakeMQTT) IsConnected() bool       { return true }
func (f *fakeMQTT) Disconnect(quiesce uint) {}

func TestNewValidation(t *testing.T) {
	_, err := New(config.MQTTConfig{}, config.HAConfig{Enabled: true, Token: "t", EntityID: "sensor.x"}, nil)
	assert.ErrorContains(t, err, "URL is required")

	_, err = New(config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: "http://ha", EntityID: "sensor.x"}, nil)
	assert.ErrorContains(t, err, "token is required")

	_, err = New(config.MQTTConfig{Enabled: true}, config.HAConfig{}, nil)
	assert.ErrorContains(t, err, "broker address is required")

	p, err := New(config.MQTTConfig{}, config.HAConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Error(t, p.Publish(context.Background(), models.UsageReading{Usage: 1}, time.Now()))
}

func TestPublishHA(t *testing.T) {
	var got HAState
	ha := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/states/sensor.smarthub_usage", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer ha.Close()

	p, err := New(config.MQTTConfig{}, config.HAConfig{
		Enabled:  true,
		URL:      ha.URL + "/",
		Token:    "tok",
		EntityID: "sensor.smarthub_usage",
	}, nil)
	require.NoError(t, err)

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), models.UsageReading{Usage: 42.456}, at))

	assert.Equal(t, "42.46", got.State)
	assert.Equal(t, "kWh", got.Attributes.UnitOfMeasurement)
	assert.Equal(t, "energy", got.Attributes.DeviceClass)
	assert.Equal(t, "total", got.Attributes.StateClass)
	assert.Equal(t, defaultHAName, got.Attributes.FriendlyName)
	assert.Equal(t, "2026-10-01T12:00:00Z", got.Attributes.LastReading)
}

func TestPublishHAError(t *testing.T) {
	ha := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad token"))
	}))
	defer ha.Close()

	p, err := New(config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: ha.URL, Token: "tok", EntityID: "sensor.x"}, nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), models.UsageReading{Usage: 1}, time.Now())
	assert.ErrorContains(t, err, "status 401")
	assert.ErrorContains(t, err, "bad token")
}

func TestPublishMQTT(t *testing.T) {
	fake := &fakeMQTT{}
	p, err := New(config.MQTTConfig{TopicPrefix: "house/meter"}, config.HAConfig{FriendlyName: "Meter"}, nil)
	require.NoError(t, err)
	p.client = fake

	require.NoError(t, p.Publish(context.Background(), models.UsageReading{Usage: 7}, time.Now()))
	require.NoError(t, p.announce(fake))
	p.Close()

	require.Len(t, fake.messages, 3)
	assert.Equal(t, published{topic: "house/meter/usage/state", retained: true, payload: "7.00"}, fake.messages[0])

	assert.Equal(t, "homeassistant/sensor/smarthubscraper_usage/config", fake.messages[1].topic)
	var disc discoveryConfig
	require.NoError(t, json.Unmarshal([]byte(fake.messages[1].payload), &disc))
	assert.Equal(t, "Meter", disc.Name)
	assert.Equal(t, "smarthubscraper_usage", disc.UniqueID)
	assert.Equal(t, "house/meter/usage/state", disc.StateTopic)
	assert.Equal(t, "house/meter/status", disc.AvailabilityTopic)
	assert.Equal(t, "total", disc.StateClass)

	assert.Equal(t, published{topic: "house/meter/status", retained: true, payload: "offline"}, fake.messages[2])
}
