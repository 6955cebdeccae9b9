package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/smarthubscraper/internal/config"
	"github.com/jgoulah/smarthubscraper/pkg/models"
)

const (
	unitKWh       = "kWh"
	stateClass    = "total" // the tooltip value is not monotonic
	mqttQoS       = 1
	mqttTimeout   = 10 * time.Second
	defaultHAName = "SmartHub Energy Usage"
)

// Publisher sends usage readings to Home Assistant over its HTTP API, MQTT,
// or both
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	clientID    string
	haConfig    config.HAConfig
	httpClient  *http.Client
	logger      *zap.Logger
}

// New creates a new publisher. When MQTT is enabled it connects to the
// broker and, if configured, announces the sensor for discovery.
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Validate HA config if enabled
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	p := &Publisher{
		topicPrefix: mqttCfg.GetTopicPrefix(),
		clientID:    mqttCfg.GetClientID(),
		haConfig:    haCfg,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID(p.clientID)
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(mqttTimeout)
		opts.SetWill(p.availabilityTopic(), "offline", mqttQoS, true)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		if mqttCfg.Discovery {
			// runs on every connect and reconnect
			opts.SetOnConnectHandler(func(c mqtt.Client) {
				if err := p.announce(c); err != nil {
					p.logger.Warn("publishing discovery config", zap.Error(err))
				}
			})
		}

		p.client = mqtt.NewClient(opts)
		token := p.client.Connect()
		if !token.WaitTimeout(mqttTimeout) {
			return nil, fmt.Errorf("connecting to MQTT broker: timed out after %s", mqttTimeout)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
		}
		if err := p.mqttPublish(p.availabilityTopic(), "online"); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Enabled reports whether any sink is configured
func (p *Publisher) Enabled() bool {
	return p.haConfig.Enabled || p.client != nil
}

// Publish sends a usage reading to every enabled sink concurrently
func (p *Publisher) Publish(ctx context.Context, reading models.UsageReading, at time.Time) error {
	if !p.Enabled() {
		return fmt.Errorf("no publishing sink is enabled in config")
	}

	g, ctx := errgroup.WithContext(ctx)
	if p.haConfig.Enabled {
		g.Go(func() error {
			return p.publishHA(ctx, reading, at)
		})
	}
	if p.client != nil {
		g.Go(func() error {
			return p.mqttPublish(p.stateTopic(), formatState(reading))
		})
	}
	return g.Wait()
}

// HAState matches the body of POST /api/states/<entity_id>
type HAState struct {
	State      string       `json:"state"`
	Attributes HAAttributes `json:"attributes"`
}

// HAAttributes are the sensor attributes sent with each state
type HAAttributes struct {
	UnitOfMeasurement string `json:"unit_of_measurement"`
	DeviceClass       string `json:"device_class"`
	StateClass        string `json:"state_class"`
	FriendlyName      string `json:"friendly_name"`
	LastReading       string `json:"last_reading"`
}

// publishHA sets the sensor state through the Home Assistant REST API
func (p *Publisher) publishHA(ctx context.Context, reading models.UsageReading, at time.Time) error {
	apiURL := fmt.Sprintf("%s/api/states/%s", strings.TrimRight(p.haConfig.URL, "/"), p.haConfig.EntityID)

	name := p.haConfig.FriendlyName
	if name == "" {
		name = defaultHAName
	}

	payload := HAState{
		State: formatState(reading),
		Attributes: HAAttributes{
			UnitOfMeasurement: unitKWh,
			DeviceClass:       "energy",
			StateClass:        stateClass,
			FriendlyName:      name,
			LastReading:       at.Format(time.RFC3339),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.haConfig.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	// 200 updates an existing entity, 201 creates it
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	p.logger.Debug("published to Home Assistant", zap.String("entity_id", p.haConfig.EntityID), zap.String("state", payload.State))
	return nil
}

// discoveryConfig is the Home Assistant MQTT discovery payload for the sensor
type discoveryConfig struct {
	Name              string `json:"name"`
	UniqueID          string `json:"unique_id"`
	StateTopic        string `json:"state_topic"`
	AvailabilityTopic string `json:"availability_topic"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
	DeviceClass       string `json:"device_class"`
	StateClass        string `json:"state_class"`
}

func (p *Publisher) discoveryTopic() string {
	return fmt.Sprintf("homeassistant/sensor/%s_usage/config", p.clientID)
}

func (p *Publisher) stateTopic() string {
	return p.topicPrefix + "/usage/state"
}

func (p *Publisher) availabilityTopic() string {
	return p.topicPrefix + "/status"
}

func (p *Publisher) discoveryPayload() ([]byte, error) {
	name := p.haConfig.FriendlyName
	if name == "" {
		name = defaultHAName
	}
	return json.Marshal(discoveryConfig{
		Name:              name,
		UniqueID:          p.clientID + "_usage",
		StateTopic:        p.stateTopic(),
		AvailabilityTopic: p.availabilityTopic(),
		UnitOfMeasurement: unitKWh,
		DeviceClass:       "energy",
		StateClass:        stateClass,
	})
}

func (p *Publisher) announce(c mqtt.Client) error {
	payload, err := p.discoveryPayload()
	if err != nil {
		return fmt.Errorf("encoding discovery config: %w", err)
	}
	token := c.Publish(p.discoveryTopic(), mqttQoS, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publishing discovery config: timed out")
	}
	return token.Error()
}

func (p *Publisher) mqttPublish(topic, payload string) error {
	token := p.client.Publish(topic, mqttQoS, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	p.logger.Debug("published to MQTT", zap.String("topic", topic), zap.String("payload", payload))
	return nil
}

func formatState(reading models.UsageReading) string {
	return fmt.Sprintf("%.2f", reading.Usage)
}

// Close marks the sensor offline and disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		_ = p.mqttPublish(p.availabilityTopic(), "offline")
		p.client.Disconnect(250)
	}
}
