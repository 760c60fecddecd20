package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/speedwagon-io/ambilight/internal/config"
	"github.com/speedwagon-io/ambilight/internal/lib/logger/sl"
	"github.com/speedwagon-io/ambilight/internal/model"
	"github.com/speedwagon-io/ambilight/internal/output"
)

const (
	clientIDPrefix = "ambilight"
	publishTimeout = 5 * time.Second
	disconnectMs   = 250

	// discovery payload keys/values
	keyName              = "name"
	keyStateTopic        = "state_topic"
	keyUnitOfMeasurement = "unit_of_measurement"
	keyDeviceClass       = "device_class"
	keyStateClass        = "state_class"
	keyValueTemplate     = "value_template"
	keyUniqueID          = "unique_id"
	unitLux              = "lx"
	deviceClassLux       = "illuminance"
	stateClassMeasure    = "measurement"
	valueTemplateLux     = "{{ value_json.lux }}"
)

var errNotConnected = errors.New("mqtt client not connected")

type MQTTOutput struct {
	log        *slog.Logger
	client     mqtt.Client
	stateTopic string
}

func NewMQTT(log *slog.Logger, cfg config.MQTTConfig) (output.Output, error) {
	clientID := ClientID(cfg.ClientID)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		log.Warn("mqtt broker not reachable yet, connecting in background", slog.String("server", cfg.Server))
	} else if token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return newMQTTOutput(log, client, cfg), nil
}

func newMQTTOutput(log *slog.Logger, client mqtt.Client, cfg config.MQTTConfig) *MQTTOutput {
	m := &MQTTOutput{log: log, client: client, stateTopic: cfg.StateTopic}

	if cfg.DiscoveryTopic != "" {
		payload := discoveryPayload(cfg.StateTopic, UniqueID(cfg.StateTopic))
		if err := m.publishJSON(cfg.DiscoveryTopic, true, payload); err != nil {
			log.Error("mqtt discovery publish error", sl.Err(err))
		}
	}

	return m
}

// ClientID returns configured, or a fresh "ambilight-<uuid>" when empty.
func ClientID(configured string) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("%s-%s", clientIDPrefix, uuid.New().String())
}

// UniqueID derives the discovery entity id from the state topic so it
// survives restarts, e.g. "ambilight/lux" -> "ambilight_ambilight_lux".
func UniqueID(stateTopic string) string {
	id := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, stateTopic)
	return clientIDPrefix + "_" + id
}

func (m *MQTTOutput) Name() string { return "mqtt" }

func (m *MQTTOutput) Publish(r model.LuxReading) error {
	b, err := r.ToJSON()
	if err != nil {
		return err
	}
	return m.publish(m.stateTopic, false, b)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectMs)
	}
	return nil
}

func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.publish(topic, retained, b)
}

func (m *MQTTOutput) publish(topic string, retained bool, payload []byte) error {
	if m.client == nil {
		return errNotConnected
	}
	token := m.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s: timeout", topic)
	}
	return token.Error()
}

func discoveryPayload(stateTopic, uniqueID string) map[string]any {
	payload := map[string]any{
		keyName:              "Ambient light",
		keyStateTopic:        stateTopic,
		keyUnitOfMeasurement: unitLux,
		keyDeviceClass:       deviceClassLux,
		keyStateClass:        stateClassMeasure,
		keyValueTemplate:     valueTemplateLux,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}
