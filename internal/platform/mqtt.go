package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"scened/internal/config"
)

// MQTT is the broker-backed platform adapter. Devices publish retained
// JSON state to <base>/<device>/state and accept commands on
// <base>/<device>/set (the zigbee2mqtt convention).
type MQTT struct {
	client         pahomqtt.Client
	base           string
	qos            byte
	publishTimeout time.Duration

	mu      sync.RWMutex
	states  map[string]RawState
	handler ChangeHandler
}

// ConnectMQTT connects to the broker and subscribes to all device
// state topics. Retained messages populate the state cache shortly
// after subscribing.
func ConnectMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	m := &MQTT{
		base:           strings.TrimSuffix(cfg.BaseTopic, "/"),
		qos:            cfg.QoS,
		publishTimeout: cfg.PublishTimeout.Duration(),
		states:         make(map[string]RawState),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectTimeout(cfg.ConnectTimeout.Duration())

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		// (Re)subscribe on every connect so state flows after reconnects.
		topic := m.base + "/+/state"
		token := c.Subscribe(topic, m.qos, m.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT subscribe failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	m.client = pahomqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout.Duration()) {
		return nil, fmt.Errorf("mqtt connect timed out after %s", cfg.ConnectTimeout.Duration())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return m, nil
}

// OnChange registers the handler invoked on every state-topic message
// carrying a changed payload. Must be called before devices start
// moving; a nil handler drops notifications.
func (m *MQTT) OnChange(handler ChangeHandler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// DeviceIDs returns every device that has published state so far.
func (m *MQTT) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}

// LiveState returns the cached state for a device. ErrStateUnknown is
// returned until the device's retained state topic has been seen.
func (m *MQTT) LiveState(_ context.Context, deviceID string) (RawState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStateUnknown, deviceID)
	}
	return cloneRaw(state), nil
}

// Apply publishes a command to the device's set topic.
func (m *MQTT) Apply(_ context.Context, deviceID string, payload RawState) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", deviceID, err)
	}

	topic := fmt.Sprintf("%s/%s/set", m.base, deviceID)
	token := m.client.Publish(topic, m.qos, false, body)
	if !token.WaitTimeout(m.publishTimeout) {
		return fmt.Errorf("publish to %s timed out after %s", topic, m.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	deviceID, ok := m.deviceFromTopic(msg.Topic())
	if !ok {
		return
	}

	var state RawState
	if err := json.Unmarshal(msg.Payload(), &state); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed state payload")
		return
	}

	m.mu.Lock()
	old := m.states[deviceID]
	m.states[deviceID] = state
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(StateChange{DeviceID: deviceID, Old: old, New: cloneRaw(state)})
	}
}

func (m *MQTT) deviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.base+"/")
	if !ok {
		return "", false
	}
	deviceID, ok := strings.CutSuffix(rest, "/state")
	if !ok || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

func cloneRaw(state RawState) RawState {
	out := make(RawState, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
