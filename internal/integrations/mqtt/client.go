package mqtt

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"smart-guard-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "mqtt",
}

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
	publishTimeout = 5 * time.Second
)

// Publisher ist die Schnittstelle, über die Statusmeldungen veröffentlicht werden
type Publisher interface {
	Publish(topic string, payload interface{}, retain bool) error
	Topic(suffix string) string
}

// Client ist ein reiner Publish-Client mit Verfügbarkeitsmeldung (Last Will)
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	connected atomic.Bool
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Topic bildet "<prefix>/<suffix>"
func (c *Client) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s", c.config.TopicPrefix, suffix)
}

// AvailabilityTopic ist das Topic für online/offline
func (c *Client) AvailabilityTopic() string {
	return c.Topic("availability")
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.WithFields(logFields).Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Broker meldet "offline", wenn die Verbindung abreißt
	opts.SetWill(c.AvailabilityTopic(), payloadOffline, 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.WithFields(logFields).Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop meldet "offline" und trennt die Verbindung
func (c *Client) Stop() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	if err := c.Publish(c.AvailabilityTopic(), payloadOffline, true); err != nil {
		log.WithFields(logFields).WithError(err).Warn("Failed to publish offline state")
	}
	c.client.Disconnect(250)
	c.connected.Store(false)
	log.WithFields(logFields).Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.WithFields(logFields).Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)
	c.connected.Store(true)

	token := client.Publish(c.AvailabilityTopic(), 1, true, payloadOnline)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.WithFields(logFields).WithError(token.Error()).Warn("Failed to publish online state")
	}
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.WithFields(logFields).Errorf("MQTT connection lost: %v", err)
	c.connected.Store(false)
}

// Publish veröffentlicht eine Nachricht. Objekte werden als JSON kodiert.
func (c *Client) Publish(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := encodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}

	log.WithFields(logFields).Debugf("Published message to topic: %s", topic)
	return nil
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return data, nil
	}
}
