package homeassistant

import (
	"fmt"

	"smart-guard-go/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

// Konstanten für Home Assistant MQTT Discovery
const (
	// DiscoveryPrefix ist das Standard-Präfix von Home Assistant
	DiscoveryPrefix = "homeassistant"

	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"

	NodeID = "smart_guard"
)

// EntityConfig ist die Discovery-Konfiguration einer Entität
type EntityConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	DeviceClass         string  `json:"device_class,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	PayloadOn           string  `json:"payload_on,omitempty"`
	PayloadOff          string  `json:"payload_off,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device sind die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// DiscoveryManager meldet die Entitäten des Guards bei Home Assistant an
type DiscoveryManager struct {
	publisher mqtt.Publisher
}

// NewDiscoveryManager erstellt einen neuen DiscoveryManager
func NewDiscoveryManager(publisher mqtt.Publisher) *DiscoveryManager {
	return &DiscoveryManager{publisher: publisher}
}

// Register veröffentlicht die Konfigurationen für den Autorisierungs- und den Statussensor
func (dm *DiscoveryManager) Register() error {
	device := &Device{
		Identifiers:  []string{NodeID},
		Name:         "Smart Guard",
		Manufacturer: "Smart Guard",
		Model:        "Face Recognition Guard",
	}

	entities := map[string]EntityConfig{
		topicFor(ComponentBinarySensor, "authorized"): {
			Name:                "Smart Guard Authorized",
			UniqueID:            NodeID + "_authorized",
			StateTopic:          dm.publisher.Topic(topicAuthorized),
			PayloadOn:           payloadOn,
			PayloadOff:          payloadOff,
			Icon:                "mdi:shield-account",
			AvailabilityTopic:   dm.publisher.Topic("availability"),
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			Device:              device,
		},
		topicFor(ComponentSensor, "status"): {
			Name:                "Smart Guard Status",
			UniqueID:            NodeID + "_status",
			StateTopic:          dm.publisher.Topic(topicStatus),
			ValueTemplate:       "{{ value_json.status }}",
			JSONAttributesTopic: dm.publisher.Topic(topicStatus),
			Icon:                "mdi:face-recognition",
			AvailabilityTopic:   dm.publisher.Topic("availability"),
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			Device:              device,
		},
	}

	for topic, entity := range entities {
		log.WithFields(logFields).Infof("Registering Home Assistant entity %s", entity.UniqueID)
		if err := dm.publisher.Publish(topic, entity, true); err != nil {
			return fmt.Errorf("failed to publish discovery configuration: %w", err)
		}
	}
	return nil
}

func topicFor(component, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", DiscoveryPrefix, component, NodeID, object)
}
