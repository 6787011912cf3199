// Package homeassistant publishes hive facts as Home Assistant MQTT entities.
package homeassistant

import (
	"encoding/json"
	"fmt"
)

const (
	DeviceName = "hiveSense2mqtt"

	ObjectDeviceID = "hive-sense-devid"
	ObjectBattery  = "hive-sense-batt"
	ObjectWeight   = "hive-sense-weight"
	ObjectPosition = "hive-sense-pos"
	ObjectAlarm    = "hive-sense-alarm"

	AvailabilityTopic = DeviceName + "/availability"
	PayloadOnline     = "online"
	PayloadOffline    = "offline"

	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Entity is one discoverable Home Assistant entity.
type Entity struct {
	Component   string
	ObjectID    string
	Name        string
	DeviceClass string
	Unit        string
	// AttributesOnly entities publish a JSON attributes document instead of a state.
	AttributesOnly bool
}

func (e Entity) StateTopic() string      { return e.ObjectID + "/state" }
func (e Entity) AttributesTopic() string { return e.ObjectID + "/attributes" }

// Entities lists everything announced on discovery, in publish order.
func Entities() []Entity {
	return []Entity{
		{Component: "sensor", ObjectID: ObjectDeviceID, Name: "Hive Sense device ID"},
		{Component: "sensor", ObjectID: ObjectBattery, Name: "Hive Sense Battery Voltage", DeviceClass: "battery", Unit: "V"},
		{Component: "sensor", ObjectID: ObjectWeight, Name: "Hive Sense weight measure", DeviceClass: "weight", Unit: "g"},
		{Component: "device_tracker", ObjectID: ObjectPosition, Name: "Hive Sense Position", AttributesOnly: true},
		{Component: "binary_sensor", ObjectID: ObjectAlarm, Name: "Hive Sense Movement Alarm", DeviceClass: "moving"},
	}
}

type device struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

type discoveryConfig struct {
	Name                string `json:"name"`
	UniqueID            string `json:"unique_id"`
	ObjectID            string `json:"object_id"`
	StateTopic          string `json:"state_topic,omitempty"`
	JSONAttributesTopic string `json:"json_attributes_topic,omitempty"`
	DeviceClass         string `json:"device_class,omitempty"`
	UnitOfMeasurement   string `json:"unit_of_measurement,omitempty"`
	SourceType          string `json:"source_type,omitempty"`
	PayloadOn           string `json:"payload_on,omitempty"`
	PayloadOff          string `json:"payload_off,omitempty"`
	AvailabilityTopic   string `json:"availability_topic"`
	Device              device `json:"device"`
}

// DeviceIdentifier is the Home Assistant device identifier for an installation.
func DeviceIdentifier(uniqueID string) string {
	return DeviceName + "-" + uniqueID
}

// DiscoveryTopic returns {prefix}/{component}/{object_id}/config.
func DiscoveryTopic(prefix string, e Entity) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, e.Component, e.ObjectID)
}

// DiscoveryPayload renders the retained config document for e.
func DiscoveryPayload(uniqueID string, e Entity) ([]byte, error) {
	id := DeviceIdentifier(uniqueID)
	cfg := discoveryConfig{
		Name:              e.Name,
		UniqueID:          id + "-" + e.ObjectID,
		ObjectID:          e.ObjectID,
		DeviceClass:       e.DeviceClass,
		UnitOfMeasurement: e.Unit,
		AvailabilityTopic: AvailabilityTopic,
		Device:            device{Identifiers: []string{id}, Name: DeviceName},
	}

	if e.AttributesOnly {
		cfg.JSONAttributesTopic = e.AttributesTopic()
		cfg.SourceType = "gps"
	} else {
		cfg.StateTopic = e.StateTopic()
	}
	if e.Component == "binary_sensor" {
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	}

	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal discovery config %s: %w", e.ObjectID, err)
	}
	return b, nil
}
