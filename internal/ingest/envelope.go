package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
)

// Envelope is an uplink message as delivered by the LoRa network broker.
type Envelope struct {
	StreamID  string
	Timestamp time.Time
	// Payload is the hex-encoded frame; empty when the message carried none.
	Payload string
	// Location is the network-estimated position, nil unless both coordinates were sent.
	Location *geoloc.Hint
}

type liveObjectsMessage struct {
	StreamID  string `json:"streamId"`
	Timestamp string `json:"timestamp"`
	Value     struct {
		Payload *string `json:"payload"`
	} `json:"value"`
	Location *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"location"`
}

// ParseEnvelope decodes a Live Objects data message.
func ParseEnvelope(data []byte) (Envelope, error) {
	var msg liveObjectsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	env := Envelope{StreamID: msg.StreamID}
	if msg.Value.Payload != nil {
		env.Payload = *msg.Value.Payload
	}
	if msg.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp); err == nil {
			env.Timestamp = ts
		}
	}
	if loc := msg.Location; loc != nil && loc.Lat != nil && loc.Lon != nil {
		env.Location = &geoloc.Hint{Lat: *loc.Lat, Lon: *loc.Lon}
	}
	return env, nil
}
