package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcurt/hivesense2mqtt/internal/ingest"
)

var _ ingest.Sink = (*Sink)(nil)

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakePublisher struct {
	msgs   []published
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte, retained bool) error {
	if topic == p.failOn {
		return errors.New("not connected")
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (p *fakePublisher) byTopic(topic string) (published, bool) {
	for _, m := range p.msgs {
		if m.topic == topic {
			return m, true
		}
	}
	return published{}, false
}

func newTestSink(pub Publisher) *Sink {
	return NewSink(pub, Options{
		UniqueID:        "apiary1",
		DiscoveryPrefix: "homeassistant",
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSink_StateUpdates(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub)
	ctx := context.Background()

	require.NoError(t, s.UpdateDeviceID(ctx, "42"))
	require.NoError(t, s.UpdateBattery(ctx, "3.07"))
	require.NoError(t, s.UpdateWeight(ctx, "1"))
	require.NoError(t, s.UpdatePosition(ctx, `{"latitude":1,"longitude":2,"gps_accuracy":3}`))
	require.NoError(t, s.SetMovementAlarm(ctx, true))
	require.NoError(t, s.SetMovementAlarm(ctx, false))

	assert.Equal(t, []published{
		{topic: "hive-sense-devid/state", payload: "42", retained: true},
		{topic: "hive-sense-batt/state", payload: "3.07", retained: true},
		{topic: "hive-sense-weight/state", payload: "1", retained: true},
		{topic: "hive-sense-pos/attributes", payload: `{"latitude":1,"longitude":2,"gps_accuracy":3}`, retained: true},
		{topic: "hive-sense-alarm/state", payload: "ON", retained: true},
		{topic: "hive-sense-alarm/state", payload: "OFF", retained: true},
	}, pub.msgs)
}

func TestSink_UpdateReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{failOn: "hive-sense-batt/state"}
	s := newTestSink(pub)

	assert.Error(t, s.UpdateBattery(context.Background(), "3.07"))
	assert.NoError(t, s.UpdateWeight(context.Background(), "12"))
}

func TestSink_PublishDiscovery(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub)

	require.NoError(t, s.PublishDiscovery(context.Background()))
	require.Len(t, pub.msgs, len(Entities())+1)

	for _, m := range pub.msgs {
		assert.True(t, m.retained, "topic %s must be retained", m.topic)
	}

	avail, ok := pub.byTopic("hiveSense2mqtt/availability")
	require.True(t, ok)
	assert.Equal(t, "online", avail.payload)

	batt, ok := pub.byTopic("homeassistant/sensor/hive-sense-batt/config")
	require.True(t, ok)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(batt.payload), &cfg))
	assert.Equal(t, "battery", cfg["device_class"])
	assert.Equal(t, "V", cfg["unit_of_measurement"])
	assert.Equal(t, "hive-sense-batt/state", cfg["state_topic"])
	assert.Equal(t, "hiveSense2mqtt-apiary1-hive-sense-batt", cfg["unique_id"])
	assert.Equal(t, map[string]any{
		"identifiers": []any{"hiveSense2mqtt-apiary1"},
		"name":        "hiveSense2mqtt",
	}, cfg["device"])

	tracker, ok := pub.byTopic("homeassistant/device_tracker/hive-sense-pos/config")
	require.True(t, ok)
	cfg = nil
	require.NoError(t, json.Unmarshal([]byte(tracker.payload), &cfg))
	assert.Equal(t, "Hive Sense Position", cfg["name"])
	assert.Equal(t, "hive-sense-pos/attributes", cfg["json_attributes_topic"])
	assert.NotContains(t, cfg, "state_topic")

	alarm, ok := pub.byTopic("homeassistant/binary_sensor/hive-sense-alarm/config")
	require.True(t, ok)
	cfg = nil
	require.NoError(t, json.Unmarshal([]byte(alarm.payload), &cfg))
	assert.Equal(t, "moving", cfg["device_class"])
	assert.Equal(t, "ON", cfg["payload_on"])
	assert.Equal(t, "OFF", cfg["payload_off"])
}

func TestSink_PublishDiscoveryJoinsErrors(t *testing.T) {
	pub := &fakePublisher{failOn: "homeassistant/sensor/hive-sense-weight/config"}
	s := newTestSink(pub)

	err := s.PublishDiscovery(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hive-sense-weight")
	// The remaining entities are still announced.
	_, ok := pub.byTopic("homeassistant/device_tracker/hive-sense-pos/config")
	assert.True(t, ok)
}

func TestSink_MarkOffline(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub)

	require.NoError(t, s.MarkOffline(context.Background()))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, published{topic: AvailabilityTopic, payload: PayloadOffline, retained: true}, pub.msgs[0])
}

func TestNewSink_Defaults(t *testing.T) {
	pub := &fakePublisher{}
	s := NewSink(pub, Options{})

	require.NoError(t, s.PublishDiscovery(context.Background()))
	m, ok := pub.byTopic("homeassistant/sensor/hive-sense-devid/config")
	require.True(t, ok)
	assert.Contains(t, m.payload, `"hiveSense2mqtt-default"`)
}

func TestDiscoveryTopic(t *testing.T) {
	e := Entity{Component: "sensor", ObjectID: ObjectWeight}
	assert.Equal(t, "ha/sensor/hive-sense-weight/config", DiscoveryTopic("ha", e))
}
