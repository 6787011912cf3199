package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pcurt/hivesense2mqtt/internal/frame"
	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
	"github.com/pcurt/hivesense2mqtt/internal/metrics"
)

// Field names used in ForwardError and metrics.
const (
	FieldDeviceID = "device_id"
	FieldBattery  = "battery"
	FieldWeight   = "weight"
	FieldPosition = "position"
)

// Sink receives the decoded facts, one update per field group.
type Sink interface {
	UpdateDeviceID(ctx context.Context, deviceID string) error
	UpdateBattery(ctx context.Context, volts string) error
	UpdateWeight(ctx context.Context, weight string) error
	// UpdatePosition takes the JSON attributes {"latitude","longitude","gps_accuracy"}.
	UpdatePosition(ctx context.Context, attributes string) error
}

// Recorder is notified of every fully forwarded uplink. Failures are logged, never returned.
type Recorder interface {
	Record(ctx context.Context, facts Facts) error
}

type PositionResolver interface {
	Resolve(ctx context.Context, aps [3]frame.AccessPoint, hint *geoloc.Hint) geoloc.Resolution
}

// Facts is what gets forwarded for one uplink.
type Facts struct {
	DeviceID       uint8
	BatteryVolts   float64
	WeightRaw      uint32
	Position       *geoloc.Position
	PositionSource geoloc.Source
	ReceivedAt     time.Time
}

type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Recorders []Recorder
}

// Pipeline turns uplink envelopes into sink updates. It holds no per-message state and
// may be called concurrently.
type Pipeline struct {
	resolver  PositionResolver
	sink      Sink
	recorders []Recorder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPipeline(resolver PositionResolver, sink Sink, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		resolver:  resolver,
		sink:      sink,
		recorders: opts.Recorders,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// HandleMessage parses a raw broker message and ingests it. Failures are logged here
// (warn for bad input, error for sink failures) and returned.
func (p *Pipeline) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	logger := p.logger.With("msg_id", uuid.NewString(), "topic", topic)
	logger.Debug("message received", "message", string(payload))

	env, err := ParseEnvelope(payload)
	if err != nil {
		p.metrics.ObserveMessage("malformed")
		logger.Warn("dropping malformed message", "error", err)
		return err
	}

	facts, err := p.ingest(ctx, logger, env)
	if err != nil {
		var fe *ForwardError
		if errors.As(err, &fe) {
			logger.Error("forward to home assistant failed",
				"stream_id", env.StreamID,
				"device_id", facts.DeviceID,
				"field", fe.Field,
				"error", fe.Err,
			)
		} else {
			logger.Warn("dropping uplink", "stream_id", env.StreamID, "payload", env.Payload, "error", err)
		}
		return err
	}

	logger.Info("uplink forwarded",
		"stream_id", env.StreamID,
		"device_id", facts.DeviceID,
		"battery_v", facts.BatteryVolts,
		"weight_raw", facts.WeightRaw,
		"position_source", facts.PositionSource.String(),
	)
	return nil
}

// Ingest decodes env, resolves its position and forwards the facts to the sink.
// On a forward failure the facts are returned together with a *ForwardError.
func (p *Pipeline) Ingest(ctx context.Context, env Envelope) (Facts, error) {
	return p.ingest(ctx, p.logger, env)
}

func (p *Pipeline) ingest(ctx context.Context, logger *slog.Logger, env Envelope) (Facts, error) {
	if env.Payload == "" {
		p.metrics.ObserveMessage("missing_payload")
		return Facts{}, ErrMissingPayload
	}

	reading, err := frame.Decode(env.Payload)
	if err != nil {
		p.metrics.ObserveMessage("decode_error")
		return Facts{}, &DecodeError{Err: err}
	}

	logger.Info("frame decoded",
		"payload", env.Payload,
		"device_id", reading.DeviceID,
		"vbat_mv", reading.BatteryMillivolts,
		"weight_raw", reading.WeightRaw,
		"bssids", []string{
			reading.AccessPoints[0].String(),
			reading.AccessPoints[1].String(),
			reading.AccessPoints[2].String(),
		},
	)

	res := p.resolver.Resolve(ctx, reading.AccessPoints, env.Location)

	facts := Facts{
		DeviceID:       reading.DeviceID,
		BatteryVolts:   reading.BatteryVolts(),
		WeightRaw:      reading.WeightRaw,
		PositionSource: res.Source,
		ReceivedAt:     p.now(),
	}
	if res.OK() {
		pos := res.Position
		facts.Position = &pos
	}

	if err := p.forward(ctx, facts); err != nil {
		var fe *ForwardError
		if errors.As(err, &fe) {
			p.metrics.ObserveForwardError(fe.Field)
		}
		p.metrics.ObserveMessage("forward_error")
		return facts, err
	}

	p.record(ctx, logger, facts)

	p.metrics.ObserveMessage("ok")
	p.metrics.SetLastMessage(float64(facts.ReceivedAt.Unix()))
	return facts, nil
}

func (p *Pipeline) forward(ctx context.Context, facts Facts) error {
	if err := p.sink.UpdateDeviceID(ctx, strconv.Itoa(int(facts.DeviceID))); err != nil {
		return &ForwardError{Field: FieldDeviceID, Err: err}
	}
	if err := p.sink.UpdateBattery(ctx, FormatVolts(facts.BatteryVolts)); err != nil {
		return &ForwardError{Field: FieldBattery, Err: err}
	}
	if err := p.sink.UpdateWeight(ctx, strconv.FormatUint(uint64(facts.WeightRaw), 10)); err != nil {
		return &ForwardError{Field: FieldWeight, Err: err}
	}
	if facts.Position == nil {
		return nil
	}

	attrs, err := PositionAttributes(*facts.Position)
	if err != nil {
		return &ForwardError{Field: FieldPosition, Err: err}
	}
	if err := p.sink.UpdatePosition(ctx, attrs); err != nil {
		return &ForwardError{Field: FieldPosition, Err: err}
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, facts Facts) {
	for _, r := range p.recorders {
		if err := r.Record(ctx, facts); err != nil {
			p.metrics.ObserveRecorderError()
			logger.Warn("record uplink failed", "device_id", facts.DeviceID, "error", err)
		}
	}
}

// FormatVolts renders a voltage with at most three decimals in its shortest form
// (3.07, not 3.070).
func FormatVolts(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

type positionAttributes struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	GPSAccuracy float64 `json:"gps_accuracy"`
}

// PositionAttributes renders pos as the device tracker attributes document.
func PositionAttributes(pos geoloc.Position) (string, error) {
	b, err := json.Marshal(positionAttributes{
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		GPSAccuracy: pos.AccuracyMeters,
	})
	if err != nil {
		return "", fmt.Errorf("marshal position attributes: %w", err)
	}
	return string(b), nil
}
