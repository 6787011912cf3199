package history

import (
	"context"
	"fmt"
	"log/slog"

	geo "github.com/kellydunn/golang-geo"

	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
	"github.com/pcurt/hivesense2mqtt/internal/ingest"
	"github.com/pcurt/hivesense2mqtt/internal/metrics"
)

const DefaultMovementThresholdMeters = 500.0

// AlarmSink receives the movement alarm state.
type AlarmSink interface {
	SetMovementAlarm(ctx context.Context, on bool) error
}

type RecorderOptions struct {
	// Alarm is optional; without it movement is only logged.
	Alarm           AlarmSink
	ThresholdMeters float64
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Recorder stores every forwarded uplink and raises the movement alarm when a new fix is
// farther from the previous one than the threshold plus both accuracy radii.
type Recorder struct {
	repo      Repository
	alarm     AlarmSink
	threshold float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

var _ ingest.Recorder = (*Recorder)(nil)

func NewRecorder(repo Repository, opts RecorderOptions) *Recorder {
	if opts.ThresholdMeters <= 0 {
		opts.ThresholdMeters = DefaultMovementThresholdMeters
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{
		repo:      repo,
		alarm:     opts.Alarm,
		threshold: opts.ThresholdMeters,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

func (r *Recorder) Record(ctx context.Context, facts ingest.Facts) error {
	deviceID := int(facts.DeviceID)

	var prev *Reading
	if facts.Position != nil {
		var err error
		if prev, err = r.repo.GetLastPosition(ctx, deviceID); err != nil {
			return err
		}
	}

	if err := r.repo.InsertReading(ctx, readingFromFacts(facts)); err != nil {
		return err
	}

	if facts.Position == nil {
		return nil
	}
	return r.checkMovement(ctx, deviceID, prev, *facts.Position)
}

func (r *Recorder) checkMovement(ctx context.Context, deviceID int, prev *Reading, cur geoloc.Position) error {
	moved := false
	if prev != nil && prev.Position != nil {
		dist := DistanceMeters(*prev.Position, cur)
		limit := r.threshold + prev.Position.AccuracyMeters + cur.AccuracyMeters
		moved = dist > limit

		if moved {
			r.metrics.ObserveMovementAlarm()
			r.logger.Warn("hive moved",
				"device_id", deviceID,
				"distance_m", dist,
				"limit_m", limit,
				"since", prev.ReceivedAt,
			)
		} else {
			r.logger.Debug("hive in place", "device_id", deviceID, "distance_m", dist, "limit_m", limit)
		}
	}

	if r.alarm == nil {
		return nil
	}
	if err := r.alarm.SetMovementAlarm(ctx, moved); err != nil {
		return fmt.Errorf("publish movement alarm: %w", err)
	}
	return nil
}

// DistanceMeters is the great-circle distance between a and b.
func DistanceMeters(a, b geoloc.Position) float64 {
	pa := geo.NewPoint(a.Latitude, a.Longitude)
	pb := geo.NewPoint(b.Latitude, b.Longitude)
	return pa.GreatCircleDistance(pb) * 1000
}

func readingFromFacts(f ingest.Facts) Reading {
	return Reading{
		DeviceID:       int(f.DeviceID),
		ReceivedAt:     f.ReceivedAt,
		BatteryVolts:   f.BatteryVolts,
		WeightRaw:      f.WeightRaw,
		Position:       f.Position,
		PositionSource: f.PositionSource.String(),
	}
}
