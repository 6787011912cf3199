package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-latest-readings.sql
var getLatestReadingsSQL string

//go:embed sql/get-last-position.sql
var getLastPositionSQL string

// Fixed-width UTC timestamps keep lexical order equal to time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Reading is one forwarded uplink as stored in history.
type Reading struct {
	DeviceID       int              `json:"device_id"`
	ReceivedAt     time.Time        `json:"received_at"`
	BatteryVolts   float64          `json:"battery_v"`
	WeightRaw      uint32           `json:"weight_raw"`
	Position       *geoloc.Position `json:"position,omitempty"`
	PositionSource string           `json:"position_source"`
}

type Repository interface {
	InsertReading(ctx context.Context, r Reading) error
	GetLatestReadings(ctx context.Context, deviceID int, limit int) ([]Reading, error)
	// GetLastPosition returns the newest reading carrying a position, or nil if none.
	GetLastPosition(ctx context.Context, deviceID int) (*Reading, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertReading(ctx context.Context, rec Reading) error {
	var lat, lon, acc any
	if rec.Position != nil {
		lat = rec.Position.Latitude
		lon = rec.Position.Longitude
		acc = rec.Position.AccuracyMeters
	}

	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rec.DeviceID,
		rec.ReceivedAt.UTC().Format(timestampLayout),
		rec.BatteryVolts,
		int64(rec.WeightRaw),
		lat, lon, acc,
		rec.PositionSource,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetLatestReadings(ctx context.Context, deviceID int, limit int) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, getLatestReadingsSQL, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest readings rows", "error", err)
		}
	}()

	out := []Reading{}
	for rows.Next() {
		rec, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetLastPosition(ctx context.Context, deviceID int) (*Reading, error) {
	rec, err := scanReading(r.db.QueryRowContext(ctx, getLastPositionSQL, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last position: %w", err)
	}
	return &rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (Reading, error) {
	var (
		rec           Reading
		ts            string
		weight        int64
		lat, lon, acc sql.NullFloat64
	)
	if err := s.Scan(&rec.DeviceID, &ts, &rec.BatteryVolts, &weight, &lat, &lon, &acc, &rec.PositionSource); err != nil {
		return Reading{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Reading{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	rec.ReceivedAt = t
	rec.WeightRaw = uint32(weight)

	if lat.Valid && lon.Valid {
		rec.Position = &geoloc.Position{
			Latitude:       lat.Float64,
			Longitude:      lon.Float64,
			AccuracyMeters: acc.Float64,
		}
	}
	return rec, nil
}
