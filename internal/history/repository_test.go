package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pcurt/hivesense2mqtt/internal/db/migrate"
	"github.com/pcurt/hivesense2mqtt/internal/geoloc"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every pooled connection would otherwise get its own empty in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if err := migrate.Run(context.Background(), db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func at(hour int) time.Time {
	return time.Date(2026, 4, 1, hour, 0, 0, 0, time.UTC)
}

func TestNewRepository(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	if repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestGetLatestReadings_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	readings, err := repo.GetLatestReadings(context.Background(), 42, 100)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if readings == nil || len(readings) != 0 {
		t.Fatalf("GetLatestReadings: got %v, want empty non-nil slice", readings)
	}
}

func TestInsertAndGetLatestReadings(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	inserts := []Reading{
		{DeviceID: 42, ReceivedAt: at(12), BatteryVolts: 3.07, WeightRaw: 1000, PositionSource: "unavailable"},
		{DeviceID: 42, ReceivedAt: at(14), BatteryVolts: 3.05, WeightRaw: 1200, PositionSource: "service",
			Position: &geoloc.Position{Latitude: 48.11, Longitude: -1.68, AccuracyMeters: 30}},
		{DeviceID: 42, ReceivedAt: at(13), BatteryVolts: 3.06, WeightRaw: 1100, PositionSource: "network_hint",
			Position: &geoloc.Position{Latitude: 48.1, Longitude: -1.6, AccuracyMeters: 2000}},
		{DeviceID: 7, ReceivedAt: at(15), BatteryVolts: 3.9, WeightRaw: 1, PositionSource: "unavailable"},
	}
	for _, r := range inserts {
		if err := repo.InsertReading(ctx, r); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	readings, err := repo.GetLatestReadings(ctx, 42, 100)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("GetLatestReadings: got %d readings, want 3", len(readings))
	}
	// Order: newest first (14:00, 13:00, 12:00)
	if readings[0].WeightRaw != 1200 || readings[1].WeightRaw != 1100 || readings[2].WeightRaw != 1000 {
		t.Errorf("order: got weights %d, %d, %d", readings[0].WeightRaw, readings[1].WeightRaw, readings[2].WeightRaw)
	}
	if !readings[0].ReceivedAt.Equal(at(14)) {
		t.Errorf("ReceivedAt = %v, want %v", readings[0].ReceivedAt, at(14))
	}
	if readings[0].Position == nil || readings[0].Position.AccuracyMeters != 30 {
		t.Errorf("Position = %+v, want accuracy 30", readings[0].Position)
	}
	if readings[2].Position != nil {
		t.Errorf("reading without fix has Position %+v", readings[2].Position)
	}
	if readings[1].PositionSource != "network_hint" {
		t.Errorf("PositionSource = %q, want network_hint", readings[1].PositionSource)
	}
}

func TestGetLatestReadings_RespectsLimit(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for h := 10; h < 15; h++ {
		if err := repo.InsertReading(ctx, Reading{DeviceID: 1, ReceivedAt: at(h), WeightRaw: uint32(h), PositionSource: "unavailable"}); err != nil {
			t.Fatalf("InsertReading: %v", err)
		}
	}

	readings, err := repo.GetLatestReadings(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetLatestReadings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("GetLatestReadings: got %d readings, want 2", len(readings))
	}
	if readings[0].WeightRaw != 14 || readings[1].WeightRaw != 13 {
		t.Errorf("got weights %d, %d, want 14, 13", readings[0].WeightRaw, readings[1].WeightRaw)
	}
}

func TestGetLastPosition(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	last, err := repo.GetLastPosition(ctx, 42)
	if err != nil {
		t.Fatalf("GetLastPosition: %v", err)
	}
	if last != nil {
		t.Fatalf("GetLastPosition on empty table = %+v, want nil", last)
	}

	_ = repo.InsertReading(ctx, Reading{DeviceID: 42, ReceivedAt: at(10), PositionSource: "service",
		Position: &geoloc.Position{Latitude: 45, Longitude: 5, AccuracyMeters: 20}})
	_ = repo.InsertReading(ctx, Reading{DeviceID: 42, ReceivedAt: at(11), PositionSource: "unavailable"})

	last, err = repo.GetLastPosition(ctx, 42)
	if err != nil {
		t.Fatalf("GetLastPosition: %v", err)
	}
	if last == nil || last.Position == nil {
		t.Fatal("GetLastPosition = nil, want the 10:00 fix")
	}
	if last.Position.Latitude != 45 || !last.ReceivedAt.Equal(at(10)) {
		t.Errorf("GetLastPosition = %+v", last)
	}
}
