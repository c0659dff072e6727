package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"airwatch/internal/migrate"
	"airwatch/internal/sensor"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := migrate.Run(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestLatest_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	for _, kind := range sensor.Kinds {
		if _, err := repo.Latest(context.Background(), kind); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest(%s) err = %v; want ErrNotFound", kind, err)
		}
	}
}

func TestUpsert_SameHourUpdates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 5, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, sensor.NewDHT22Event(sensor.DHT22{TempC: 20, Humidity: 40}, base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, sensor.NewDHT22Event(sensor.DHT22{TempC: 21.5, Humidity: 41}, base.Add(50*time.Minute))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if n := countRows(t, db, "dht22_readings"); n != 1 {
		t.Fatalf("rows = %d; want 1", n)
	}
	got, err := repo.Latest(ctx, sensor.KindDHT22)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.DHT22 == nil || got.DHT22.TempC != 21.5 || got.DHT22.Humidity != 41 {
		t.Errorf("Latest = %+v; want the second reading", got.DHT22)
	}
	if !got.Timestamp.Equal(base.Add(50 * time.Minute)) {
		t.Errorf("Timestamp = %v; want %v", got.Timestamp, base.Add(50*time.Minute))
	}
}

func TestUpsert_NewHourInserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 59, 59, 0, time.UTC)

	// 10:59:59, 11:00:01, 12:00:01 and the next day each open an hour.
	steps := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Hour + 2*time.Second), base.Add(24 * time.Hour)}
	for i, ts := range steps {
		ev := sensor.NewMQ135Event(sensor.MQ135{Value: float64(100 + i), Quality: "good"}, ts)
		if err := repo.Upsert(ctx, ev); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
	}

	if n := countRows(t, db, "mq135_readings"); n != 4 {
		t.Fatalf("rows = %d; want 4", n)
	}

	items, err := repo.Readings(ctx, sensor.KindMQ135, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("Readings: %v", err)
	}
	want := []float64{103, 102, 101, 100}
	if len(items) != len(want) {
		t.Fatalf("len(items) = %d; want %d", len(items), len(want))
	}
	for i, ev := range items {
		if ev.MQ135.Value != want[i] {
			t.Errorf("items[%d] = %v; want %v", i, ev.MQ135.Value, want[i])
		}
	}
}

func TestUpsert_EndOfHourUpdatesSameRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 59, 59, 0, time.UTC)

	// 11:00:01 and 11:59:59 fall in the same UTC hour.
	steps := []time.Time{base, base.Add(2 * time.Second), base.Add(time.Hour)}
	for i, ts := range steps {
		ev := sensor.NewMQ135Event(sensor.MQ135{Value: float64(100 + i), Quality: "good"}, ts)
		if err := repo.Upsert(ctx, ev); err != nil {
			t.Fatalf("Upsert #%d: %v", i, err)
		}
	}

	if n := countRows(t, db, "mq135_readings"); n != 2 {
		t.Fatalf("rows = %d; want 2", n)
	}
	got, err := repo.Latest(ctx, sensor.KindMQ135)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.MQ135.Value != 102 || !got.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("Latest = %v at %v; want 102 at %v", got.MQ135.Value, got.Timestamp, base.Add(time.Hour))
	}
}

func TestUpsert_HoursAreUTC(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// 10:30 UTC and 12:45 in UTC+2 (10:45 UTC) share a UTC hour.
	a := time.Date(2025, 2, 1, 10, 30, 0, 0, time.UTC)
	b := time.Date(2025, 2, 1, 12, 45, 0, 0, time.FixedZone("CEST", 2*60*60))
	pm := sensor.PM{PM1p0: 1, PM2p5: 2, PM4p0: 3, PM10p0: 4, Quality: "good"}

	if err := repo.Upsert(ctx, sensor.NewPMEvent(pm, a)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	pm.Quality = "poor"
	if err := repo.Upsert(ctx, sensor.NewPMEvent(pm, b)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if n := countRows(t, db, "pm_readings"); n != 1 {
		t.Fatalf("rows = %d; want 1", n)
	}
	got, err := repo.Latest(ctx, sensor.KindPM)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.PM.Quality != "poor" {
		t.Errorf("Quality = %q; want poor", got.PM.Quality)
	}
}

func TestUpsert_KindsAreIndependent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	ts := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, sensor.NewDHT22Event(sensor.DHT22{TempC: 1, Humidity: 2}, ts)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := repo.Latest(ctx, sensor.KindMQ135); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(MQ135) err = %v; want ErrNotFound", err)
	}
}

func TestUpsert_Rejects(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, sensor.Event{Kind: "CO2", Timestamp: time.Now()}); err == nil {
		t.Error("Upsert(unknown kind) err = nil; want error")
	}
	if err := repo.Upsert(ctx, sensor.Event{Kind: sensor.KindDHT22, Timestamp: time.Now()}); err == nil {
		t.Error("Upsert(no payload) err = nil; want error")
	}
}

func TestReadings(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 30, 0, 0, time.UTC)

	for h := range 5 {
		ts := base.Add(time.Duration(h) * time.Hour)
		if err := repo.Upsert(ctx, sensor.NewDHT22Event(sensor.DHT22{TempC: float64(h), Humidity: 50}, ts)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	tests := []struct {
		name     string
		from, to time.Time
		limit    int
		want     []float64
	}{
		{name: "all newest first", limit: 100, want: []float64{4, 3, 2, 1, 0}},
		{name: "limit", limit: 2, want: []float64{4, 3}},
		{name: "from", from: base.Add(3 * time.Hour), limit: 100, want: []float64{4, 3}},
		{name: "to", to: base.Add(time.Hour), limit: 100, want: []float64{1, 0}},
		{name: "window", from: base.Add(time.Hour), to: base.Add(2 * time.Hour), limit: 100, want: []float64{2, 1}},
		{name: "empty window", from: base.Add(10 * time.Hour), limit: 100, want: []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Readings(ctx, sensor.KindDHT22, tt.from, tt.to, tt.limit)
			if err != nil {
				t.Fatalf("Readings: %v", err)
			}
			if got == nil {
				t.Fatal("Readings returned nil slice; want empty")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d; want %d", len(got), len(tt.want))
			}
			for i, ev := range got {
				if ev.DHT22.TempC != tt.want[i] {
					t.Errorf("[%d].TempC = %v; want %v", i, ev.DHT22.TempC, tt.want[i])
				}
			}
		})
	}
}

func TestTimestampsSortAsText(t *testing.T) {
	a := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC).Format(tsLayout)
	b := time.Date(2025, 2, 1, 10, 0, 0, 500, time.UTC).Format(tsLayout)
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
}
