package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"airwatch/internal/sensor"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// tsLayout is fixed width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

var ErrNotFound = errors.New("no readings")

// SensorRepository keeps one row per sensor per UTC hour.
type SensorRepository interface {
	// Upsert stores ev. If the newest row for ev's kind falls in the same UTC
	// hour as ev.Timestamp it is overwritten, otherwise a new row is added.
	Upsert(ctx context.Context, ev sensor.Event) error
	// Latest returns the newest row for kind or ErrNotFound.
	Latest(ctx context.Context, kind sensor.Kind) (sensor.Event, error)
	// Readings returns rows newest first. Zero from/to leave that side open.
	Readings(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]sensor.Event, error)
}

type table struct {
	insert, update, latest, rng string
}

type repositoryImpl struct {
	db     *sql.DB
	tables map[sensor.Kind]table
}

func NewRepository(db *sql.DB) SensorRepository {
	return &repositoryImpl{
		db: db,
		tables: map[sensor.Kind]table{
			sensor.KindDHT22: loadTable("dht22"),
			sensor.KindMQ135: loadTable("mq135"),
			sensor.KindPM:    loadTable("pm"),
		},
	}
}

func loadTable(prefix string) table {
	read := func(name string) string {
		b, err := sqlFS.ReadFile("sql/" + prefix + "-" + name + ".sql")
		if err != nil {
			panic(fmt.Sprintf("repository: missing embedded query %s-%s: %v", prefix, name, err))
		}
		return string(b)
	}
	return table{
		insert: read("insert"),
		update: read("update"),
		latest: read("latest"),
		rng:    read("range"),
	}
}

func (r *repositoryImpl) table(kind sensor.Kind) (table, error) {
	t, ok := r.tables[kind]
	if !ok {
		return table{}, fmt.Errorf("unknown sensor_type %q", kind)
	}
	return t, nil
}

func (r *repositoryImpl) Upsert(ctx context.Context, ev sensor.Event) error {
	t, err := r.table(ev.Kind)
	if err != nil {
		return err
	}
	values, err := columns(ev)
	if err != nil {
		return err
	}
	ts := ev.Timestamp.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert %s: %w", ev.Kind, err)
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := scanOne(ev.Kind, tx.QueryRowContext(ctx, t.latest))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("latest %s: %w", ev.Kind, err)
	}

	args := append([]any{ts.Format(tsLayout)}, values...)
	if err == nil && sameHour(latest.Timestamp, ts) {
		_, err = tx.ExecContext(ctx, t.update, append(args, latest.id)...)
	} else {
		_, err = tx.ExecContext(ctx, t.insert, args...)
	}
	if err != nil {
		return fmt.Errorf("upsert %s: %w", ev.Kind, err)
	}
	return tx.Commit()
}

func (r *repositoryImpl) Latest(ctx context.Context, kind sensor.Kind) (sensor.Event, error) {
	t, err := r.table(kind)
	if err != nil {
		return sensor.Event{}, err
	}
	row, err := scanOne(kind, r.db.QueryRowContext(ctx, t.latest))
	if err != nil {
		return sensor.Event{}, err
	}
	return row.Event, nil
}

func (r *repositoryImpl) Readings(ctx context.Context, kind sensor.Kind, from, to time.Time, limit int) ([]sensor.Event, error) {
	t, err := r.table(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, t.rng, formatBound(from), formatBound(to), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err, "sensor_type", string(kind))
		}
	}()

	out := []sensor.Event{}
	for rows.Next() {
		row, err := scanRow(kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row.Event)
	}
	return out, rows.Err()
}

func sameHour(a, b time.Time) bool {
	return a.UTC().Truncate(time.Hour).Equal(b.UTC().Truncate(time.Hour))
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(tsLayout)
}

// columns returns the payload columns in table order.
func columns(ev sensor.Event) ([]any, error) {
	switch {
	case ev.Kind == sensor.KindDHT22 && ev.DHT22 != nil:
		return []any{ev.DHT22.TempC, ev.DHT22.Humidity}, nil
	case ev.Kind == sensor.KindMQ135 && ev.MQ135 != nil:
		return []any{ev.MQ135.Value, ev.MQ135.Quality}, nil
	case ev.Kind == sensor.KindPM && ev.PM != nil:
		p := ev.PM
		return []any{p.PM1p0, p.PM2p5, p.PM4p0, p.PM10p0, p.Quality}, nil
	}
	return nil, fmt.Errorf("event %q has no payload", ev.Kind)
}

type storedRow struct {
	id int64
	sensor.Event
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(kind sensor.Kind, row *sql.Row) (storedRow, error) {
	r, err := scanRow(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return storedRow{}, ErrNotFound
	}
	return r, err
}

func scanRow(kind sensor.Kind, s scanner) (storedRow, error) {
	var (
		out storedRow
		ts  string
		err error
	)
	switch kind {
	case sensor.KindDHT22:
		var v sensor.DHT22
		err = s.Scan(&out.id, &ts, &v.TempC, &v.Humidity)
		out.Event = sensor.NewDHT22Event(v, time.Time{})
	case sensor.KindMQ135:
		var v sensor.MQ135
		err = s.Scan(&out.id, &ts, &v.Value, &v.Quality)
		out.Event = sensor.NewMQ135Event(v, time.Time{})
	case sensor.KindPM:
		var v sensor.PM
		err = s.Scan(&out.id, &ts, &v.PM1p0, &v.PM2p5, &v.PM4p0, &v.PM10p0, &v.Quality)
		out.Event = sensor.NewPMEvent(v, time.Time{})
	default:
		return storedRow{}, fmt.Errorf("unknown sensor_type %q", kind)
	}
	if err != nil {
		return storedRow{}, err
	}

	out.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return storedRow{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	return out, nil
}
