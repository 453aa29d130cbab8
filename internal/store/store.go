// Package store persists sweeps and their measurements in SQLite and exports
// them as tables.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rjboer/noisemap/internal/model"
)

// ErrNotFound is returned when a sweep id is unknown.
var ErrNotFound = errors.New("sweep not found")

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	sweep_id TEXT PRIMARY KEY,
	frequency DOUBLE,
	total INTEGER,
	state TEXT,
	error TEXT,
	started_ns BIGINT,
	finished_ns BIGINT
);
CREATE TABLE IF NOT EXISTS measurements (
	sweep_id TEXT NOT NULL,
	point INTEGER NOT NULL,
	target_azimuth DOUBLE,
	target_elevation DOUBLE,
	azimuth DOUBLE,
	elevation DOUBLE,
	timestamp_ns BIGINT,
	frequency_start DOUBLE,
	frequency_stop DOUBLE,
	frequency_step DOUBLE,
	samples INTEGER,
	levels TEXT,
	PRIMARY KEY (sweep_id, point),
	FOREIGN KEY (sweep_id) REFERENCES sweeps(sweep_id)
);
`

// DB is a measurement database. It implements the sweep recorder.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db}, nil
}

// Sweep is the stored summary of one sweep.
type Sweep struct {
	ID        uuid.UUID
	Frequency float64
	Total     int
	State     string
	Error     string
	Started   time.Time
	Finished  time.Time
}

func (db *DB) BeginSweep(ctx context.Context, id uuid.UUID, frequency float64, total int, started time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO sweeps (sweep_id, frequency, total, state, error, started_ns, finished_ns) VALUES (?, ?, ?, 'measuring', '', ?, 0)",
		id.String(), frequency, total, started.UnixNano())
	return err
}

func (db *DB) RecordMeasurement(ctx context.Context, id uuid.UUID, index int, m model.Measurement) error {
	levels, err := json.Marshal(m.Sample.Levels)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO measurements (
		sweep_id, point, target_azimuth, target_elevation, azimuth, elevation,
		timestamp_ns, frequency_start, frequency_stop, frequency_step, samples, levels
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), index,
		m.Target.Azimuth, m.Target.Elevation, m.Achieved.Azimuth, m.Achieved.Elevation,
		m.Sample.Timestamp.UnixNano(),
		m.Sample.FrequencyStart, m.Sample.FrequencyStop, m.Sample.FrequencyStep,
		m.Sample.SampleCount, string(levels))
	return err
}

func (db *DB) FinishSweep(ctx context.Context, id uuid.UUID, state string, finished time.Time, sweepErr error) error {
	msg := ""
	if sweepErr != nil {
		msg = sweepErr.Error()
	}
	res, err := db.ExecContext(ctx,
		"UPDATE sweeps SET state = ?, error = ?, finished_ns = ? WHERE sweep_id = ?",
		state, msg, finished.UnixNano(), id.String())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish sweep %s: %w", id, ErrNotFound)
	}
	return nil
}

// Sweeps lists stored sweeps, newest first.
func (db *DB) Sweeps(ctx context.Context) ([]Sweep, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT sweep_id, frequency, total, state, error, started_ns, finished_ns FROM sweeps ORDER BY started_ns DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sweeps []Sweep
	for rows.Next() {
		s, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, s)
	}
	return sweeps, rows.Err()
}

// Sweep loads the summary of one sweep.
func (db *DB) Sweep(ctx context.Context, id uuid.UUID) (Sweep, error) {
	row := db.QueryRowContext(ctx,
		"SELECT sweep_id, frequency, total, state, error, started_ns, finished_ns FROM sweeps WHERE sweep_id = ?", id.String())
	s, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sweep{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return s, err
}

// Latest returns the most recently started sweep.
func (db *DB) Latest(ctx context.Context) (Sweep, error) {
	sweeps, err := db.Sweeps(ctx)
	if err != nil {
		return Sweep{}, err
	}
	if len(sweeps) == 0 {
		return Sweep{}, ErrNotFound
	}
	return sweeps[0], nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(s scanner) (Sweep, error) {
	var (
		id                string
		sw                Sweep
		started, finished int64
	)
	if err := s.Scan(&id, &sw.Frequency, &sw.Total, &sw.State, &sw.Error, &started, &finished); err != nil {
		return Sweep{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Sweep{}, fmt.Errorf("stored sweep id %q: %w", id, err)
	}
	sw.ID = parsed
	sw.Started = time.Unix(0, started)
	if finished > 0 {
		sw.Finished = time.Unix(0, finished)
	}
	return sw, nil
}

// Measurements loads the measurements of a sweep in path order.
func (db *DB) Measurements(ctx context.Context, id uuid.UUID) ([]model.Measurement, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		target_azimuth, target_elevation, azimuth, elevation,
		timestamp_ns, frequency_start, frequency_stop, frequency_step, samples, levels
	FROM measurements WHERE sweep_id = ? ORDER BY point`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Measurement
	for rows.Next() {
		var (
			m      model.Measurement
			ts     int64
			levels string
		)
		if err := rows.Scan(
			&m.Target.Azimuth, &m.Target.Elevation, &m.Achieved.Azimuth, &m.Achieved.Elevation,
			&ts, &m.Sample.FrequencyStart, &m.Sample.FrequencyStop, &m.Sample.FrequencyStep,
			&m.Sample.SampleCount, &levels,
		); err != nil {
			return nil, err
		}
		m.Sample.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(levels), &m.Sample.Levels); err != nil {
			return nil, fmt.Errorf("decode levels: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
