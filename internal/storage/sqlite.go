// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package storage persists gait database snapshots in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/gait_feedback/internal/gaitdb"
)

//go:embed schema.sql
var schemaSQL string

var ErrSessionNotFound = errors.New("storage: session not found")

// SessionRecord is one stored session.
type SessionRecord struct {
	ID        string
	Patient   string
	StartedAt time.Time
	Snapshot  gaitdb.Snapshot
}

// Store is implemented by SQLiteStore.
type Store interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	LoadSession(ctx context.Context, id string) (SessionRecord, error)
	LatestSession(ctx context.Context, patient string) (SessionRecord, error)
	Close() error
}

type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("session store ready", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveSession writes rec, replacing any earlier save of the same session.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.ID == "" {
		return errors.New("storage: session id is empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap := rec.Snapshot
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, patient, started_at, saved_at, resample_points, decay_rate, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			patient = excluded.patient,
			saved_at = excluded.saved_at,
			resample_points = excluded.resample_points,
			decay_rate = excluded.decay_rate,
			rejected = excluded.rejected`,
		rec.ID, rec.Patient, rec.StartedAt.UnixNano(), time.Now().UnixNano(),
		snap.Params.ResamplePoints, snap.Params.DecayRate, snap.Rejected)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exemplars WHERE session_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear exemplars: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO exemplars (session_id, seq, timestamp, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exemplar insert: %w", err)
	}
	defer stmt.Close()
	for i, f := range snap.Features {
		if _, err := stmt.ExecContext(ctx, rec.ID, i, f.Timestamp, encodeVector(f.Vector)); err != nil {
			return fmt.Errorf("save exemplar %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("session saved",
		zap.String("session", rec.ID),
		zap.String("patient", rec.Patient),
		zap.Int("exemplars", len(snap.Features)),
		zap.Int("rejected", snap.Rejected))
	return nil
}

// LoadSession reads one session by id.
func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient, started_at, resample_points, decay_rate, rejected
		FROM sessions WHERE id = ?`, id)
	return s.load(ctx, row)
}

// LatestSession reads the most recently started session of a patient.
func (s *SQLiteStore) LatestSession(ctx context.Context, patient string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient, started_at, resample_points, decay_rate, rejected
		FROM sessions WHERE patient = ?
		ORDER BY started_at DESC LIMIT 1`, patient)
	return s.load(ctx, row)
}

func (s *SQLiteStore) load(ctx context.Context, row *sql.Row) (SessionRecord, error) {
	var (
		rec     SessionRecord
		started int64
	)
	err := row.Scan(&rec.ID, &rec.Patient, &started,
		&rec.Snapshot.Params.ResamplePoints, &rec.Snapshot.Params.DecayRate, &rec.Snapshot.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	rec.StartedAt = time.Unix(0, started).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, vector FROM exemplars
		WHERE session_id = ? ORDER BY seq`, rec.ID)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load exemplars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f    gaitdb.Feature
			blob []byte
		)
		if err := rows.Scan(&f.Timestamp, &blob); err != nil {
			return SessionRecord{}, fmt.Errorf("scan exemplar: %w", err)
		}
		if f.Vector, err = decodeVector(blob); err != nil {
			return SessionRecord{}, err
		}
		rec.Snapshot.Features = append(rec.Snapshot.Features, f)
	}
	if err := rows.Err(); err != nil {
		return SessionRecord{}, fmt.Errorf("iterate exemplars: %w", err)
	}
	return rec, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("storage: exemplar blob of %d bytes is not a float64 vector", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v, nil
}
