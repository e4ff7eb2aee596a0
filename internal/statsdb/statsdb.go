// Package statsdb persists per-session throughput statistics to a
// SQLite database so viewing sessions can be compared after the fact.
// The schema is managed by golang-migrate from embedded migration
// files.
package statsdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/eventcam/internal/evcodec"
	"github.com/banshee-data/eventcam/internal/stats"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the stats database at path and brings
// the schema up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database %s: %w", path, err)
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session is one recorded viewing session.
type Session struct {
	ID          string
	Source      string
	Transport   string
	Width       int
	Height      int
	StartedAt   time.Time
	EndedAt     sql.NullTime
	TotalFrames int64
	TotalEvents int64
}

// Sample is one periodic throughput reading within a session.
type Sample struct {
	SessionID       string
	SampledAt       time.Time
	EventsPerSecond float64
	FramesPerSecond float64
	TotalFrames     int64
	TotalEvents     int64
}

// BeginSession inserts a new session row and returns its generated ID.
func (db *DB) BeginSession(source, transport string, geom evcodec.Geometry) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, source, transport, width, height, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, transport, geom.Width, geom.Height, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// RecordSample stores one throughput reading for the session.
func (db *DB) RecordSample(sessionID string, s stats.Snapshot) error {
	_, err := db.Exec(
		`INSERT INTO rate_samples (session_id, sampled_at, events_per_sec, frames_per_sec, total_frames, total_events)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, time.Now().UTC(), s.EventsPerSecond, s.FramesPerSecond, s.TotalFrames, s.TotalEvents)
	if err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time and final totals.
func (db *DB) EndSession(sessionID string, s stats.Snapshot) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ?, total_frames = ?, total_events = ? WHERE session_id = ?`,
		time.Now().UTC(), s.TotalFrames, s.TotalEvents, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown session %s", sessionID)
	}
	return nil
}

// SessionByID fetches one session row.
func (db *DB) SessionByID(sessionID string) (Session, error) {
	var s Session
	err := db.QueryRow(
		`SELECT session_id, source, transport, width, height, started_at, ended_at, total_frames, total_events
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&s.ID, &s.Source, &s.Transport, &s.Width, &s.Height, &s.StartedAt, &s.EndedAt, &s.TotalFrames, &s.TotalEvents)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return s, nil
}

// RecentSessions lists the most recently started sessions.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, source, transport, width, height, started_at, ended_at, total_frames, total_events
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Source, &s.Transport, &s.Width, &s.Height,
			&s.StartedAt, &s.EndedAt, &s.TotalFrames, &s.TotalEvents); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Samples returns the session's throughput readings in time order.
func (db *DB) Samples(sessionID string) ([]Sample, error) {
	rows, err := db.Query(
		`SELECT session_id, sampled_at, events_per_sec, frames_per_sec, total_frames, total_events
		 FROM rate_samples WHERE session_id = ? ORDER BY sampled_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.SessionID, &s.SampledAt, &s.EventsPerSecond,
			&s.FramesPerSecond, &s.TotalFrames, &s.TotalEvents); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
