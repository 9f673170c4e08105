// Package audit keeps a non-authoritative local record of session
// lifecycle events (created, stopped, evicted, orphan-reaped) for
// operational diagnosis. It is never consulted by admission or eviction
// decisions and starts empty on every restart — it does not reintroduce
// persisted authoritative state.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"
)

// Event is one session lifecycle record.
type Event string

const (
	EventCreated      Event = "created"
	EventStopped      Event = "stopped"
	EventEvicted      Event = "evicted"
	EventOrphanReaped Event = "orphan_reaped"
)

// Log is a SQLite-backed append-only audit trail.
type Log struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open creates (or opens) the audit database at path. Pass ":memory:" for
// an ephemeral log.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite db: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		event TEXT NOT NULL,
		detail BLOB,
		occurred_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		enc.Close()
		return nil, fmt.Errorf("audit: init decompressor: %w", err)
	}

	return &Log{db: db, encoder: enc, decoder: dec}, nil
}

// Record appends one event. detail (e.g. a stdout/stderr blob) is
// zstd-compressed before storage to bound audit-db growth on chatty
// executions.
func (l *Log) Record(sessionID string, event Event, detail string, at time.Time) error {
	compressed := l.encoder.EncodeAll([]byte(detail), nil)
	_, err := l.db.Exec(
		`INSERT INTO session_events (session_id, event, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(event), compressed, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// EventRecord is one decoded row returned by Recent.
type EventRecord struct {
	SessionID  string
	Event      Event
	Detail     string
	OccurredAt time.Time
}

// Recent returns the most recent n events, newest first.
func (l *Log) Recent(n int) ([]EventRecord, error) {
	rows, err := l.db.Query(
		`SELECT session_id, event, detail, occurred_at FROM session_events ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var sessionID, event string
		var compressed []byte
		var occurredAtUnix int64
		if err := rows.Scan(&sessionID, &event, &compressed, &occurredAtUnix); err != nil {
			return nil, fmt.Errorf("audit: scan event row: %w", err)
		}
		detail, err := l.decompress(compressed)
		if err != nil {
			return nil, err
		}
		out = append(out, EventRecord{
			SessionID:  sessionID,
			Event:      Event(event),
			Detail:     detail,
			OccurredAt: time.Unix(occurredAtUnix, 0),
		})
	}
	return out, rows.Err()
}

func (l *Log) decompress(compressed []byte) (string, error) {
	detail, err := l.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("audit: decompress detail: %w", err)
	}
	return string(detail), nil
}

// Close releases the underlying database handle and compressor.
func (l *Log) Close() error {
	l.encoder.Close()
	l.decoder.Close()
	return l.db.Close()
}
