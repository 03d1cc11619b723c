package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSnapshotMirror is an optional secondary sink for the monitor
// snapshot: WAL mode for crash recovery, a single-row table holding the
// latest document plus a
// SHA-256 checksum verified on every read. The JSON file remains the
// primary store; this mirror exists purely so operators can inspect the
// latest snapshot with standard SQLite tooling without parsing the JSON
// file. Each save overwrites the single row, so no history is kept.
type SQLiteSnapshotMirror struct {
	db *sql.DB
}

// NewSQLiteSnapshotMirror opens (and migrates) the mirror database at
// dbPath.
func NewSQLiteSnapshotMirror(dbPath string) (*SQLiteSnapshotMirror, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("persistence: open snapshot mirror: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persistence: ping snapshot mirror: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("persistence: enable WAL on snapshot mirror: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS monitor_snapshot (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL,
		checksum BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("persistence: create snapshot mirror schema: %w", err)
	}
	return &SQLiteSnapshotMirror{db: db}, nil
}

// Save writes snap into the single-row mirror table inside a
// serializable transaction, with a checksum computed over the marshaled
// JSON.
func (m *SQLiteSnapshotMirror) Save(snap MonitorSnapshot) error {
	tx, err := m.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("persistence: begin snapshot mirror tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot for mirror: %w", err)
	}

	var roundtrip MonitorSnapshot
	if err := json.Unmarshal(data, &roundtrip); err != nil {
		return fmt.Errorf("persistence: snapshot mirror round-trip validation failed: %w", err)
	}

	checksum := sha256.Sum256(data)
	const upsert = `INSERT OR REPLACE INTO monitor_snapshot (id, data, checksum, updated_at) VALUES (1, ?, ?, ?)`
	if _, err := tx.Exec(upsert, string(data), checksum[:], time.Now().UnixNano()); err != nil {
		return fmt.Errorf("persistence: write snapshot mirror: %w", err)
	}

	return tx.Commit()
}

// Load reads the mirrored snapshot back, verifying the stored checksum.
// A never-written mirror returns a zero-value snapshot and a nil error.
func (m *SQLiteSnapshotMirror) Load() (MonitorSnapshot, error) {
	const query = `SELECT data, checksum FROM monitor_snapshot WHERE id = 1`
	var data string
	var storedChecksum []byte
	err := m.db.QueryRow(query).Scan(&data, &storedChecksum)
	if err != nil {
		if err == sql.ErrNoRows {
			return MonitorSnapshot{}, nil
		}
		return MonitorSnapshot{}, fmt.Errorf("persistence: read snapshot mirror: %w", err)
	}

	computed := sha256.Sum256([]byte(data))
	if len(storedChecksum) != len(computed) {
		return MonitorSnapshot{}, fmt.Errorf("persistence: snapshot mirror checksum length mismatch")
	}
	for i := range computed {
		if storedChecksum[i] != computed[i] {
			return MonitorSnapshot{}, fmt.Errorf("persistence: snapshot mirror checksum mismatch, data corruption detected")
		}
	}

	var snap MonitorSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return MonitorSnapshot{}, fmt.Errorf("persistence: unmarshal snapshot mirror: %w", err)
	}
	return snap, nil
}

// Close closes the underlying database handle.
func (m *SQLiteSnapshotMirror) Close() error {
	return m.db.Close()
}
