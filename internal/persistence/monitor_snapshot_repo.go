package persistence

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/peter29ljf/bybitoption/internal/core"
)

// MonitorSnapshot is the on-disk image of the Price Monitor's active
// tasks, rewritten after every mutating transition (add/remove/trigger/
// expire). The listing and get endpoints do not read it; they read the
// monitor's in-memory task map.
type MonitorSnapshot struct {
	UpdatedAt time.Time          `json:"updated_at"`
	Tasks     []core.MonitorTask `json:"tasks"`
}

// MonitorSnapshotRepo owns monitor/active_tasks.json. It is write-mostly:
// the Price Monitor Service is the only writer, and Save is called after
// every active-task-map mutation; Load is called once, when the Service
// starts, to restore the active tasks.
type MonitorSnapshotRepo struct {
	path   string
	mu     sync.Mutex
	mirror *SQLiteSnapshotMirror // optional secondary sink, may be nil
}

// NewMonitorSnapshotRepo opens monitor/active_tasks.json under dataDir.
// mirror may be nil to skip the optional SQLite secondary sink.
func NewMonitorSnapshotRepo(dataDir string, mirror *SQLiteSnapshotMirror) *MonitorSnapshotRepo {
	return &MonitorSnapshotRepo{
		path:   filepath.Join(dataDir, "monitor", "active_tasks.json"),
		mirror: mirror,
	}
}

// Save atomically replaces the snapshot document with the given tasks,
// then mirrors it to SQLite if a mirror is configured. A mirror failure
// is returned as Save's error, after the JSON file has been written.
func (r *MonitorSnapshotRepo) Save(tasks []core.MonitorTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := MonitorSnapshot{
		UpdatedAt: time.Now().UTC(),
		Tasks:     tasks,
	}
	if err := writeJSONAtomic(r.path, snap); err != nil {
		return err
	}
	if r.mirror != nil {
		return r.mirror.Save(snap)
	}
	return nil
}

// Load returns the last-written snapshot, or a zero-value snapshot with
// an empty task list if none has been written yet.
func (r *MonitorSnapshotRepo) Load() (MonitorSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap MonitorSnapshot
	if _, err := readJSON(r.path, &snap); err != nil {
		return MonitorSnapshot{}, err
	}
	if snap.Tasks == nil {
		snap.Tasks = []core.MonitorTask{}
	}
	return snap, nil
}
