package persistence

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/core"
)

func TestMonitorSnapshotRepo_SaveAndLoad(t *testing.T) {
	repo := NewMonitorSnapshotRepo(t.TempDir(), nil)

	tasks := []core.MonitorTask{
		{TaskID: "task-1", TargetPrice: decimal.NewFromInt(100)},
		{TaskID: "task-2", TargetPrice: decimal.NewFromInt(200)},
	}
	if err := repo.Save(tasks); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
}

func TestMonitorSnapshotRepo_LoadBeforeAnySave(t *testing.T) {
	repo := NewMonitorSnapshotRepo(t.TempDir(), nil)

	snap, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Tasks == nil || len(snap.Tasks) != 0 {
		t.Errorf("expected empty non-nil task slice, got %+v", snap.Tasks)
	}
}

func TestMonitorSnapshotRepo_SaveOverwritesPreviousContent(t *testing.T) {
	repo := NewMonitorSnapshotRepo(t.TempDir(), nil)

	_ = repo.Save([]core.MonitorTask{{TaskID: "a"}, {TaskID: "b"}})
	if err := repo.Save([]core.MonitorTask{{TaskID: "c"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Tasks) != 1 || snap.Tasks[0].TaskID != "c" {
		t.Fatalf("expected snapshot to be fully replaced, got %+v", snap.Tasks)
	}
}
