package persistence

import (
	"errors"
	"testing"

	"github.com/peter29ljf/bybitoption/internal/core"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
)

func newStrategy(id string) core.TradingStrategy {
	return core.TradingStrategy{
		StrategyID: id,
		Status:     core.StrategyRunning,
		Levels: []core.StrategyLevel{
			{LevelID: "lvl-1", Status: core.LevelPending},
		},
	}
}

func TestStrategyRepo_UpsertAndGet(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())

	if err := repo.Upsert(newStrategy("s1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := repo.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StrategyID != "s1" {
		t.Errorf("got id %q", got.StrategyID)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}
}

func TestStrategyRepo_UpsertReplacesExisting(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())
	_ = repo.Upsert(newStrategy("s1"))

	updated := newStrategy("s1")
	updated.Status = core.StrategyPaused
	if err := repo.Upsert(updated); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	all, err := repo.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(all))
	}
	if all[0].Status != core.StrategyPaused {
		t.Errorf("expected replaced status, got %q", all[0].Status)
	}
}

func TestStrategyRepo_GetNotFound(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())
	_, err := repo.Get("missing")
	if !errors.Is(err, apperrors.ErrStrategyNotFound) {
		t.Errorf("expected ErrStrategyNotFound, got %v", err)
	}
}

func TestStrategyRepo_Delete(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())
	_ = repo.Upsert(newStrategy("s1"))

	if err := repo.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get("s1"); !errors.Is(err, apperrors.ErrStrategyNotFound) {
		t.Errorf("expected deleted strategy to be gone, got %v", err)
	}
	if err := repo.Delete("s1"); !errors.Is(err, apperrors.ErrStrategyNotFound) {
		t.Errorf("expected second delete to fail with ErrStrategyNotFound, got %v", err)
	}
}

func TestStrategyRepo_MutateLevel(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())
	_ = repo.Upsert(newStrategy("s1"))

	result, err := repo.MutateLevel("s1", "lvl-1", func(level *core.StrategyLevel) error {
		level.Status = core.LevelMonitoring
		return nil
	})
	if err != nil {
		t.Fatalf("MutateLevel: %v", err)
	}
	lvl := result.Level("lvl-1")
	if lvl == nil || lvl.Status != core.LevelMonitoring {
		t.Fatalf("expected level status monitoring, got %+v", lvl)
	}

	// Reload from disk to confirm persistence, not just the in-memory copy.
	reloaded, err := repo.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l := reloaded.Level("lvl-1"); l == nil || l.Status != core.LevelMonitoring {
		t.Fatalf("expected persisted level status monitoring, got %+v", l)
	}
}

func TestStrategyRepo_MutateLevelMissingLevel(t *testing.T) {
	repo := NewStrategyRepo(t.TempDir())
	_ = repo.Upsert(newStrategy("s1"))

	_, err := repo.MutateLevel("s1", "no-such-level", func(*core.StrategyLevel) error { return nil })
	if !errors.Is(err, apperrors.ErrLevelNotFound) {
		t.Errorf("expected ErrLevelNotFound, got %v", err)
	}
}
