package persistence

import (
	"testing"
	"time"

	"github.com/peter29ljf/bybitoption/internal/core"
)

func TestTradeRepo_AppendAndList(t *testing.T) {
	repo := NewTradeRepo(t.TempDir())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		rec := core.TradeRecord{
			ID:        id,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Append(rec); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(all))
	}
	// Most recent first.
	if all[0].ID != "t3" || all[2].ID != "t1" {
		t.Errorf("expected descending order by CreatedAt, got %v, %v, %v", all[0].ID, all[1].ID, all[2].ID)
	}
}

func TestTradeRepo_ListRespectsLimit(t *testing.T) {
	repo := NewTradeRepo(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_ = repo.Append(core.TradeRecord{ID: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(limited))
	}
}

func TestTradeRepo_ListEmpty(t *testing.T) {
	repo := NewTradeRepo(t.TempDir())
	trades, err := repo.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected empty list, got %d", len(trades))
	}
}
