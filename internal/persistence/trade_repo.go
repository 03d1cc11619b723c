package persistence

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/peter29ljf/bybitoption/internal/core"
)

type tradesDocument struct {
	Trades []core.TradeRecord `json:"trades"`
}

// TradeRepo is the append-only JSON repository for trades.json. Reads
// may sort by timestamp descending and apply a limit; the document
// itself is never rewritten out of append order.
type TradeRepo struct {
	path string
	mu   sync.Mutex
}

// NewTradeRepo opens trades.json under dataDir.
func NewTradeRepo(dataDir string) *TradeRepo {
	return &TradeRepo{path: filepath.Join(dataDir, "trades.json")}
}

// Append writes one immutable trade record.
func (r *TradeRepo) Append(record core.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc tradesDocument
	if _, err := readJSON(r.path, &doc); err != nil {
		return err
	}
	doc.Trades = append(doc.Trades, record)
	return writeJSONAtomic(r.path, doc)
}

// List returns trades sorted by CreatedAt descending, optionally
// truncated to the first limit entries (limit <= 0 means no truncation).
func (r *TradeRepo) List(limit int) ([]core.TradeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc tradesDocument
	if _, err := readJSON(r.path, &doc); err != nil {
		return nil, err
	}

	trades := make([]core.TradeRecord, len(doc.Trades))
	copy(trades, doc.Trades)
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})

	if limit > 0 && limit < len(trades) {
		trades = trades[:limit]
	}
	return trades, nil
}
