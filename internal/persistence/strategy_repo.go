package persistence

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/peter29ljf/bybitoption/internal/core"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
)

type strategiesDocument struct {
	Strategies []core.TradingStrategy `json:"strategies"`
}

// StrategyRepo is the single-writer JSON repository for strategies.json.
// Every mutation re-reads the whole document, applies the change and
// rewrites it atomically, following the same load-whole-file/
// save-whole-file convention as the rest of internal/persistence; there
// is no long-lived in-memory copy to drift from disk.
type StrategyRepo struct {
	path string
	mu   sync.Mutex
}

// NewStrategyRepo returns a repository for strategies.json under dataDir.
// It does not touch the disk; a missing file reads as an empty document.
func NewStrategyRepo(dataDir string) *StrategyRepo {
	return &StrategyRepo{path: filepath.Join(dataDir, "strategies.json")}
}

func (r *StrategyRepo) load() (strategiesDocument, error) {
	var doc strategiesDocument
	if _, err := readJSON(r.path, &doc); err != nil {
		return strategiesDocument{}, err
	}
	if doc.Strategies == nil {
		doc.Strategies = []core.TradingStrategy{}
	}
	return doc, nil
}

// List returns every persisted strategy.
func (r *StrategyRepo) List() ([]core.TradingStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	return doc.Strategies, nil
}

// Get returns one strategy by id.
func (r *StrategyRepo) Get(strategyID string) (*core.TradingStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Strategies {
		if doc.Strategies[i].StrategyID == strategyID {
			s := doc.Strategies[i]
			return &s, nil
		}
	}
	return nil, apperrors.ErrStrategyNotFound
}

// Upsert inserts or replaces a strategy by id.
func (r *StrategyRepo) Upsert(strategy core.TradingStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return err
	}
	strategy.UpdatedAt = time.Now().UTC()
	replaced := false
	for i := range doc.Strategies {
		if doc.Strategies[i].StrategyID == strategy.StrategyID {
			doc.Strategies[i] = strategy
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Strategies = append(doc.Strategies, strategy)
	}
	return writeJSONAtomic(r.path, doc)
}

// Delete removes a strategy by id. Returns apperrors.ErrStrategyNotFound
// if it doesn't exist.
func (r *StrategyRepo) Delete(strategyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return err
	}
	out := doc.Strategies[:0]
	found := false
	for _, s := range doc.Strategies {
		if s.StrategyID == strategyID {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		return apperrors.ErrStrategyNotFound
	}
	doc.Strategies = out
	return writeJSONAtomic(r.path, doc)
}

// MutateLevel loads the owning strategy, applies fn to the named level
// in place, and persists the result. fn receives a pointer into the
// loaded copy so in-place field assignment is sufficient.
func (r *StrategyRepo) MutateLevel(strategyID, levelID string, fn func(level *core.StrategyLevel) error) (*core.TradingStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Strategies {
		if doc.Strategies[i].StrategyID != strategyID {
			continue
		}
		level := doc.Strategies[i].Level(levelID)
		if level == nil {
			return nil, apperrors.ErrLevelNotFound
		}
		if err := fn(level); err != nil {
			return nil, err
		}
		level.UpdatedAt = time.Now().UTC()
		doc.Strategies[i].UpdatedAt = time.Now().UTC()
		if err := writeJSONAtomic(r.path, doc); err != nil {
			return nil, err
		}
		result := doc.Strategies[i]
		return &result, nil
	}
	return nil, apperrors.ErrStrategyNotFound
}

// Mutate loads the whole document, applies fn to the named strategy in
// place, and persists the result.
func (r *StrategyRepo) Mutate(strategyID string, fn func(strategy *core.TradingStrategy) error) (*core.TradingStrategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Strategies {
		if doc.Strategies[i].StrategyID != strategyID {
			continue
		}
		if err := fn(&doc.Strategies[i]); err != nil {
			return nil, err
		}
		doc.Strategies[i].UpdatedAt = time.Now().UTC()
		if err := writeJSONAtomic(r.path, doc); err != nil {
			return nil, err
		}
		result := doc.Strategies[i]
		return &result, nil
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrStrategyNotFound, strategyID)
}
