package persistence

import (
	"path/filepath"
	"sync"
)

// DocumentRepo is a generic single-writer JSON document, used for
// settings.json and watchlist.json: both are owned by out-of-scope
// components (LLM advisory settings, the watchlist store) whose schema
// this system doesn't prescribe, so persistence only needs to give them
// an atomic load/save slot rather than a typed model.
type DocumentRepo struct {
	path string
	mu   sync.Mutex
}

// NewDocumentRepo opens an arbitrary JSON document under dataDir/name.
func NewDocumentRepo(dataDir, name string) *DocumentRepo {
	return &DocumentRepo{path: filepath.Join(dataDir, name)}
}

// Load decodes the document into v. A missing file leaves v untouched
// and returns (false, nil).
func (r *DocumentRepo) Load(v interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return readJSON(r.path, v)
}

// Save atomically replaces the document with v.
func (r *DocumentRepo) Save(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return writeJSONAtomic(r.path, v)
}
