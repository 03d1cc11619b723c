// Package persistence implements the JSON-document repositories backing
// every piece of durable state: strategies.json, trades.json, the
// monitor's active-task snapshot, settings.json and watchlist.json.
// Strategies, trades and the monitor snapshot each have a small typed
// repository under its own lock, a per-file-lock variant of the
// JSONStorage pattern; settings and watchlist documents go through the
// untyped DocumentRepo Load/Save pair. Reads always re-parse from disk
// rather than trusting an in-memory cache.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeJSONAtomic serializes v and replaces path with it atomically:
// write to a temp file in the same directory, fsync, then rename. A
// reader can never observe a partially written document.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persistence: create dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("persistence: create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persistence: write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("persistence: sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persistence: close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("persistence: rename temp file into %s: %w", path, err)
	}
	return nil
}

// readJSON re-parses path into v. A missing file is reported via the
// returned bool being false, with a nil error. Callers treat that as
// "no document yet" rather than a failure.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("persistence: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("persistence: decode %s: %w", path, err)
	}
	return true, nil
}
