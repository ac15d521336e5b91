// Package storage persists the learning ledgers as single JSON documents.
//
// Every save rewrites the whole document through a temp file and a rename in
// the same directory, so a crash leaves either the old or the new document.
// There is no file locking: one process must own a ledger directory. Two
// processes pointed at the same files silently lose writes (last writer wins).
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LoadStatus tells how a ledger came into memory
type LoadStatus string

const (
	// LoadFresh means no file existed yet (first run)
	LoadFresh LoadStatus = "fresh"
	// LoadOK means the file was read and parsed
	LoadOK LoadStatus = "loaded"
	// LoadReset means the file was unreadable or corrupt and was replaced by
	// an empty ledger. Previously recorded data is lost from memory.
	LoadReset LoadStatus = "reset"
)

var (
	ErrMissingKeys = errors.New("ledger is missing required keys")
)

// LoadResult describes a load attempt
type LoadResult struct {
	Status LoadStatus
	// Err is the parse/read problem behind a reset
	Err error
	// QuarantinePath is where the corrupt bytes were moved, if anywhere
	QuarantinePath string
}

// LoadJSON reads path into dst. A missing file is a fresh start. A file that
// fails to parse, or lacks any of requiredKeys at the top level, is moved aside
// to "<path>.corrupt-<timestamp>" and reported as LoadReset; dst is left
// untouched so the caller can install an empty ledger.
func LoadJSON(path string, dst interface{}, requiredKeys ...string) LoadResult {
	err := DecodeJSON(path, dst, requiredKeys...)
	switch {
	case err == nil:
		return LoadResult{Status: LoadOK}
	case errors.Is(err, os.ErrNotExist):
		return LoadResult{Status: LoadFresh}
	default:
		return reset(path, err)
	}
}

// DecodeJSON reads and validates path without touching the file on failure.
// Offline tools use it directly so a bad ledger is reported, not moved.
func DecodeJSON(path string, dst interface{}, requiredKeys ...string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return fmt.Errorf("failed to parse ledger: %w", err)
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := top[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingKeys, missing)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode ledger: %w", err)
	}
	return nil
}

func reset(path string, cause error) LoadResult {
	res := LoadResult{Status: LoadReset, Err: cause}
	quarantine := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(path, quarantine); err == nil {
		res.QuarantinePath = quarantine
	}
	return res
}

// SaveJSON writes v to path atomically (temp file + rename)
func SaveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
