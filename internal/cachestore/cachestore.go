// Package cachestore is a disk-backed key/value store for enrichment
// metadata. One JSON object per namespace file, loaded fully at run start and
// flushed atomically (write temp, rename) so a killed process never corrupts
// a committed cache.
package cachestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// tombstone marks a key that was looked up upstream and not found, so failed
// lookups are not retried every run. Distinct from an absent key.
var tombstone = json.RawMessage(`{}`)

// Store holds one cache namespace: accession (or other key) to a
// JSON-serializable metadata blob.
type Store struct {
	path    string
	entries map[string]json.RawMessage
	dirty   bool
}

// Load reads the cache file at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cachestore: read %s", path)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, eris.Wrapf(err, "cachestore: decode %s", path)
	}
	return s, nil
}

// Get returns the raw entry for key. found distinguishes "never looked up"
// from a present entry; notFound marks a tombstoned key (looked up upstream,
// nothing there).
func (s *Store) Get(key string) (raw json.RawMessage, found, notFound bool) {
	raw, found = s.entries[key]
	if !found {
		return nil, false, false
	}
	return raw, true, isTombstone(raw)
}

// Put stores a raw entry for key.
func (s *Store) Put(key string, raw json.RawMessage) {
	s.entries[key] = raw
	s.dirty = true
}

// PutTombstone marks key as looked-up-but-absent.
func (s *Store) PutTombstone(key string) {
	s.entries[key] = tombstone
	s.dirty = true
}

// Len returns the number of entries, tombstones included.
func (s *Store) Len() int {
	return len(s.entries)
}

// Dirty reports whether the store has unflushed changes.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Flush writes the full namespace to disk atomically. A no-op when nothing
// changed since the last flush. Failures here are fatal to the run: a cache
// that cannot be persisted would re-trigger every external lookup.
func (s *Store) Flush() error {
	if !s.dirty {
		return nil
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cachestore: encode")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrapf(err, "cachestore: mkdir for %s", s.path)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "cachestore: create %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "cachestore: write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "cachestore: sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "cachestore: close %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrapf(err, "cachestore: rename %s", s.path)
	}

	s.dirty = false
	return nil
}

// Snapshot returns a copy of all entries, for republishing the cache as a
// static artifact.
func (s *Store) Snapshot() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// GetAs decodes the entry for key into T. ok is false when the key is absent
// or tombstoned.
func GetAs[T any](s *Store, key string) (val T, ok bool, err error) {
	raw, found, notFound := s.Get(key)
	if !found || notFound {
		return val, false, nil
	}
	if err := json.Unmarshal(raw, &val); err != nil {
		return val, false, eris.Wrapf(err, "cachestore: decode entry %q", key)
	}
	return val, true, nil
}

// PutAs encodes val and stores it under key.
func PutAs[T any](s *Store, key string, val T) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return eris.Wrapf(err, "cachestore: encode entry %q", key)
	}
	s.Put(key, raw)
	return nil
}

func isTombstone(raw json.RawMessage) bool {
	trimmed := string(raw)
	return trimmed == "{}" || trimmed == "null" || trimmed == `""`
}
