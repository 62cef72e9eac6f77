// Package ledger persists the sets of identifiers already processed, one id
// per line, append-only. Two namespaces exist: raw run ids and canonical
// project accessions. Membership survives across runs and is never revoked.
package ledger

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Set is one persistent id namespace. Load fully at run start, Add during
// the run, Flush staged ids at commit points. Ids are only ever appended.
type Set struct {
	path   string
	seen   map[string]struct{}
	staged []string
}

// LoadSet reads the ledger file at path. A missing file yields an empty set.
func LoadSet(path string) (*Set, error) {
	s := &Set{path: path, seen: map[string]struct{}{}}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			s.seen[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: scan %s", path)
	}
	return s, nil
}

// Has reports whether id has been seen, in this run or any prior one.
func (s *Set) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Add marks id as seen and stages it for the next Flush. Adding an id that
// is already present is a no-op.
func (s *Set) Add(id string) {
	if id == "" || s.Has(id) {
		return
	}
	s.seen[id] = struct{}{}
	s.staged = append(s.staged, id)
}

// Len returns the total number of ids in the set.
func (s *Set) Len() int {
	return len(s.seen)
}

// Pending returns the number of staged, unflushed ids.
func (s *Set) Pending() int {
	return len(s.staged)
}

// Flush appends the staged ids to the ledger file and syncs it. The file is
// only ever appended to, so a crash mid-flush leaves at worst a committed
// prefix; re-running skips those ids and re-stages the rest.
func (s *Set) Flush() error {
	if len(s.staged) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrapf(err, "ledger: mkdir for %s", s.path)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s for append", s.path)
	}

	w := bufio.NewWriter(f)
	for _, id := range s.staged {
		if _, err := w.WriteString(id + "\n"); err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "ledger: append %s", s.path)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "ledger: flush %s", s.path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "ledger: sync %s", s.path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "ledger: close %s", s.path)
	}

	s.staged = s.staged[:0]
	return nil
}

// Ledger bundles the two dedup namespaces used by the pipeline.
type Ledger struct {
	Runs     *Set // raw run ids (e.g. SRR accessions)
	Projects *Set // canonical project accessions
}

// Load opens both namespaces under dir.
func Load(dir string) (*Ledger, error) {
	runs, err := LoadSet(filepath.Join(dir, "seen_runs.txt"))
	if err != nil {
		return nil, err
	}
	projects, err := LoadSet(filepath.Join(dir, "seen_projects.txt"))
	if err != nil {
		return nil, err
	}
	return &Ledger{Runs: runs, Projects: projects}, nil
}

// Flush commits both namespaces.
func (l *Ledger) Flush() error {
	if err := l.Runs.Flush(); err != nil {
		return err
	}
	return l.Projects.Flush()
}
