// Package catalog is the durable append-only log of enriched records: one
// newline-delimited JSON file per year, rotated into numbered part files so
// no single file outgrows the byte budget. Lines are appended, never
// rewritten.
package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/urbanscope/harvester/internal/model"
)

var partFilePattern = regexp.MustCompile(`^run_catalog_(\d{4})(?:_part(\d{3}))?\.jsonl$`)

// Catalog manages the per-year record logs under dir.
type Catalog struct {
	dir      string
	maxBytes int64
}

// New creates a Catalog writing files capped at maxBytes each.
func New(dir string, maxBytes int64) *Catalog {
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	return &Catalog{dir: dir, maxBytes: maxBytes}
}

func (c *Catalog) basePath(year int) string {
	return filepath.Join(c.dir, fmt.Sprintf("run_catalog_%d.jsonl", year))
}

func (c *Catalog) partPath(year, part int) string {
	return filepath.Join(c.dir, fmt.Sprintf("run_catalog_%d_part%03d.jsonl", year, part))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// seqPath returns the idx-th file in the year's rotation order: the base
// file first, then numbered parts.
func (c *Catalog) seqPath(year, idx int) string {
	if idx == 0 {
		return c.basePath(year)
	}
	return c.partPath(year, idx-1)
}

// Append writes records to the year's log, rotating to the next part file
// whenever the next line would push the current file past the cap. A record
// larger than the cap on its own is still written whole into an empty file.
func (c *Catalog) Append(year int, records []model.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrapf(err, "catalog: mkdir %s", c.dir)
	}

	// Resume at the first file in the rotation with room.
	idx := 0
	for fileSize(c.seqPath(year, idx)) >= c.maxBytes {
		idx++
	}
	path := c.seqPath(year, idx)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "catalog: open %s", path)
	}
	size := fileSize(path)

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "catalog: encode record %s", rec.ID)
		}
		line = append(line, '\n')

		if size > 0 && size+int64(len(line)) > c.maxBytes {
			if err := closeSynced(f); err != nil {
				return eris.Wrapf(err, "catalog: close %s", path)
			}
			for {
				idx++
				path = c.seqPath(year, idx)
				size = fileSize(path)
				if size == 0 || size+int64(len(line)) <= c.maxBytes {
					break
				}
			}
			f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return eris.Wrapf(err, "catalog: open %s", path)
			}
		}

		n, err := f.Write(line)
		size += int64(n)
		if err != nil {
			_ = f.Close()
			return eris.Wrapf(err, "catalog: append %s", path)
		}
	}

	if err := closeSynced(f); err != nil {
		return eris.Wrapf(err, "catalog: close %s", path)
	}
	return nil
}

func closeSynced(f *os.File) error {
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Years lists the years that have catalog files, ascending.
func (c *Catalog) Years() ([]int, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read dir %s", c.dir)
	}

	seen := map[int]struct{}{}
	for _, e := range entries {
		m := partFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		seen[year] = struct{}{}
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// yearPaths returns the base file plus its part files for year, in write
// order.
func (c *Catalog) yearPaths(year int) []string {
	var paths []string
	if base := c.basePath(year); fileSize(base) > 0 {
		paths = append(paths, base)
	}
	for i := 0; ; i++ {
		p := c.partPath(year, i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	return paths
}

// Iterate calls fn for each record logged under year, in append order.
func (c *Catalog) Iterate(year int, fn func(model.EnrichedRecord) error) error {
	for _, path := range c.yearPaths(year) {
		if err := iterateFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

// IterateAll calls fn for each record across all years, ascending by year
// and in append order within each.
func (c *Catalog) IterateAll(fn func(model.EnrichedRecord) error) error {
	years, err := c.Years()
	if err != nil {
		return err
	}
	for _, year := range years {
		if err := c.Iterate(year, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the total number of records across all years.
func (c *Catalog) Count() (int, error) {
	n := 0
	err := c.IterateAll(func(model.EnrichedRecord) error {
		n++
		return nil
	})
	return n, err
}

func iterateFile(path string, fn func(model.EnrichedRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.EnrichedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return eris.Wrapf(err, "catalog: decode line in %s", path)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return eris.Wrapf(err, "catalog: scan %s", path)
	}
	return nil
}
