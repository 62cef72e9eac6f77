// Package export publishes the accumulated corpus as static artifacts: a
// numbered sequence of JSON array part files each under a byte budget, a
// manifest describing the parts, an index document, and a size-bounded
// "latest additions" view. Consumers read the manifest first to discover
// part boundaries.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/urbanscope/harvester/internal/model"
)

// Part describes one emitted chunk file.
type Part struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
}

// Manifest lists the emitted parts and totals. It is the entry point for
// artifact consumers.
type Manifest struct {
	GeneratedUTC string `json:"generated_utc"`
	TotalRecords int    `json:"total_records"`
	Parts        []Part `json:"parts"`
	Years        []int  `json:"years,omitempty"`
}

// arrayFooter closes a JSON array part file.
const arrayFooter = "\n]\n"

// ChunkWriter streams records into numbered JSON array files, starting a new
// part whenever the next record (plus closing syntax) would exceed the byte
// budget. A single record larger than the budget is written whole rather
// than split; the budget is a soft ceiling in that one pathological case.
type ChunkWriter struct {
	prefix   string
	maxBytes int64

	file     *os.File
	filePath string
	written  int64
	inPart   int
	total    int
	parts    []Part
	first    bool
}

// NewChunkWriter creates a writer emitting <prefix>_part000.json,
// <prefix>_part001.json, and so on.
func NewChunkWriter(prefix string, maxBytes int64) (*ChunkWriter, error) {
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	w := &ChunkWriter{prefix: prefix, maxBytes: maxBytes}
	if err := os.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: mkdir for %s", prefix)
	}
	if err := w.openPart(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *ChunkWriter) partPath(idx int) string {
	return w.prefix + fmt.Sprintf("_part%03d.json", idx)
}

func (w *ChunkWriter) openPart() error {
	path := w.partPath(len(w.parts))
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if _, err := f.WriteString("[\n"); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: write %s", path)
	}
	w.file = f
	w.filePath = path
	w.written = 2
	w.inPart = 0
	w.first = true
	return nil
}

func (w *ChunkWriter) closePart() error {
	if _, err := w.file.WriteString(arrayFooter); err != nil {
		_ = w.file.Close()
		return eris.Wrapf(err, "export: close %s", w.filePath)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return eris.Wrapf(err, "export: sync %s", w.filePath)
	}
	if err := w.file.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", w.filePath)
	}
	w.parts = append(w.parts, Part{Path: w.filePath, Records: w.inPart})
	return nil
}

// Write appends one record to the current part, rolling over first if the
// record would push the part past the budget.
func (w *ChunkWriter) Write(rec model.EnrichedRecord) error {
	blob, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "export: encode record %s", rec.ID)
	}

	entry := blob
	if !w.first {
		entry = append([]byte(",\n"), blob...)
	}

	if !w.first && w.written+int64(len(entry))+int64(len(arrayFooter)) > w.maxBytes {
		if err := w.closePart(); err != nil {
			return err
		}
		if err := w.openPart(); err != nil {
			return err
		}
		entry = blob
	}

	n, err := w.file.Write(entry)
	w.written += int64(n)
	if err != nil {
		_ = w.file.Close()
		return eris.Wrapf(err, "export: write %s", w.filePath)
	}
	w.first = false
	w.inPart++
	w.total++
	return nil
}

// Close finalizes the last part and returns the manifest.
func (w *ChunkWriter) Close() (*Manifest, error) {
	if err := w.closePart(); err != nil {
		return nil, err
	}
	return &Manifest{
		GeneratedUTC: nowUTC(),
		TotalRecords: w.total,
		Parts:        w.parts,
	}, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// WriteJSONAtomic marshals v with indentation and writes it via a temp file
// and rename, so consumers never observe a torn artifact.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "export: encode %s", path)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: mkdir for %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: sync %s", tmp)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "export: rename %s", path)
	}
	return nil
}
