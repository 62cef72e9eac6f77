package export

import (
	"encoding/json"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/urbanscope/harvester/internal/catalog"
	"github.com/urbanscope/harvester/internal/model"
)

// Index is the lightweight discovery document pointing at the manifest
// parts, written next to them.
type Index struct {
	Generated    string   `json:"generated"`
	TotalRecords int      `json:"total_records"`
	Parts        []string `json:"parts"`
	Years        []int    `json:"years"`
}

// Rebuilder regenerates the published artifact set from the full corpus.
type Rebuilder struct {
	cat      *catalog.Catalog
	docsDir  string
	maxBytes int64
}

// NewRebuilder creates a Rebuilder writing under docsDir/db.
func NewRebuilder(cat *catalog.Catalog, docsDir string, maxBytes int64) *Rebuilder {
	return &Rebuilder{cat: cat, docsDir: docsDir, maxBytes: maxBytes}
}

func (r *Rebuilder) dbDir() string {
	return filepath.Join(r.docsDir, "db")
}

// Rebuild streams every record in the corpus through a chunk writer and
// rewrites the manifest and index. Part files cover the corpus in catalog
// order with no loss or duplication.
func (r *Rebuilder) Rebuild() (*Manifest, error) {
	years, err := r.cat.Years()
	if err != nil {
		return nil, err
	}

	writer, err := NewChunkWriter(filepath.Join(r.dbDir(), "run_records"), r.maxBytes)
	if err != nil {
		return nil, err
	}

	if err := r.cat.IterateAll(writer.Write); err != nil {
		return nil, err
	}

	manifest, err := writer.Close()
	if err != nil {
		return nil, err
	}
	manifest.Years = years

	if err := WriteJSONAtomic(filepath.Join(r.dbDir(), "run_records_manifest.json"), manifest); err != nil {
		return nil, err
	}

	index := Index{
		Generated:    manifest.GeneratedUTC,
		TotalRecords: manifest.TotalRecords,
		Years:        years,
	}
	for _, p := range manifest.Parts {
		index.Parts = append(index.Parts, filepath.Base(p.Path))
	}
	if err := WriteJSONAtomic(filepath.Join(r.dbDir(), "index.json"), index); err != nil {
		return nil, err
	}

	zap.L().Info("export: rebuilt artifacts",
		zap.Int("total_records", manifest.TotalRecords),
		zap.Int("parts", len(manifest.Parts)),
		zap.Ints("years", years),
	)
	return manifest, nil
}

// PublishCacheSnapshot republishes one enrichment cache namespace as a
// static artifact for dashboard drill-down. Empty snapshots are skipped.
func (r *Rebuilder) PublishCacheSnapshot(name string, snapshot map[string]json.RawMessage) error {
	if len(snapshot) == 0 {
		return nil
	}
	return WriteJSONAtomic(filepath.Join(r.dbDir(), name+".json"), snapshot)
}

// RecentItems returns up to limit latest-view rows drawn from the tail of
// the corpus, newest last in catalog order.
func (r *Rebuilder) RecentItems(limit int) ([]LatestItem, error) {
	var all []LatestItem
	err := r.cat.IterateAll(func(rec model.EnrichedRecord) error {
		all = append(all, LatestItemFrom("", rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}
