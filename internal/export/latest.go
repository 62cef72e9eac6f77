package export

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/urbanscope/harvester/internal/model"
)

// LatestItem is the flattened dashboard row for a newly added record.
type LatestItem struct {
	Tag          string `json:"tag,omitempty"`
	Run          string `json:"run"`
	SourceUID    string `json:"source_uid"`
	Title        string `json:"title"`
	AssayClass   string `json:"assay_class"`
	Country      string `json:"country,omitempty"`
	City         string `json:"city,omitempty"`
	Project      string `json:"project,omitempty"`
	ProjectTitle string `json:"project_title,omitempty"`
	URL          string `json:"url,omitempty"`
}

// LatestItemFrom flattens an enriched record for the latest view.
func LatestItemFrom(tag string, rec model.EnrichedRecord) LatestItem {
	item := LatestItem{
		Tag:        tag,
		Run:        rec.ID,
		SourceUID:  rec.SourceUID,
		Title:      rec.Title,
		AssayClass: string(rec.Assay.Class),
		Country:    rec.Geo.Country,
		City:       rec.Geo.City,
		Project:    rec.Resolution.Accession,
		URL:        rec.Links.RunURL,
	}
	if rec.Project != nil {
		item.ProjectTitle = rec.Project.Title
	}
	return item
}

type latestPayload struct {
	GeneratedUTC string       `json:"generated_utc"`
	Count        int          `json:"count"`
	Items        []LatestItem `json:"items"`
}

// WriteLatestBounded writes the latest view as a single file no larger than
// maxBytes. The artifact must stay one file, so instead of chunking it
// binary-searches for the largest item prefix whose serialization fits the
// budget. Count always reports the full item count so consumers can tell a
// truncated view from a small one.
func WriteLatestBounded(path string, items []LatestItem, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = 50 * 1024 * 1024
	}
	generated := nowUTC()

	serialize := func(n int) ([]byte, error) {
		payload := latestPayload{GeneratedUTC: generated, Count: len(items), Items: items[:n]}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "export: encode latest view")
		}
		return data, nil
	}

	data, err := serialize(len(items))
	if err != nil {
		return err
	}
	if int64(len(data)) <= maxBytes {
		return writeFileAtomic(path, data)
	}

	// Too big in full: largest prefix that fits.
	lo, hi, best := 0, len(items), 0
	for lo <= hi {
		mid := (lo + hi) / 2
		data, err := serialize(mid)
		if err != nil {
			return err
		}
		if int64(len(data)) <= maxBytes {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	data, err = serialize(best)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
