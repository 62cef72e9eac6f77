package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/harvester/internal/model"
)

func readLatest(t *testing.T, path string) latestPayload {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload latestPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func TestLatestItemFrom(t *testing.T) {
	r := model.EnrichedRecord{
		ID:        "SRR1",
		SourceUID: "101",
		Title:     "subway metagenome",
		Resolution: model.ResolutionResult{
			Accession: "PRJNA1",
			Method:    model.MethodEmbedded,
		},
		Assay:   model.ClassificationResult{Class: model.AssayWGS},
		Geo:     model.GeoGuess{Country: "Japan", City: "Tokyo"},
		Project: &model.ProjectDetails{Accession: "PRJNA1", Title: "City sampling"},
		Links:   model.Links{RunURL: "https://example.org/SRR1"},
	}

	item := LatestItemFrom("daily_20240101", r)
	assert.Equal(t, "SRR1", item.Run)
	assert.Equal(t, "WGS", item.AssayClass)
	assert.Equal(t, "Japan", item.Country)
	assert.Equal(t, "Tokyo", item.City)
	assert.Equal(t, "PRJNA1", item.Project)
	assert.Equal(t, "City sampling", item.ProjectTitle)
	assert.Equal(t, "https://example.org/SRR1", item.URL)
}

func TestWriteLatestBounded_FitsWhole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	items := []LatestItem{{Run: "SRR1"}, {Run: "SRR2"}}

	require.NoError(t, WriteLatestBounded(path, items, 1<<20))

	payload := readLatest(t, path)
	assert.Equal(t, 2, payload.Count)
	require.Len(t, payload.Items, 2)
	assert.Equal(t, "SRR1", payload.Items[0].Run)
}

func TestWriteLatestBounded_TruncatesToBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")

	var items []LatestItem
	for i := 0; i < 50; i++ {
		items = append(items, LatestItem{Run: "SRR1", Title: strings.Repeat("t", 200)})
	}

	const budget = 3000
	require.NoError(t, WriteLatestBounded(path, items, budget))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(budget))

	payload := readLatest(t, path)
	// Count reports the full set even when the items are truncated.
	assert.Equal(t, 50, payload.Count)
	assert.Less(t, len(payload.Items), 50)
	assert.NotEmpty(t, payload.Items)
}

func TestWriteLatestBounded_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, WriteLatestBounded(path, nil, 1<<20))

	payload := readLatest(t, path)
	assert.Zero(t, payload.Count)
	assert.Empty(t, payload.Items)
}
