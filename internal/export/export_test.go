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

func rec(id, title string) model.EnrichedRecord {
	return model.EnrichedRecord{ID: id, SourceUID: "10" + id, Title: title}
}

func readPart(t *testing.T, path string) []model.EnrichedRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []model.EnrichedRecord
	require.NoError(t, json.Unmarshal(data, &records), "part file must be a valid JSON array: %s", path)
	return records
}

func TestChunkWriter_SinglePart(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_records")
	w, err := NewChunkWriter(prefix, 1<<20)
	require.NoError(t, err)

	require.NoError(t, w.Write(rec("SRR1", "a")))
	require.NoError(t, w.Write(rec("SRR2", "b")))

	manifest, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.TotalRecords)
	require.Len(t, manifest.Parts, 1)
	assert.Equal(t, 2, manifest.Parts[0].Records)

	records := readPart(t, manifest.Parts[0].Path)
	require.Len(t, records, 2)
	assert.Equal(t, "SRR1", records[0].ID)
	assert.Equal(t, "SRR2", records[1].ID)
}

func TestChunkWriter_SplitsAtBudget(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_records")
	w, err := NewChunkWriter(prefix, 2000)
	require.NoError(t, err)

	ids := []string{"SRR1", "SRR2", "SRR3", "SRR4", "SRR5", "SRR6", "SRR7", "SRR8"}
	for _, id := range ids {
		require.NoError(t, w.Write(rec(id, strings.Repeat("x", 400))))
	}

	manifest, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, len(ids), manifest.TotalRecords)
	require.Greater(t, len(manifest.Parts), 1)

	// Concatenating the parts reproduces the input exactly, and every
	// multi-record part respects the budget.
	var all []string
	for _, part := range manifest.Parts {
		records := readPart(t, part.Path)
		assert.Equal(t, part.Records, len(records))
		for _, r := range records {
			all = append(all, r.ID)
		}
		if len(records) > 1 {
			info, err := os.Stat(part.Path)
			require.NoError(t, err)
			assert.LessOrEqual(t, info.Size(), int64(2000))
		}
	}
	assert.Equal(t, ids, all)
}

func TestChunkWriter_OversizedRecordWrittenWhole(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_records")
	w, err := NewChunkWriter(prefix, 500)
	require.NoError(t, err)

	require.NoError(t, w.Write(rec("SRR1", "small")))
	require.NoError(t, w.Write(rec("SRR2", strings.Repeat("y", 2000))))
	require.NoError(t, w.Write(rec("SRR3", "small")))

	manifest, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 3, manifest.TotalRecords)

	var all []string
	for _, part := range manifest.Parts {
		for _, r := range readPart(t, part.Path) {
			all = append(all, r.ID)
		}
	}
	assert.Equal(t, []string{"SRR1", "SRR2", "SRR3"}, all)
}

func TestChunkWriter_EmptyCorpus(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "run_records")
	w, err := NewChunkWriter(prefix, 1000)
	require.NoError(t, err)

	manifest, err := w.Close()
	require.NoError(t, err)
	assert.Zero(t, manifest.TotalRecords)
	require.Len(t, manifest.Parts, 1)

	records := readPart(t, manifest.Parts[0].Path)
	assert.Empty(t, records)
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"total": 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":3}`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
