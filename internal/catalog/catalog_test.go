package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/harvester/internal/model"
)

func rec(id string) model.EnrichedRecord {
	return model.EnrichedRecord{ID: id, SourceUID: "10" + id, Title: "t-" + id}
}

func collect(t *testing.T, c *Catalog, year int) []string {
	t.Helper()
	var ids []string
	require.NoError(t, c.Iterate(year, func(r model.EnrichedRecord) error {
		ids = append(ids, r.ID)
		return nil
	}))
	return ids
}

func TestCatalog_AppendAndIterate(t *testing.T) {
	c := New(t.TempDir(), 0)

	require.NoError(t, c.Append(2023, []model.EnrichedRecord{rec("SRR1"), rec("SRR2")}))
	require.NoError(t, c.Append(2023, []model.EnrichedRecord{rec("SRR3")}))

	assert.Equal(t, []string{"SRR1", "SRR2", "SRR3"}, collect(t, c, 2023))
}

func TestCatalog_EmptyAppendIsNoop(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	require.NoError(t, c.Append(2023, nil))

	years, err := c.Years()
	require.NoError(t, err)
	assert.Empty(t, years)
}

func TestCatalog_Rotation(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 300)

	var records []model.EnrichedRecord
	for _, id := range []string{"SRR1", "SRR2", "SRR3", "SRR4", "SRR5", "SRR6"} {
		r := rec(id)
		r.Title = strings.Repeat("x", 100)
		records = append(records, r)
	}
	require.NoError(t, c.Append(2023, records))

	// Base file plus at least one part.
	assert.FileExists(t, filepath.Join(dir, "run_catalog_2023.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "run_catalog_2023_part000.jsonl"))

	// Order survives rotation with nothing lost or duplicated.
	assert.Equal(t, []string{"SRR1", "SRR2", "SRR3", "SRR4", "SRR5", "SRR6"}, collect(t, c, 2023))
}

func TestCatalog_ResumeAfterRotation(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 300)

	big := rec("SRR1")
	big.Title = strings.Repeat("x", 200)
	require.NoError(t, c.Append(2023, []model.EnrichedRecord{big}))

	// The second append lands after the first, never before it.
	require.NoError(t, c.Append(2023, []model.EnrichedRecord{rec("SRR2")}))
	assert.Equal(t, []string{"SRR1", "SRR2"}, collect(t, c, 2023))
}

func TestCatalog_OversizedRecordWrittenWhole(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 100)

	huge := rec("SRR1")
	huge.Title = strings.Repeat("y", 500)
	require.NoError(t, c.Append(2023, []model.EnrichedRecord{rec("SRR0"), huge, rec("SRR2")}))

	ids := collect(t, c, 2023)
	assert.Equal(t, []string{"SRR0", "SRR1", "SRR2"}, ids)
}

func TestCatalog_YearsAndCount(t *testing.T) {
	c := New(t.TempDir(), 0)
	require.NoError(t, c.Append(2021, []model.EnrichedRecord{rec("SRR1")}))
	require.NoError(t, c.Append(2023, []model.EnrichedRecord{rec("SRR2"), rec("SRR3")}))

	years, err := c.Years()
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2023}, years)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCatalog_IterateAllYearOrder(t *testing.T) {
	c := New(t.TempDir(), 0)
	require.NoError(t, c.Append(2024, []model.EnrichedRecord{rec("SRR9")}))
	require.NoError(t, c.Append(2020, []model.EnrichedRecord{rec("SRR1")}))

	var ids []string
	require.NoError(t, c.IterateAll(func(r model.EnrichedRecord) error {
		ids = append(ids, r.ID)
		return nil
	}))
	assert.Equal(t, []string{"SRR1", "SRR9"}, ids)
}

func TestCatalog_MissingDir(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope"), 0)
	years, err := c.Years()
	require.NoError(t, err)
	assert.Empty(t, years)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
