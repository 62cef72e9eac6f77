package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_CountersFollowDecisions(t *testing.T) {
	rep := NewReporter("test", t.TempDir(), false)

	rep.Record(
		Decision{RunID: "SRR1", Kept: true},
		Decision{RunID: "SRR2", Reason: ReasonUnresolved},
		Decision{RunID: "SRR3", Reason: ReasonDuplicatePersisted},
		Decision{RunID: "SRR4", Reason: ReasonDuplicateInBatch},
		Decision{RunID: "SRR5", Reason: ReasonFetchError},
	)
	rep.Add(CounterInputUIDs, 2)
	rep.Inc(CounterEmitted)

	report := rep.Finalize()
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Counters[CounterKept])
	assert.Equal(t, 1, report.Counters[CounterDropUnresolved])
	assert.Equal(t, 1, report.Counters[CounterDropDupPersisted])
	assert.Equal(t, 1, report.Counters[CounterDropDupInBatch])
	assert.Equal(t, 1, report.Counters[CounterDropFetchError])
	assert.Equal(t, 2, report.Counters[CounterInputUIDs])
	assert.Equal(t, 5, report.DecisionRows)
}

func TestReporter_ZeroActivityStillReports(t *testing.T) {
	rep := NewReporter("empty", t.TempDir(), false)
	report := rep.Finalize()
	assert.NotEmpty(t, report.RunID)
	assert.NotEmpty(t, report.StartedUTC)
	assert.NotEmpty(t, report.FinishedUTC)
	assert.Zero(t, report.DecisionRows)
}

func TestReporter_DebugWritesDecisionLogAndReport(t *testing.T) {
	dir := t.TempDir()
	rep := NewReporter("daily_x", dir, true)

	rep.Record(
		Decision{RunID: "SRR1", Accession: "PRJNA1", Kept: true},
		Decision{RunID: "SRR2", Reason: ReasonUnresolved},
	)
	rep.Finalize()

	logPath := filepath.Join(dir, "decisions_daily_x.ndjson")
	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer f.Close()

	var lines []Decision
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var dec Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &dec))
		lines = append(lines, dec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "SRR1", lines[0].RunID)
	assert.True(t, lines[0].Kept)
	assert.Equal(t, ReasonUnresolved, lines[1].Reason)

	reportPath := filepath.Join(dir, "report_daily_x.json")
	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "daily_x", report.Tag)
	assert.Equal(t, 1, report.Counters[CounterKept])
}

func TestReporter_NoDebugWritesNothing(t *testing.T) {
	dir := t.TempDir()
	rep := NewReporter("quiet", dir, false)
	rep.Record(Decision{RunID: "SRR1", Kept: true})
	rep.Finalize()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
