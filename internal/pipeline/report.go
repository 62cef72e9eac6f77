package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Counter keys accumulated over a run.
const (
	CounterInputUIDs          = "input_uids"
	CounterRecordsIn          = "records_in"
	CounterResolved           = "resolved"
	CounterKept               = "kept"
	CounterEmitted            = "emitted"
	CounterDropUnresolved     = "dropped_unresolved"
	CounterDropDupPersisted   = "dropped_duplicate_persisted"
	CounterDropDupInBatch     = "dropped_duplicate_in_batch"
	CounterDropDupRun         = "dropped_duplicate_run"
	CounterDropFetchError     = "dropped_fetch_error"
	CounterUIDFetchErrors     = "uid_fetch_errors"
	CounterCacheHits          = "cache_hits"
	CounterProjectsEnriched   = "projects_enriched"
	CounterSamplesEnriched    = "samples_enriched"
	CounterClassifiedUnknown  = "classified_unknown"
	CounterGeoCountryInferred = "geo_country_inferred"
)

// Report is the summary emitted at the end of every run.
type Report struct {
	RunID        string         `json:"run_id"`
	Tag          string         `json:"tag"`
	StartedUTC   string         `json:"started_utc"`
	FinishedUTC  string         `json:"finished_utc"`
	Counters     map[string]int `json:"counters"`
	DecisionLog  string         `json:"decision_log,omitempty"`
	ElapsedSecs  float64        `json:"elapsed_secs"`
	DecisionRows int            `json:"decision_rows"`
}

// Reporter accumulates counters and a per-record decision trail for
// one run. Decisions stream to an NDJSON log under debugDir when debug
// is enabled; the final report is always logged and, in debug mode,
// written next to the decision log.
type Reporter struct {
	runID    string
	tag      string
	started  time.Time
	counters map[string]int
	debugDir string
	debug    bool
	logPath  string
	rows     int
}

func NewReporter(tag, debugDir string, debug bool) *Reporter {
	r := &Reporter{
		runID:    uuid.NewString(),
		tag:      tag,
		started:  time.Now().UTC(),
		counters: map[string]int{},
		debugDir: debugDir,
		debug:    debug,
	}
	if debug {
		r.logPath = filepath.Join(debugDir, "decisions_"+tag+".ndjson")
	}
	return r
}

func (r *Reporter) RunID() string { return r.runID }

func (r *Reporter) Add(key string, n int) { r.counters[key] += n }

func (r *Reporter) Inc(key string) { r.counters[key]++ }

// Record appends decisions to the trail and bumps the matching drop
// counters.
func (r *Reporter) Record(decisions ...Decision) {
	for _, dec := range decisions {
		r.rows++
		if dec.Kept {
			r.Inc(CounterKept)
		} else {
			switch dec.Reason {
			case ReasonUnresolved:
				r.Inc(CounterDropUnresolved)
			case ReasonDuplicatePersisted:
				r.Inc(CounterDropDupPersisted)
			case ReasonDuplicateInBatch:
				r.Inc(CounterDropDupInBatch)
			case ReasonDuplicateRun:
				r.Inc(CounterDropDupRun)
			case ReasonFetchError:
				r.Inc(CounterDropFetchError)
			}
		}
	}
	if r.debug && len(decisions) > 0 {
		if err := r.appendDecisions(decisions); err != nil {
			zap.S().Warnw("decision log write failed", "error", err)
		}
	}
}

func (r *Reporter) appendDecisions(decisions []Decision) error {
	if err := os.MkdirAll(r.debugDir, 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create debug dir")
	}
	f, err := os.OpenFile(r.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrap(err, "pipeline: open decision log")
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, dec := range decisions {
		if err := enc.Encode(dec); err != nil {
			return eris.Wrap(err, "pipeline: encode decision")
		}
	}
	return nil
}

// Finalize freezes the report, logs it, and in debug mode writes it as
// JSON alongside the decision log.
func (r *Reporter) Finalize() Report {
	now := time.Now().UTC()
	rep := Report{
		RunID:        r.runID,
		Tag:          r.tag,
		StartedUTC:   r.started.Format(time.RFC3339),
		FinishedUTC:  now.Format(time.RFC3339),
		Counters:     r.counters,
		DecisionLog:  r.logPath,
		ElapsedSecs:  now.Sub(r.started).Seconds(),
		DecisionRows: r.rows,
	}

	keys := make([]string, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := []any{"run_id", r.runID, "tag", r.tag, "elapsed_secs", rep.ElapsedSecs}
	for _, k := range keys {
		fields = append(fields, k, r.counters[k])
	}
	zap.S().Infow("run report", fields...)

	if r.debug {
		path := filepath.Join(r.debugDir, "report_"+r.tag+".json")
		if err := writeReport(path, rep); err != nil {
			zap.S().Warnw("report write failed", "error", err, "path", path)
		}
	}
	return rep
}

func writeReport(path string, rep Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create report dir")
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal report")
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return eris.Wrap(err, "pipeline: write report")
	}
	return nil
}
