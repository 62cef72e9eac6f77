package pipeline

import (
	"github.com/urbanscope/harvester/internal/ledger"
	"github.com/urbanscope/harvester/internal/model"
)

// Drop reasons recorded in the decision trail.
const (
	ReasonUnresolved         = "unresolved"
	ReasonDuplicatePersisted = "duplicate-persisted"
	ReasonDuplicateInBatch   = "duplicate-in-batch"
	ReasonDuplicateRun       = "duplicate-run"
	ReasonFetchError         = "fetch_error"
)

// Candidate pairs a raw record with the outcome of project resolution.
type Candidate struct {
	Record     model.RawRecord
	Resolution model.ResolutionResult
}

// Decision records what happened to one candidate during collapsing.
type Decision struct {
	RunID     string `json:"run_id"`
	SourceUID string `json:"source_uid,omitempty"`
	Accession string `json:"accession,omitempty"`
	Method    string `json:"method,omitempty"`
	Kept      bool   `json:"kept"`
	Reason    string `json:"reason,omitempty"`
}

// Collapse reduces a batch of candidates to at most one record per
// project. Candidates are considered in batch order: the first record
// to resolve to a project wins, later ones are dropped as within-batch
// duplicates. Records whose project is already in the ledger are
// dropped as persisted duplicates, and unresolved records are dropped
// outright. The ledger is only consulted here, never marked: a kept
// candidate can still fail enrichment, and its project must stay
// retryable on the next run.
func Collapse(batch []Candidate, led *ledger.Ledger) ([]Candidate, []Decision) {
	kept := make([]Candidate, 0, len(batch))
	decisions := make([]Decision, 0, len(batch))
	inBatch := make(map[string]bool, len(batch))

	for _, cand := range batch {
		dec := Decision{
			RunID:     cand.Record.ID,
			SourceUID: cand.Record.SourceUID,
			Accession: cand.Resolution.Accession,
			Method:    string(cand.Resolution.Method),
		}
		switch {
		case !cand.Resolution.Resolved():
			dec.Reason = ReasonUnresolved
		case inBatch[cand.Resolution.Accession]:
			dec.Reason = ReasonDuplicateInBatch
		case led.Projects.Has(cand.Resolution.Accession):
			dec.Reason = ReasonDuplicatePersisted
		default:
			dec.Kept = true
			kept = append(kept, cand)
			inBatch[cand.Resolution.Accession] = true
		}
		decisions = append(decisions, dec)
	}
	return kept, decisions
}
