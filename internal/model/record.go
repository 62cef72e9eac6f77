// Package model defines the core record types flowing through the harvest
// pipeline: raw catalog records, resolution outcomes, assay classifications,
// geographic guesses, and the enriched records persisted to the catalog.
package model

import (
	"regexp"
	"strings"
	"time"
)

// AccessionPattern matches canonical BioProject accessions (PRJNA/PRJEB/PRJDB
// followed by digits) anywhere in free text.
var AccessionPattern = regexp.MustCompile(`(?i)\bPRJ(?:NA|EB|DB)\d+\b`)

// accessionExact anchors the pattern for validating a whole string.
var accessionExact = regexp.MustCompile(`^PRJ(?:NA|EB|DB)\d+$`)

// NormalizeAccession trims and uppercases a candidate accession and validates
// it against the canonical pattern. Returns "" if the string is not a valid
// accession. Heuristically extracted matches must pass through here before
// being treated as canonical.
func NormalizeAccession(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !accessionExact.MatchString(s) {
		return ""
	}
	return s
}

// RawRecord is one unit fetched from the source catalog: a single sequencing
// run row plus the summary of its parent SRA entry. Immutable once fetched.
type RawRecord struct {
	// ID is the source-assigned run accession (e.g. SRR123456).
	ID string `json:"id"`
	// SourceUID is the numeric SRA entry UID the run was flattened from.
	SourceUID string `json:"source_uid"`
	// Title is the free-text title of the parent SRA entry.
	Title string `json:"title"`
	// Fields holds the structured runinfo columns keyed by column name.
	Fields map[string]string `json:"fields"`
	// SampleAccession is the embedded BioSample reference, if present.
	SampleAccession string `json:"sample_accession,omitempty"`
	// ProjectGuess is an accession spotted in the parent entry's summary
	// items. Consulted when the runinfo columns carry no accession.
	ProjectGuess string `json:"project_guess,omitempty"`
	// SummaryText is the flattened parent-entry summary, used as extra
	// classification text.
	SummaryText string `json:"-"`
}

// Field returns the named structured field, trimmed.
func (r RawRecord) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// ResolutionMethod identifies which resolver tier produced a canonical id.
type ResolutionMethod string

const (
	MethodEmbedded ResolutionMethod = "embedded" // tier 1: pattern match on fields/title
	MethodLinked   ResolutionMethod = "linked"   // tier 2: link service + summary lookup
	MethodFullText ResolutionMethod = "fulltext" // tier 3: deep detail document scan
	MethodNone     ResolutionMethod = "none"     // unresolvable (terminal, not an error)
)

// ResolutionResult is the outcome of resolving a RawRecord to its canonical
// project identity. An empty Accession with MethodNone is a valid terminal
// outcome, not an error.
type ResolutionResult struct {
	Accession string           `json:"accession,omitempty"`
	Method    ResolutionMethod `json:"method"`
	CacheHit  bool             `json:"cache_hit"`
}

// Resolved reports whether a canonical accession was found.
func (r ResolutionResult) Resolved() bool {
	return r.Accession != ""
}

// AssayClass is the closed set of assay categories the classifier emits.
type AssayClass string

const (
	Assay16S      AssayClass = "16S"
	AssayITS      AssayClass = "ITS"
	AssayAmplicon AssayClass = "Amplicon"
	AssayRNASeq   AssayClass = "RNA-seq"
	AssayWGS      AssayClass = "WGS"
	AssayUnknown  AssayClass = "Unknown"
)

// ConfidenceLevel grades how specific the matched classification rule was.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ClassificationResult is the output of the heuristic assay classifier.
// Rationale lists the markers that triggered the decision; it is kept for
// auditability even though nothing downstream branches on it.
type ClassificationResult struct {
	Class      AssayClass      `json:"assay_class"`
	Tags       []string        `json:"assay_tags"`
	Confidence ConfidenceLevel `json:"confidence"`
	Rationale  []string        `json:"rationale"`
}

// GeoGuess is the best-effort geographic inference for a record. All fields
// are independently optional; Raw preserves the text that was parsed.
type GeoGuess struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
	Lat     string `json:"lat,omitempty"`
	Lon     string `json:"lon,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// SampleDetails holds cached BioSample metadata surfaced on enriched records.
type SampleDetails struct {
	Accession      string            `json:"accession"`
	Title          string            `json:"title,omitempty"`
	Organism       string            `json:"organism,omitempty"`
	CollectionDate string            `json:"collection_date,omitempty"`
	SampleType     string            `json:"sample_type,omitempty"`
	Host           string            `json:"host,omitempty"`
	EnvBiome       string            `json:"env_biome,omitempty"`
	EnvFeature     string            `json:"env_feature,omitempty"`
	EnvMaterial    string            `json:"env_material,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// ProjectDetails holds cached BioProject metadata surfaced on enriched records.
type ProjectDetails struct {
	UID            string `json:"uid,omitempty"`
	Accession      string `json:"accession"`
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Organism       string `json:"organism,omitempty"`
	DataType       string `json:"data_type,omitempty"`
	SubmissionDate string `json:"submission_date,omitempty"`
	LastUpdate     string `json:"last_update,omitempty"`
	CenterName     string `json:"center_name,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Provenance records when and from where a record was ingested.
type Provenance struct {
	IngestedAt time.Time `json:"ingested_utc"`
	Source     string    `json:"source"`
}

// Links holds stable public URLs for the record's source entities.
type Links struct {
	RunURL     string `json:"run_url,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	ProjectURL string `json:"project_url,omitempty"`
}

// EnrichedRecord is the persisted unit: one raw record plus its resolution,
// classification, geography, enrichment and provenance. Appended to the
// per-year catalog and never mutated thereafter.
type EnrichedRecord struct {
	ID          string               `json:"id"`
	SourceUID   string               `json:"source_uid"`
	Title       string               `json:"title"`
	Fields      map[string]string    `json:"fields"`
	Resolution  ResolutionResult     `json:"resolution"`
	Assay       ClassificationResult `json:"assay"`
	Geo         GeoGuess             `json:"geo"`
	Sample      *SampleDetails       `json:"sample,omitempty"`
	Project     *ProjectDetails      `json:"project,omitempty"`
	Links       Links                `json:"links"`
	Provenance  Provenance           `json:"provenance"`
}
