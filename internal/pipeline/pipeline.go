// Package pipeline orchestrates one harvest run: search the upstream
// catalog, expand entries into per-run records, resolve each to its
// canonical project, collapse duplicates against the persistent
// ledgers, enrich survivors, and commit them to the durable per-year
// catalog.
package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/urbanscope/harvester/internal/cachestore"
	"github.com/urbanscope/harvester/internal/catalog"
	"github.com/urbanscope/harvester/internal/classify"
	"github.com/urbanscope/harvester/internal/config"
	"github.com/urbanscope/harvester/internal/eutils"
	"github.com/urbanscope/harvester/internal/ledger"
	"github.com/urbanscope/harvester/internal/model"
	"github.com/urbanscope/harvester/internal/resolve"
)

// SourceClient is the slice of the E-utilities client the pipeline
// consumes. *eutils.Client satisfies it.
type SourceClient interface {
	Search(ctx context.Context, db, term string, window eutils.Window, retmax int) ([]string, error)
	SearchPage(ctx context.Context, db, term string, page eutils.Page) ([]string, int, error)
	Summaries(ctx context.Context, uids []string) (map[string]eutils.Summary, error)
	RunInfo(ctx context.Context, uid string, maxRows int) ([]map[string]string, error)
	SampleDetail(ctx context.Context, accession string) (*eutils.SampleDetail, error)
	ProjectUID(ctx context.Context, accession string) (string, error)
	ProjectSummary(ctx context.Context, uid string) (*eutils.ProjectSummary, error)
}

// Caches groups the persistent lookup namespaces. LinkUID maps
// secondary UIDs to accessions for the resolver; ProjectUID maps
// accessions back to UIDs for enrichment; Sample and Project hold the
// enrichment payloads themselves.
type Caches struct {
	Sample     *cachestore.Store
	Project    *cachestore.Store
	ProjectUID *cachestore.Store
	LinkUID    *cachestore.Store
}

// LoadCaches opens all cache namespaces under dir.
func LoadCaches(dir string) (*Caches, error) {
	c := &Caches{}
	for _, ns := range []struct {
		name  string
		store **cachestore.Store
	}{
		{"biosample.json", &c.Sample},
		{"bioproject.json", &c.Project},
		{"bioproject_uid.json", &c.ProjectUID},
		{"bioproject_links.json", &c.LinkUID},
	} {
		s, err := cachestore.Load(filepath.Join(dir, ns.name))
		if err != nil {
			return nil, err
		}
		*ns.store = s
	}
	return c, nil
}

// Flush persists every dirty namespace. The namespaces live in
// separate files, so the writes can proceed in parallel.
func (c *Caches) Flush() error {
	var g errgroup.Group
	for _, s := range []*cachestore.Store{c.Sample, c.Project, c.ProjectUID, c.LinkUID} {
		g.Go(s.Flush)
	}
	return g.Wait()
}

// Pipeline wires the client, resolver, stores and classification
// tables for a run. It is not safe for concurrent use; the persistent
// stores assume a single writer.
type Pipeline struct {
	client   SourceClient
	resolver *resolve.Resolver
	led      *ledger.Ledger
	cat      *catalog.Catalog
	caches   *Caches
	tables   *classify.Tables
	cfg      *config.Config
}

func New(client SourceClient, resolver *resolve.Resolver, led *ledger.Ledger, cat *catalog.Catalog, caches *Caches, tables *classify.Tables, cfg *config.Config) *Pipeline {
	return &Pipeline{
		client:   client,
		resolver: resolver,
		led:      led,
		cat:      cat,
		caches:   caches,
		tables:   tables,
		cfg:      cfg,
	}
}

func (p *Pipeline) Ledger() *ledger.Ledger { return p.led }

func (p *Pipeline) Catalog() *catalog.Catalog { return p.cat }

func (p *Pipeline) CacheSet() *Caches { return p.caches }

// IngestBatch processes one batch of raw entry UIDs end to end and
// returns the records committed to the catalog. Per-record failures
// are isolated and reported; errors returned here are batch-fatal
// (search metadata unavailable, or local persistence failed).
func (p *Pipeline) IngestBatch(ctx context.Context, rep *Reporter, uids []string) ([]model.EnrichedRecord, error) {
	rep.Add(CounterInputUIDs, len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	summaries, err := p.client.Summaries(ctx, uids)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: summaries")
	}

	var candidates []Candidate
	for _, uid := range uids {
		rows, err := p.client.RunInfo(ctx, uid, p.cfg.Harvest.RunInfoMaxRows)
		if err != nil {
			rep.Inc(CounterUIDFetchErrors)
			rep.Record(Decision{SourceUID: uid, Reason: ReasonFetchError})
			zap.S().Warnw("runinfo fetch failed", "source_uid", uid, "error", err)
			continue
		}
		for _, row := range rows {
			rec := buildRecord(uid, summaries[uid], row)
			if rec.ID == "" {
				continue
			}
			rep.Inc(CounterRecordsIn)
			// Raw-id ledger check comes before resolution so an
			// already-harvested run costs no external calls.
			if p.led.Runs.Has(rec.ID) {
				rep.Record(Decision{RunID: rec.ID, SourceUID: uid, Reason: ReasonDuplicateRun})
				continue
			}
			res := p.resolver.Resolve(ctx, rec)
			if res.Resolved() {
				rep.Inc(CounterResolved)
			}
			if res.CacheHit {
				rep.Inc(CounterCacheHits)
			}
			candidates = append(candidates, Candidate{Record: rec, Resolution: res})
		}
	}

	kept, decisions := Collapse(candidates, p.led)
	rep.Record(decisions...)

	emitted := make([]model.EnrichedRecord, 0, len(kept))
	for _, cand := range kept {
		enr, err := p.enrich(ctx, rep, cand)
		if err != nil {
			rep.Record(Decision{
				RunID:     cand.Record.ID,
				SourceUID: cand.Record.SourceUID,
				Accession: cand.Resolution.Accession,
				Method:    string(cand.Resolution.Method),
				Reason:    ReasonFetchError,
			})
			zap.S().Warnw("enrichment failed, record dropped",
				"record", cand.Record.ID, "accession", cand.Resolution.Accession, "error", err)
			continue
		}
		p.led.Runs.Add(enr.ID)
		p.led.Projects.Add(cand.Resolution.Accession)
		if enr.Assay.Class == model.AssayUnknown {
			rep.Inc(CounterClassifiedUnknown)
		}
		if enr.Geo.Country != "" {
			rep.Inc(CounterGeoCountryInferred)
		}
		emitted = append(emitted, enr)
	}

	if err := p.commit(emitted); err != nil {
		return nil, err
	}
	rep.Add(CounterEmitted, len(emitted))
	return emitted, nil
}

// commit flushes the ledgers, then appends the finished batch to the
// durable catalog, then flushes the caches. Runs only after every
// record in the batch is enriched, so a crash mid-batch leaves the
// catalog and the ledgers untouched. The ledger-before-catalog order
// means a crash between the two can lose the batch's records but can
// never duplicate a project in the corpus: a re-run sees the flushed
// ids and skips them.
func (p *Pipeline) commit(records []model.EnrichedRecord) error {
	if err := p.led.Flush(); err != nil {
		return err
	}
	byYear := map[int][]model.EnrichedRecord{}
	for _, rec := range records {
		byYear[recordYear(rec)] = append(byYear[recordYear(rec)], rec)
	}
	for year, group := range byYear {
		if err := p.cat.Append(year, group); err != nil {
			return err
		}
	}
	return p.caches.Flush()
}

// buildRecord assembles a RawRecord from one runinfo row plus the
// entry summary it came from.
func buildRecord(uid string, sum eutils.Summary, row map[string]string) model.RawRecord {
	title := sum.Title
	if title == "" {
		title = row["LibraryName"]
	}
	return model.RawRecord{
		ID:              row["Run"],
		SourceUID:       uid,
		Title:           title,
		Fields:          row,
		SampleAccession: row["BioSample"],
		ProjectGuess:    sum.AccessionGuess,
		SummaryText:     sum.ItemText(),
	}
}

// recordYear partitions the catalog by upstream release year, falling
// back to the ingest year when the row carries no usable date.
func recordYear(rec model.EnrichedRecord) int {
	for _, field := range []string{"ReleaseDate", "LoadDate"} {
		v := rec.Fields[field]
		if len(v) >= 4 {
			if y, err := strconv.Atoi(v[:4]); err == nil && y > 1990 {
				return y
			}
		}
	}
	return rec.Provenance.IngestedAt.Year()
}

func nowUTC() time.Time { return time.Now().UTC() }
