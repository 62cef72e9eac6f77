package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/urbanscope/harvester/internal/cachestore"
	"github.com/urbanscope/harvester/internal/classify"
	"github.com/urbanscope/harvester/internal/model"
)

// enrich turns a kept candidate into the persisted record: biosample
// card, assay classification, geography and project details. Hard
// enrichment failures (exhausted retries) bubble up so the caller can
// drop the record without aborting the batch.
func (p *Pipeline) enrich(ctx context.Context, rep *Reporter, cand Candidate) (model.EnrichedRecord, error) {
	rec := cand.Record
	enr := model.EnrichedRecord{
		ID:         rec.ID,
		SourceUID:  rec.SourceUID,
		Title:      rec.Title,
		Fields:     rec.Fields,
		Resolution: cand.Resolution,
		Provenance: model.Provenance{IngestedAt: nowUTC(), Source: "sra"},
	}

	attrs := map[string]string{}
	var aux []string
	if rec.SummaryText != "" {
		aux = append(aux, rec.SummaryText)
	}
	if p.cfg.Enrich.Biosample && rec.SampleAccession != "" {
		sample, err := p.sampleDetails(ctx, rep, rec.SampleAccession)
		if err != nil {
			return enr, err
		}
		if sample != nil {
			enr.Sample = sample
			attrs = sample.Attributes
			aux = append(aux, sample.Title, attrBlob(sample.Attributes))
		}
	}

	enr.Assay = classify.Assay(rec.Fields, rec.Title, aux)
	enr.Geo = classify.Geo(attrs, geoFallbacks(rec), p.tables)

	if p.cfg.Enrich.Bioproject && cand.Resolution.Resolved() {
		project, err := p.projectDetails(ctx, rep, cand.Resolution.Accession)
		if err != nil {
			return enr, err
		}
		enr.Project = project
	}

	enr.Links = recordLinks(rec, cand.Resolution.Accession)
	return enr, nil
}

// sampleDetails returns the biosample card for accession, consulting
// the cache first. A fetch that succeeds but yields nothing is
// tombstoned so the lookup never repeats.
func (p *Pipeline) sampleDetails(ctx context.Context, rep *Reporter, accession string) (*model.SampleDetails, error) {
	if cached, ok, err := cachestore.GetAs[model.SampleDetails](p.caches.Sample, accession); err != nil {
		return nil, err
	} else if ok {
		rep.Inc(CounterCacheHits)
		return &cached, nil
	}
	if _, _, tombstoned := p.caches.Sample.Get(accession); tombstoned {
		return nil, nil
	}

	detail, err := p.client.SampleDetail(ctx, accession)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: biosample %s", accession)
	}
	if detail == nil || (detail.Title == "" && len(detail.Attributes) == 0) {
		p.caches.Sample.PutTombstone(accession)
		return nil, nil
	}

	card := sampleCard(accession, detail.Title, detail.Organism, detail.Attributes)
	if err := cachestore.PutAs(p.caches.Sample, accession, card); err != nil {
		return nil, err
	}
	rep.Inc(CounterSamplesEnriched)
	return &card, nil
}

// sampleCard surfaces the commonly asked-for attributes alongside the
// full attribute map.
func sampleCard(accession, title, organism string, attrs map[string]string) model.SampleDetails {
	pick := func(names ...string) string {
		for _, n := range names {
			if v := attrs[n]; v != "" {
				return v
			}
		}
		return ""
	}
	return model.SampleDetails{
		Accession:      accession,
		Title:          title,
		Organism:       organism,
		CollectionDate: pick("collection_date", "collection date"),
		SampleType:     pick("sample_type", "sample type", "isolation_source", "isolation source"),
		Host:           pick("host"),
		EnvBiome:       pick("env_biome", "env biome", "env_broad_scale"),
		EnvFeature:     pick("env_feature", "env feature", "env_local_scale"),
		EnvMaterial:    pick("env_material", "env material", "env_medium"),
		Attributes:     attrs,
	}
}

// projectDetails returns project metadata for accession. Both the
// accession→uid hop and the details payload are cached; invalid or
// unlocatable accessions are tombstoned.
func (p *Pipeline) projectDetails(ctx context.Context, rep *Reporter, accession string) (*model.ProjectDetails, error) {
	if cached, ok, err := cachestore.GetAs[model.ProjectDetails](p.caches.Project, accession); err != nil {
		return nil, err
	} else if ok {
		rep.Inc(CounterCacheHits)
		return &cached, nil
	}
	if _, _, tombstoned := p.caches.Project.Get(accession); tombstoned {
		return nil, nil
	}

	uid, err := p.projectUID(ctx, rep, accession)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		p.caches.Project.PutTombstone(accession)
		return nil, nil
	}

	sum, err := p.client.ProjectSummary(ctx, uid)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: bioproject %s", accession)
	}
	if sum == nil {
		p.caches.Project.PutTombstone(accession)
		return nil, nil
	}

	details := model.ProjectDetails{
		UID:            uid,
		Accession:      accession,
		Title:          sum.Title,
		Description:    sum.Description,
		Organism:       sum.Organism,
		DataType:       sum.DataType,
		SubmissionDate: sum.SubmissionDate,
		LastUpdate:     sum.LastUpdate,
		CenterName:     sum.CenterName,
	}
	if err := cachestore.PutAs(p.caches.Project, accession, details); err != nil {
		return nil, err
	}
	rep.Inc(CounterProjectsEnriched)
	return &details, nil
}

func (p *Pipeline) projectUID(ctx context.Context, rep *Reporter, accession string) (string, error) {
	if cached, ok, err := cachestore.GetAs[string](p.caches.ProjectUID, accession); err != nil {
		return "", err
	} else if ok {
		rep.Inc(CounterCacheHits)
		return cached, nil
	}
	if _, _, tombstoned := p.caches.ProjectUID.Get(accession); tombstoned {
		return "", nil
	}

	uid, err := p.client.ProjectUID(ctx, accession)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: bioproject uid %s", accession)
	}
	if uid == "" {
		p.caches.ProjectUID.PutTombstone(accession)
		return "", nil
	}
	if err := cachestore.PutAs(p.caches.ProjectUID, accession, uid); err != nil {
		return "", err
	}
	return uid, nil
}

// attrBlob flattens sample attributes into one searchable string, in
// key order so classification stays deterministic.
func attrBlob(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+attrs[k])
	}
	return strings.Join(parts, " ; ")
}

func geoFallbacks(rec model.RawRecord) []string {
	return []string{
		rec.Title,
		rec.Field("SampleName"),
		rec.Field("CenterName"),
		rec.Field("ScientificName"),
	}
}

func recordLinks(rec model.RawRecord, accession string) model.Links {
	links := model.Links{
		RunURL:    "https://trace.ncbi.nlm.nih.gov/Traces/?view=run_browser&acc=" + rec.ID,
		SourceURL: "https://www.ncbi.nlm.nih.gov/sra/?term=" + rec.ID,
	}
	if accession != "" {
		links.ProjectURL = "https://www.ncbi.nlm.nih.gov/bioproject/" + accession
	}
	return links
}
