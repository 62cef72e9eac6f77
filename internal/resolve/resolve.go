// Package resolve maps raw catalog records to canonical project accessions
// through a strict three-tier fallback chain: embedded-field extraction,
// link-service lookup, then deep full-text scan. An empty result is a valid
// terminal outcome, never an error.
package resolve

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/urbanscope/harvester/internal/cachestore"
	"github.com/urbanscope/harvester/internal/model"
)

// LinkClient is the slice of the source client the resolver needs.
type LinkClient interface {
	// Linked returns secondary UIDs in targetDB linked to the raw entry UID.
	Linked(ctx context.Context, uid, targetDB string) ([]string, error)
	// ProjectAccession resolves one secondary UID to its accession.
	ProjectAccession(ctx context.Context, uid string) (string, error)
	// FetchDetail returns the full detail document text for the raw entry.
	FetchDetail(ctx context.Context, uid string) (string, error)
}

// Resolver runs the tiered fallback chain. The uidCache maps secondary
// (BioProject) UIDs to accessions; it is keyed by the secondary UID rather
// than the raw record id because many raw records share one secondary UID,
// which makes the hit rate worth having.
type Resolver struct {
	client   LinkClient
	uidCache *cachestore.Store
}

// New creates a Resolver over the given link client and secondary-uid cache.
func New(client LinkClient, uidCache *cachestore.Store) *Resolver {
	return &Resolver{client: client, uidCache: uidCache}
}

// Resolve returns the canonical project identity for rec. Tiers run in fixed
// order and each is attempted only when the previous produced nothing.
func (r *Resolver) Resolve(ctx context.Context, rec model.RawRecord) model.ResolutionResult {
	log := zap.L().With(zap.String("record", rec.ID), zap.String("source_uid", rec.SourceUID))

	// Tier 1: scan structured fields and the title for an embedded accession.
	if acc := scanEmbedded(rec); acc != "" {
		return model.ResolutionResult{Accession: acc, Method: model.MethodEmbedded}
	}

	// Tier 2: link service to a secondary UID, then summary lookup.
	acc, cacheHit, err := r.resolveLinked(ctx, rec.SourceUID)
	if err != nil {
		log.Warn("resolve: link lookup failed, falling through to full text", zap.Error(err))
	} else if acc != "" {
		return model.ResolutionResult{Accession: acc, Method: model.MethodLinked, CacheHit: cacheHit}
	}

	// Tier 3: fetch the full detail document and re-run the pattern scan.
	if rec.SourceUID != "" {
		text, err := r.client.FetchDetail(ctx, rec.SourceUID)
		if err != nil {
			log.Warn("resolve: detail fetch failed", zap.Error(err))
		} else if m := model.AccessionPattern.FindString(text); m != "" {
			if acc := model.NormalizeAccession(m); acc != "" {
				return model.ResolutionResult{Accession: acc, Method: model.MethodFullText}
			}
		}
	}

	log.Info("resolve: no canonical project identity found")
	return model.ResolutionResult{Method: model.MethodNone}
}

// resolveLinked implements tier 2. Each secondary UID's resolution is cached
// under that UID; an empty cached accession is a tombstone recording that the
// summary lookup found nothing.
func (r *Resolver) resolveLinked(ctx context.Context, uid string) (acc string, cacheHit bool, err error) {
	if uid == "" {
		return "", false, nil
	}

	secondaries, err := r.client.Linked(ctx, uid, "bioproject")
	if err != nil {
		return "", false, err
	}

	for _, sid := range secondaries {
		cached, ok, err := cachestore.GetAs[string](r.uidCache, sid)
		if err != nil {
			return "", false, err
		}
		if ok {
			if acc := model.NormalizeAccession(cached); acc != "" {
				return acc, true, nil
			}
			continue
		}
		if _, found, _ := r.uidCache.Get(sid); found {
			// Tombstoned on a prior run: known to resolve to nothing.
			continue
		}

		raw, err := r.client.ProjectAccession(ctx, sid)
		if err != nil {
			return "", false, err
		}
		acc := model.NormalizeAccession(raw)
		if acc == "" {
			r.uidCache.PutTombstone(sid)
			continue
		}
		if err := cachestore.PutAs(r.uidCache, sid, acc); err != nil {
			return "", false, err
		}
		return acc, false, nil
	}

	return "", false, nil
}

// scanEmbedded is tier 1: match the accession pattern against the record's
// structured fields, title, and the summary-derived project guess. Field
// names are visited in sorted order so the "first match wins" rule is
// deterministic; matches are re-validated before being trusted.
func scanEmbedded(rec model.RawRecord) string {
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if m := model.AccessionPattern.FindString(rec.Fields[name]); m != "" {
			if acc := model.NormalizeAccession(m); acc != "" {
				return acc
			}
		}
	}
	if m := model.AccessionPattern.FindString(rec.Title); m != "" {
		if acc := model.NormalizeAccession(m); acc != "" {
			return acc
		}
	}
	return model.NormalizeAccession(rec.ProjectGuess)
}
