// Package classify holds the pure heuristic classifiers: assay category and
// best-effort geographic inference. No I/O happens here; both functions are
// deterministic over their inputs.
package classify

import (
	"regexp"
	"strings"

	"github.com/urbanscope/harvester/internal/model"
)

var whitespace = regexp.MustCompile(`\s+`)

// norm lowercases and collapses whitespace for marker matching.
func norm(s string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Assay classifies a record by its library fields and free text. The rule
// cascade is ordered by domain specificity; the first matching rule wins.
// Every branch records the markers that triggered it so the decision can be
// audited later.
func Assay(fields map[string]string, title string, auxTexts []string) model.ClassificationResult {
	strat := norm(fields["LibraryStrategy"])
	src := norm(fields["LibrarySource"])
	sel := norm(fields["LibrarySelection"])

	parts := []string{norm(title)}
	for _, t := range auxTexts {
		if t != "" {
			parts = append(parts, norm(t))
		}
	}
	parts = append(parts, strat, src, sel)
	blob := strings.Join(parts, " | ")

	var hits, tags []string

	// Rule 1: amplicon marker, specialized to 16S/ITS when present.
	if strings.Contains(strat, "amplicon") || strings.Contains(blob, "amplicon") {
		hits = append(hits, "amplicon")
		tags = append(tags, "amplicon")
		if strings.Contains(blob, "16s") {
			hits = append(hits, "16s")
			tags = append(tags, "16S")
			return model.ClassificationResult{Class: model.Assay16S, Tags: tags, Confidence: model.ConfidenceHigh, Rationale: hits}
		}
		if strings.Contains(blob, "its") {
			hits = append(hits, "its")
			tags = append(tags, "ITS")
			return model.ClassificationResult{Class: model.AssayITS, Tags: tags, Confidence: model.ConfidenceHigh, Rationale: hits}
		}
		return model.ClassificationResult{Class: model.AssayAmplicon, Tags: tags, Confidence: model.ConfidenceHigh, Rationale: hits}
	}

	// Rule 2: transcriptome strategies or RNA-sequencing markers.
	if strat == "rna-seq" || strat == "transcriptome" ||
		strings.Contains(blob, "rna-seq") || strings.Contains(blob, "metatranscriptom") {
		hits = append(hits, "rna-seq/metatranscriptome")
		tags = append(tags, "RNA")
		return model.ClassificationResult{Class: model.AssayRNASeq, Tags: tags, Confidence: model.ConfidenceHigh, Rationale: hits}
	}

	// Rule 3: shotgun / whole-genome / metagenomic markers.
	if strat == "wgs" || strat == "metagenomic" ||
		strings.Contains(blob, "shotgun") || strings.Contains(blob, "wgs") || strings.Contains(blob, "metagenom") {
		hits = append(hits, "wgs/shotgun/metagenomic")
		tags = append(tags, "shotgun")
		return model.ClassificationResult{Class: model.AssayWGS, Tags: tags, Confidence: model.ConfidenceHigh, Rationale: hits}
	}

	// Rule 4: PCR or rRNA-targeted selection implies amplicon at medium
	// confidence, again specialized by marker.
	if strings.Contains(sel, "pcr") || strings.Contains(sel, "rrna") {
		hits = append(hits, "PCR/rRNA selection")
		tags = append(tags, "targeted")
		if strings.Contains(blob, "16s") {
			hits = append(hits, "16s")
			tags = append(tags, "16S")
			return model.ClassificationResult{Class: model.Assay16S, Tags: tags, Confidence: model.ConfidenceMedium, Rationale: hits}
		}
		if strings.Contains(blob, "its") {
			hits = append(hits, "its")
			tags = append(tags, "ITS")
			return model.ClassificationResult{Class: model.AssayITS, Tags: tags, Confidence: model.ConfidenceMedium, Rationale: hits}
		}
		return model.ClassificationResult{Class: model.AssayAmplicon, Tags: tags, Confidence: model.ConfidenceMedium, Rationale: hits}
	}

	return model.ClassificationResult{Class: model.AssayUnknown, Tags: []string{}, Confidence: model.ConfidenceLow, Rationale: []string{}}
}
