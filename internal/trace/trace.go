// Package trace builds the source-attribution map for a finished case. It
// parses the closed-grammar [Source: X] tags out of every free-text output
// and supplements them with claims synthesized from the structured records,
// so every model that touched the case is accounted for.
package trace

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"aegis/internal/evidence"
	"aegis/internal/pharma"
	"aegis/internal/retrieval"
)

// Trace maps canonical source ids to deduplicated claims in first-seen
// order.
type Trace map[evidence.SourceID][]string

var (
	claimRE = regexp.MustCompile(`[^.!?\n]*?\[Source:\s*(\w+(?:_\w+)*)\][^.!?\n]*[.!?\n]?`)
	tagRE   = regexp.MustCompile(`\s*\[Source:\s*\w+(?:_\w+)*\]`)
)

// FromTexts extracts tagged claims from free text. Each claim is the
// sentence fragment enclosing the first tag, with all complete tags
// stripped; a dangling partial tag truncates the claim at the marker.
func FromTexts(texts ...string) Trace {
	t := Trace{}
	for _, text := range texts {
		for _, m := range claimRE.FindAllStringSubmatch(text, -1) {
			source := evidence.Canonical(evidence.SourceID(m[1]))
			t.add(source, cleanClaim(m[0]))
		}
	}
	return t
}

func cleanClaim(raw string) string {
	clean := strings.TrimSpace(tagRE.ReplaceAllString(raw, ""))
	// Partially rendered tag: keep the salvageable prefix.
	if idx := strings.Index(clean, "[Source:"); idx >= 0 {
		clean = strings.TrimSpace(clean[:idx])
	}
	return clean
}

func (t Trace) add(source evidence.SourceID, claim string) {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return
	}
	for _, existing := range t[source] {
		if existing == claim {
			return
		}
	}
	t[source] = append(t[source], claim)
}

func (t Trace) merge(other Trace) {
	for source, claims := range other {
		for _, claim := range claims {
			t.add(source, claim)
		}
	}
}

// Sources returns the trace keys in sorted order.
func (t Trace) Sources() []evidence.SourceID {
	out := make([]evidence.SourceID, 0, len(t))
	for src := range t {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SourceCounts reports the number of claims per source.
func (t Trace) SourceCounts() map[evidence.SourceID]int {
	counts := make(map[evidence.SourceID]int, len(t))
	for src, claims := range t {
		counts[src] = len(claims)
	}
	return counts
}

const (
	transcriptSnippetLimit = 200
	interactionClaimLimit  = 200
	frameItemCap           = 6
	demographicsCap        = 4
	similarCasesCap        = 5
)

// Input bundles everything the aggregator reads. All fields are optional.
type Input struct {
	DebateTexts  []string
	Pool         []evidence.Item
	Tx           *pharma.Analysis
	Transcript   string
	Frame        evidence.ClinicalFrame
	SimilarCases []retrieval.Case
}

// Build assembles the comprehensive trace. The coverage guarantee: every
// canonical source present in the evidence pool appears as a key, even if
// its only claim is a placeholder.
func Build(in Input) Trace {
	t := FromTexts(in.DebateTexts...)

	for _, ev := range in.Pool {
		source := evidence.Canonical(ev.Source)
		switch {
		case ev.Status == evidence.StatusOK && ev.Finding != "":
			// Pooled findings are free text and may carry provenance
			// tags of their own; claims stay tag-free.
			t.add(source, cleanClaim(ev.Finding))
		case ev.Status == evidence.StatusMissingData && ev.NextBestAction != "":
			t.add(source, "[MISSING] "+ev.NextBestAction)
		}
	}

	if snippet := transcriptSnippet(in.Transcript); snippet != "" {
		t.add(evidence.SourceTranscript, snippet)
	}

	addFrameClaims(t, in.Frame)
	addTxClaims(t, in.Tx)

	similar := in.SimilarCases
	if len(similar) > similarCasesCap {
		similar = similar[:similarCasesCap]
	}
	for _, c := range similar {
		id := c.CaseID
		if id == "" {
			id = "Unknown"
		}
		diagnosis := c.Diagnosis
		if diagnosis == "" {
			diagnosis = "N/A"
		}
		t.add(evidence.SourceCaseLibrary,
			fmt.Sprintf("Case %s: %s (similarity: %.2f)", id, diagnosis, c.Similarity))
	}

	ensureCoverage(t, in.Pool)
	return t
}

func transcriptSnippet(transcript string) string {
	if len(transcript) > transcriptSnippetLimit {
		// Back off to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := transcriptSnippetLimit
		for cut > 0 && !utf8.RuneStart(transcript[cut]) {
			cut--
		}
		transcript = transcript[:cut]
	}
	return strings.TrimSpace(transcript)
}

func addFrameClaims(t Trace, frame evidence.ClinicalFrame) {
	fields := []struct {
		label string
		items []string
	}{
		{"Symptoms", frame.Symptoms},
		{"Medications", frame.Medications},
		{"Conditions", frame.Conditions},
	}
	for _, f := range fields {
		if len(f.items) == 0 {
			continue
		}
		items := f.items
		if len(items) > frameItemCap {
			items = items[:frameItemCap]
		}
		t.add(evidence.SourceClinicalFrame, f.label+": "+strings.Join(items, ", "))
	}

	if len(frame.Demographics) > 0 {
		keys := make([]string, 0, len(frame.Demographics))
		for k := range frame.Demographics {
			if frame.Demographics[k] != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) > demographicsCap {
			keys = keys[:demographicsCap]
		}
		var parts []string
		for _, k := range keys {
			parts = append(parts, k+": "+frame.Demographics[k])
		}
		if len(parts) > 0 {
			t.add(evidence.SourceClinicalFrame, "Demographics: "+strings.Join(parts, ", "))
		}
	}
}

func addTxClaims(t Trace, tx *pharma.Analysis) {
	if tx == nil {
		return
	}
	if tx.TaggedOutput != "" {
		t.merge(FromTexts(tx.TaggedOutput))
	}
	for _, ix := range tx.Interactions {
		claim := fmt.Sprintf("[%s] %s", ix.Severity, ix.Detail)
		if ix.Drugs != "" {
			claim = fmt.Sprintf("[%s] %s: %s", ix.Severity, ix.Drugs, ix.Detail)
		}
		if len(claim) > interactionClaimLimit {
			cut := interactionClaimLimit
			for cut > 0 && !utf8.RuneStart(claim[cut]) {
				cut--
			}
			claim = claim[:cut]
		}
		t.add(evidence.SourceTxGemma, claim)
	}
	for _, alert := range tx.InventoryAlerts {
		if alert.Message != "" {
			t.add(evidence.SourceInventory, alert.Message)
		}
	}
}

// ensureCoverage backfills a synthetic claim for any pool source the tag
// scan and the structured passes both missed.
func ensureCoverage(t Trace, pool []evidence.Item) {
	for _, ev := range pool {
		source := evidence.Canonical(ev.Source)
		if source == "" {
			continue
		}
		if _, ok := t[source]; ok {
			continue
		}
		switch {
		case ev.Status == evidence.StatusOK && cleanClaim(ev.Finding) != "":
			t.add(source, cleanClaim(ev.Finding))
		case ev.Status == evidence.StatusMissingData && ev.NextBestAction != "":
			t.add(source, "[MISSING] "+ev.NextBestAction)
		case ev.Status == evidence.StatusMissingData:
			t.add(source, fmt.Sprintf("[MISSING] No data available for %s", source))
		default:
			t.add(source, fmt.Sprintf("Data processed by %s", source))
		}
	}
}
