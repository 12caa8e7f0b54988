// Package pharma runs the drug-interaction and inventory-routing stage. The
// generation backend is an external collaborator; this package owns the
// blocking rule, the source-tagging contract and the typed parsing of the
// analysis text.
package pharma

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"aegis/internal/evidence"
	"aegis/internal/lease"
)

// Generator issues one bounded-length generation call.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Severity grades one drug-drug interaction.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityModerate Severity = "MODERATE"
	SeverityLow      Severity = "LOW"
)

// Interaction is one parsed drug-drug interaction.
type Interaction struct {
	Severity Severity `json:"severity"`
	Drugs    string   `json:"drugs"`
	Detail   string   `json:"detail"`
}

// Substitution is one parsed substitution recommendation.
type Substitution struct {
	Text string `json:"text"`
}

// InventoryAlert flags a proposed drug that the local formulary cannot serve.
type InventoryAlert struct {
	Drug       string `json:"drug"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Substitute string `json:"substitute,omitempty"`
}

// Analysis is the stage output consumed by the debate controller and the
// citation aggregator.
type Analysis struct {
	Evidence        evidence.Item    `json:"evidence_item"`
	TaggedOutput    string           `json:"tagged_output"`
	Interactions    []Interaction    `json:"interaction_flags"`
	Substitutions   []Substitution   `json:"substitutions"`
	InventoryAlerts []InventoryAlert `json:"inventory_alerts"`
}

// Input is the narrow slice of the assembled case the analyzer needs.
type Input struct {
	Conditions      []string
	Medications     []string
	ProposedRegimen string
	ProposedDrugs   []string
	MissingCount    int
}

const generationBudget = 500

// Analyzer coordinates the drug-interaction stage.
type Analyzer struct {
	gen   Generator
	lease *lease.Manager
	inv   Inventory
	log   *zap.Logger
}

// NewAnalyzer wires the stage. gen may be nil: the analyzer then always uses
// the deterministic fallback analysis.
func NewAnalyzer(gen Generator, mgr *lease.Manager, inv Inventory, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{gen: gen, lease: mgr, inv: inv, log: log}
}

// Analyze runs the stage. More than two missing modalities short-circuit to a
// BLOCKED result: that is a recognized, reported business state, not an
// error, and it never touches the accelerator.
func (a *Analyzer) Analyze(ctx context.Context, in Input) *Analysis {
	if in.MissingCount > 2 {
		return blockedAnalysis()
	}

	raw := ""
	if a.gen != nil {
		var handle *lease.Handle
		if a.lease != nil {
			h, err := a.lease.Acquire(ctx, "TxGemma")
			if err != nil {
				a.log.Warn("drug interaction lease acquire failed", zap.Error(err))
				return a.finish(fallbackAnalysis(in, a.inv), in)
			}
			handle = h
			defer handle.Release()
		}
		out, err := a.gen.Generate(ctx, buildPrompt(in, a.inv), generationBudget)
		if err != nil {
			a.log.Warn("drug interaction generation failed, using fallback", zap.Error(err))
			raw = fallbackAnalysis(in, a.inv)
		} else {
			raw = out
		}
	} else {
		raw = fallbackAnalysis(in, a.inv)
	}

	return a.finish(raw, in)
}

const evidenceFindingLimit = 500

func (a *Analyzer) finish(raw string, in Input) *Analysis {
	tagged := AddSourceTags(raw)
	alerts := a.inv.Check(in.ProposedDrugs)

	// The evidence item carries plain prose; provenance tags live only in
	// TaggedOutput, where the citation grammar parses them.
	finding := truncateRunes(StripSourceTags(tagged), evidenceFindingLimit)

	return &Analysis{
		Evidence: evidence.Item{
			Modality:   evidence.ModalityDrugInteraction,
			Source:     evidence.SourceTxGemma,
			Status:     evidence.StatusOK,
			Finding:    finding,
			Confidence: evidence.Conf(0.85),
		},
		TaggedOutput:    tagged,
		Interactions:    ExtractInteractions(tagged),
		Substitutions:   ExtractSubstitutions(tagged),
		InventoryAlerts: alerts,
	}
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

const blockedFinding = "Insufficient data for a confirmed treatment regimen. " +
	"Recommend completing missing workup before prescribing. " +
	"Preliminary interaction check only."

func blockedAnalysis() *Analysis {
	return &Analysis{
		Evidence: evidence.Item{
			Modality:       evidence.ModalityDrugInteraction,
			Source:         evidence.SourceTxGemma,
			Status:         evidence.StatusBlocked,
			Finding:        blockedFinding,
			NextBestAction: "Complete missing workup before prescription mode.",
		},
		TaggedOutput:    blockedFinding + " [Source: TxGemma_DDI]",
		Interactions:    []Interaction{},
		Substitutions:   []Substitution{},
		InventoryAlerts: []InventoryAlert{},
	}
}

func buildPrompt(in Input, inv Inventory) string {
	conditions := strings.Join(in.Conditions, ", ")
	if conditions == "" {
		conditions = "HIV+ lymphoma"
	}
	medications := strings.Join(in.Medications, ", ")
	if medications == "" {
		medications = "TLD (Tenofovir/Lamivudine/Dolutegravir)"
	}
	regimen := in.ProposedRegimen
	if regimen == "" {
		regimen = "CHOP"
	}

	inventoryBlock := "Standard LMIC formulary"
	if len(inv.AvailableDrugs) > 0 {
		if b, err := json.MarshalIndent(inv.AvailableDrugs, "", "  "); err == nil {
			inventoryBlock = string(b)
		}
	}

	return fmt.Sprintf(`You are a clinical pharmacology AI. Analyze drug interactions and safety for this oncology case.

PATIENT:
- Conditions: %s
- Current medications: %s
- Proposed regimen: %s

LOCAL DRUG INVENTORY:
%s

TASKS:
1. Check all drug-drug interactions between current medications and proposed regimen
2. Flag any critical interactions (especially ART + chemo interactions)
3. Check drug availability in local inventory
4. Suggest substitutions for unavailable drugs
5. Note any dose adjustments needed for comorbidities

Output your analysis clearly with interaction severity levels (CRITICAL/MODERATE/LOW).`,
		conditions, medications, regimen, inventoryBlock)
}

// fallbackAnalysis is the deterministic text used when the generation backend
// is unavailable. It mirrors the structure the backend is prompted for so the
// downstream parsers exercise the same paths.
func fallbackAnalysis(in Input, inv Inventory) string {
	medications := in.Medications
	if len(medications) == 0 {
		medications = []string{"tenofovir", "lamivudine", "dolutegravir"}
	}
	regimen := in.ProposedRegimen
	if regimen == "" {
		regimen = "CHOP"
	}

	lines := []string{
		"DRUG INTERACTION ANALYSIS:",
		"",
		"Proposed regimen: " + regimen,
		"Current ART: " + strings.Join(medications, ", "),
		"",
		"INTERACTIONS FOUND:",
		"",
	}

	if inv.OutOfStock("doxorubicin") {
		lines = append(lines,
			"1. CRITICAL: Tenofovir + Liposomal Doxorubicin — Both drugs can cause renal toxicity. "+
				"Dose adjustment of tenofovir is essential, and monitoring of renal function is crucial.",
			"",
			"2. MODERATE: Lamivudine + Liposomal Doxorubicin — Lamivudine can increase levels of bilirubin, "+
				"potentially leading to toxicity when combined with liposomal doxorubicin. Close monitoring is necessary.",
			"",
			"3. LOW: Dolutegravir + Liposomal Doxorubicin — Limited data on clinically significant interactions. "+
				"Monitor for potential changes in dolutegravir efficacy and side effects.",
			"",
		)
	} else {
		lines = append(lines,
			"1. MODERATE: Dolutegravir + Vincristine — monitor for increased neuropathy risk. "+
				"Dolutegravir may increase vincristine exposure via CYP3A4 inhibition.",
			"",
			"2. CRITICAL: If Rifampicin is co-administered (for TB treatment), it significantly "+
				"reduces Dolutegravir levels. MUST double Dolutegravir dose to 50mg BID.",
			"",
			"3. LOW: Tenofovir + Cyclophosphamide — monitor renal function closely. "+
				"Both are nephrotoxic.",
			"",
		)
	}

	lines = append(lines, "INVENTORY CHECK:")
	proposed := in.ProposedDrugs
	if len(proposed) == 0 {
		proposed = []string{"cyclophosphamide", "doxorubicin", "vincristine", "prednisone"}
	}
	for _, drug := range proposed {
		switch {
		case inv.OutOfStock(drug):
			lines = append(lines, fmt.Sprintf("  %s — OUT OF STOCK. Substitution needed.", title(drug)))
		case len(inv.AvailableDrugs) > 0 && !inv.Listed(drug):
			lines = append(lines, fmt.Sprintf("  %s — NOT IN STOCK. Substitution needed.", title(drug)))
		default:
			lines = append(lines, fmt.Sprintf("  %s — available", title(drug)))
		}
	}

	var subs []string
	if inv.OutOfStock("doxorubicin") {
		subs = append(subs,
			"  Doxorubicin out of stock. Substitute: Liposomal Doxorubicin (reduced cardiotoxicity). "+
				"Dose adjustment required per institutional protocol.")
	}
	if len(inv.AvailableDrugs) > 0 && !inv.Listed("rituximab") {
		subs = append(subs,
			"  Rituximab unavailable locally. Recommend CHOP without R (R-CHOP to CHOP). "+
				"Efficacy reduction ~10-15% but acceptable in resource-limited settings.")
	}
	if len(subs) > 0 {
		lines = append(lines, "", "SUBSTITUTION:")
		lines = append(lines, subs...)
	}

	lines = append(lines,
		"",
		"DOSE ADJUSTMENTS:",
		"  - Monitor eGFR before each Cyclophosphamide cycle (Tenofovir nephrotoxicity)",
		"  - Consider G-CSF prophylaxis given CD4 < 200 (neutropenia risk)",
	)

	return strings.Join(lines, "\n")
}

// LoadInventory reads the local formulary JSON. A missing file yields an
// empty inventory, which disables availability alerts.
func LoadInventory(path string) (Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Inventory{}, nil
		}
		return Inventory{}, fmt.Errorf("pharma: read inventory: %w", err)
	}
	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return Inventory{}, fmt.Errorf("pharma: parse inventory: %w", err)
	}
	return inv, nil
}
