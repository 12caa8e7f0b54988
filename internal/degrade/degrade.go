// Package degrade turns the evidence pool into the assembled case that
// drives the persona debate: a degradation verdict, a remediation list and
// the stage plan. The decision core is a pure function of the pool.
package degrade

import (
	"sort"
	"strings"

	"aegis/internal/evidence"
	"aegis/internal/pharma"
	"aegis/internal/retrieval"
	"aegis/internal/risk"
)

// Level is the graceful-degradation verdict for a case.
type Level string

const (
	LevelFull        Level = "FULL"
	LevelReduced     Level = "REDUCED"
	LevelProvisional Level = "PROVISIONAL"
	LevelMinimal     Level = "MINIMAL"
	LevelNoData      Level = "NO_DATA"
)

// Staging confidence labels. PathologyRequired annotates an otherwise
// confirmed staging when histopathology is the one thing missing.
const (
	StagingConfirmed         = "CONFIRMED"
	StagingProvisional       = "PROVISIONAL"
	StagingInsufficientData  = "INSUFFICIENT_DATA"
	StagingNoData            = "NO_DATA"
	StagingPathologyRequired = "PROVISIONAL — PATHOLOGY REQUIRED"
)

// Stage identifies one persona debate stage.
type Stage string

const (
	StagePathologist        Stage = "pathologist"
	StageRadiologist        Stage = "radiologist"
	StageOncologist         Stage = "oncologist"
	StageSynthesis          Stage = "synthesis"
	StagePatientTranslation Stage = "patient_translation"
)

// AllStages is the full debate sequence in execution order.
var AllStages = []Stage{
	StagePathologist,
	StageRadiologist,
	StageOncologist,
	StageSynthesis,
	StagePatientTranslation,
}

// PassPlan selects which debate stages run for a case.
type PassPlan struct {
	Stages []Stage `json:"run_stages"`
	Mode   string  `json:"mode"`
	Note   string  `json:"note,omitempty"`
}

const (
	ModeFull        = "FULL"
	ModeProvisional = "PROVISIONAL"
	ModeWorkupOnly  = "WORKUP_ONLY"
	ModeNoAI        = "NO_AI"
)

// NBAItem is one priority-ordered remediation entry for a missing modality.
type NBAItem struct {
	Source        evidence.SourceID `json:"source_id"`
	Action        string            `json:"action"`
	Cost          string            `json:"cost"`
	PatientFacing string            `json:"patient_facing"`
	Priority      int               `json:"priority"`
}

// OncoCase is the assembled case: read-only input to the debate controller
// and the drug-interaction stage.
type OncoCase struct {
	SessionID         string                       `json:"session_id"`
	Frame             evidence.ClinicalFrame       `json:"clinical_frame"`
	Pool              []evidence.Item              `json:"evidence_pool"`
	Findings          map[evidence.SourceID]string `json:"findings"`
	Risk              risk.Result                  `json:"risk_assessment"`
	Level             Level                        `json:"degradation_level"`
	StagingConfidence string                       `json:"staging_confidence"`
	MissingCount      int                          `json:"missing_count"`
	MissingSources    []evidence.SourceID          `json:"missing_modalities"`
	NBAList           []NBAItem                    `json:"nba_list"`
	PathologyMissing  bool                         `json:"path_missing"`
	ProposedRegimen   string                       `json:"proposed_regimen"`
	ProposedDrugs     []string                     `json:"proposed_drugs"`
	Plan              PassPlan                     `json:"pass_plan"`
	Tx                *pharma.Analysis             `json:"tx_analysis"`
	InteractionFlags  []pharma.Interaction         `json:"interaction_flags"`
	InventoryAlerts   []pharma.InventoryAlert      `json:"inventory_alerts"`
	SimilarCases      []retrieval.Case             `json:"similar_cases"`
}

// Builder assembles OncoCases against a remediation catalog.
type Builder struct {
	catalog Catalog
}

// NewBuilder returns a builder. A nil catalog falls back to the embedded
// default.
func NewBuilder(catalog Catalog) *Builder {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Builder{catalog: catalog}
}

// Build assembles the case from everything upstream of the debate. The
// drug-interaction analysis attaches later via AttachAnalysis because it
// consumes the case itself.
func (b *Builder) Build(
	sessionID string,
	frame evidence.ClinicalFrame,
	pool []evidence.Item,
	riskRes risk.Result,
	similar []retrieval.Case,
) *OncoCase {
	var missing []evidence.Item
	findings := map[evidence.SourceID]string{}
	for _, item := range pool {
		switch item.Status {
		case evidence.StatusMissingData:
			if item.Modality.Core() {
				missing = append(missing, item)
			}
		case evidence.StatusOK:
			findings[item.Source] = item.Finding
		}
	}
	missingCount := len(missing)

	level, staging := classify(missingCount)

	pathMissing := false
	for _, item := range missing {
		if evidence.Canonical(item.Source) == evidence.SourcePathFoundation {
			pathMissing = true
		}
	}
	if pathMissing && staging == StagingConfirmed {
		staging = StagingPathologyRequired
	}

	missingSources := make([]evidence.SourceID, len(missing))
	for i, item := range missing {
		missingSources[i] = item.Source
	}

	if similar == nil {
		similar = []retrieval.Case{}
	}

	return &OncoCase{
		SessionID:         sessionID,
		Frame:             frame,
		Pool:              pool,
		Findings:          findings,
		Risk:              riskRes,
		Level:             level,
		StagingConfidence: staging,
		MissingCount:      missingCount,
		MissingSources:    missingSources,
		NBAList:           b.buildNBAList(missing),
		PathologyMissing:  pathMissing,
		ProposedRegimen:   suggestRegimen(frame),
		ProposedDrugs:     suggestDrugs(frame),
		Plan:              planFor(level),
		InteractionFlags:  []pharma.Interaction{},
		InventoryAlerts:   []pharma.InventoryAlert{},
		SimilarCases:      similar,
	}
}

// AttachAnalysis records the drug-interaction stage output on the case.
func (c *OncoCase) AttachAnalysis(tx *pharma.Analysis) {
	if tx == nil {
		return
	}
	c.Tx = tx
	c.InteractionFlags = tx.Interactions
	c.InventoryAlerts = tx.InventoryAlerts
}

// PharmaInput projects the case onto the slice the drug-interaction
// analyzer needs.
func (c *OncoCase) PharmaInput() pharma.Input {
	return pharma.Input{
		Conditions:      c.Frame.Conditions,
		Medications:     c.Frame.Medications,
		ProposedRegimen: c.ProposedRegimen,
		ProposedDrugs:   c.ProposedDrugs,
		MissingCount:    c.MissingCount,
	}
}

func classify(missingCount int) (Level, string) {
	switch {
	case missingCount == 0:
		return LevelFull, StagingConfirmed
	case missingCount == 1:
		return LevelReduced, StagingConfirmed
	case missingCount == 2:
		return LevelProvisional, StagingProvisional
	case missingCount >= len(evidence.CoreModalities):
		return LevelNoData, StagingNoData
	default:
		return LevelMinimal, StagingInsufficientData
	}
}

func planFor(level Level) PassPlan {
	switch level {
	case LevelNoData:
		return PassPlan{
			Stages: []Stage{},
			Mode:   ModeNoAI,
			Note:   "No clinical data available. No AI inference runs.",
		}
	case LevelMinimal:
		return PassPlan{
			Stages: []Stage{StageSynthesis, StagePatientTranslation},
			Mode:   ModeWorkupOnly,
			Note:   "Minimal data mode. Workup plan generated, not a treatment plan.",
		}
	case LevelFull, LevelReduced:
		return PassPlan{Stages: append([]Stage(nil), AllStages...), Mode: ModeFull}
	default:
		return PassPlan{Stages: append([]Stage(nil), AllStages...), Mode: ModeProvisional}
	}
}

// Includes reports whether the plan runs the given stage.
func (p PassPlan) Includes(stage Stage) bool {
	for _, s := range p.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

func (b *Builder) buildNBAList(missing []evidence.Item) []NBAItem {
	list := []NBAItem{}
	for _, item := range missing {
		src := evidence.Canonical(item.Source)
		entry := b.catalog[src]

		action := item.NextBestAction
		if action == "" {
			action = entry.Action
		}
		if action == "" {
			continue
		}

		cost := entry.Cost
		if cost == "" {
			cost = "N/A"
		}

		list = append(list, NBAItem{
			Source:        src,
			Action:        action,
			Cost:          cost,
			PatientFacing: entry.PatientFacing,
			Priority:      priorityFor(src),
		})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	return list
}

func suggestRegimen(frame evidence.ClinicalFrame) string {
	switch {
	case hasCondition(frame, "lymphoma"):
		return "CHOP"
	case hasCondition(frame, "kaposi"):
		return "Liposomal Doxorubicin + ART optimization"
	case hasCondition(frame, "cervical"):
		return "Cisplatin + RT"
	case hasCondition(frame, "lung"), hasCondition(frame, "adenocarcinoma"):
		return "Carboplatin + Paclitaxel"
	}
	// default for HIV-associated lymphoma
	return "CHOP"
}

func suggestDrugs(frame evidence.ClinicalFrame) []string {
	if hasCondition(frame, "kaposi") && !hasCondition(frame, "lymphoma") {
		return []string{"liposomal_doxorubicin"}
	}
	return []string{"cyclophosphamide", "doxorubicin", "vincristine", "prednisone"}
}

func hasCondition(frame evidence.ClinicalFrame, substr string) bool {
	for _, c := range frame.Conditions {
		if strings.Contains(strings.ToLower(c), substr) {
			return true
		}
	}
	return false
}
