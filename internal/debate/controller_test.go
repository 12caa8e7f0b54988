package debate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aegis/internal/degrade"
	"aegis/internal/evidence"
	"aegis/internal/lease"
	"aegis/internal/risk"
)

func caseWithMissing(t *testing.T, missing ...evidence.SourceID) *degrade.OncoCase {
	t.Helper()
	full := []evidence.Item{
		{Modality: evidence.ModalityAudio, Source: evidence.SourceTranscript, Status: evidence.StatusOK, Finding: "Transcript captured."},
		{Modality: evidence.ModalityCough, Source: evidence.SourceHeAR, Status: evidence.StatusOK, Finding: "TB cough signature 0.73."},
		{Modality: evidence.ModalityCXR, Source: evidence.SourceCXRFoundation, Status: evidence.StatusOK, Finding: "Bilateral infiltrates."},
		{Modality: evidence.ModalityHistopathology, Source: evidence.SourcePathFoundation, Status: evidence.StatusOK, Finding: "DLBCL morphology."},
		{Modality: evidence.ModalityDerm, Source: evidence.SourceDermFoundation, Status: evidence.StatusOK, Finding: "Violaceous plaques."},
	}
	missingSet := map[evidence.SourceID]bool{}
	for _, m := range missing {
		missingSet[m] = true
	}
	pool := make([]evidence.Item, len(full))
	for i, item := range full {
		if missingSet[item.Source] {
			pool[i] = evidence.Missing(item.Modality, item.Source, "Obtain data.")
		} else {
			pool[i] = item
		}
	}
	return degrade.NewBuilder(nil).Build("s1", evidence.EmptyFrame(), pool, risk.Result{}, nil)
}

func TestRunAllStagesWithGenerator(t *testing.T) {
	gen := &FakeGenerator{Responses: map[string]string{
		"Virtual Pathologist":         "Path opinion [Source: Path_Foundation].",
		"Virtual Radiologist":         "Radiology opinion [Source: CXR_Foundation].",
		"Virtual Oncologist":          "Oncology plan [Source: TxGemma].",
		"Chief Physician Synthesizer": "Final synthesis [Source: Path_Foundation].",
		"compassionate":               "Dear Patient, all is explained.",
	}}
	c := NewController(gen, nil, zap.NewNop())

	res := c.Run(context.Background(), caseWithMissing(t))

	assert.Equal(t, "Path opinion [Source: Path_Foundation].", res.Pathologist)
	assert.Equal(t, "Radiology opinion [Source: CXR_Foundation].", res.Radiologist)
	assert.Equal(t, "Oncology plan [Source: TxGemma].", res.Oncologist)
	assert.Equal(t, "Final synthesis [Source: Path_Foundation].", res.Synthesis)
	assert.Equal(t, "Dear Patient, all is explained.", res.PatientLetter)
	assert.Equal(t, []int{200, 200, 200, 600, 300}, gen.Budgets)
	require.Len(t, res.Stages, 5)
	assert.Len(t, res.Texts(), 5)
}

func TestRunChainsPriorOutputs(t *testing.T) {
	gen := &FakeGenerator{Responses: map[string]string{
		"Virtual Pathologist": "PATH-OPINION-MARKER [Source: Path_Foundation].",
		"Virtual Radiologist": "Radiology [Source: CXR_Foundation].",
	}}
	c := NewController(gen, nil, zap.NewNop())

	c.Run(context.Background(), caseWithMissing(t))

	require.Len(t, gen.Prompts, 5)
	assert.Contains(t, gen.Prompts[1], "PATH-OPINION-MARKER",
		"radiologist prompt embeds the pathologist output")
	assert.Contains(t, gen.Prompts[3], "PATH-OPINION-MARKER",
		"synthesis prompt embeds the pathologist output")
	assert.Contains(t, gen.Prompts[0], "CITATION RULE")
	assert.Contains(t, gen.Prompts[3], "CITATION RULE")
	assert.NotContains(t, gen.Prompts[4], "CITATION RULE",
		"the patient letter carries no citation tags")
}

func TestRunWorkupOnlySkipsSpecialists(t *testing.T) {
	oncocase := caseWithMissing(t, evidence.SourceHeAR, evidence.SourceCXRFoundation,
		evidence.SourceDermFoundation)
	require.Equal(t, degrade.LevelMinimal, oncocase.Level)

	gen := &FakeGenerator{Responses: map[string]string{
		"Chief Physician Synthesizer": "Workup plan [Source: Clinical_Frame_JSON].",
		"compassionate":               "Dear Patient, next steps below.",
	}}
	c := NewController(gen, nil, zap.NewNop())

	res := c.Run(context.Background(), oncocase)

	assert.Empty(t, res.Pathologist)
	assert.Empty(t, res.Radiologist)
	assert.Empty(t, res.Oncologist)
	assert.NotEmpty(t, res.Synthesis)
	assert.NotEmpty(t, res.PatientLetter)
	assert.Len(t, gen.Prompts, 2)
	assert.Contains(t, gen.Prompts[0], notRunPlaceholder,
		"skipped specialist slots carry the placeholder")
}

func TestRunNoDataBypassesGeneration(t *testing.T) {
	oncocase := caseWithMissing(t, evidence.SourceTranscript, evidence.SourceHeAR,
		evidence.SourceCXRFoundation, evidence.SourcePathFoundation, evidence.SourceDermFoundation)
	require.Equal(t, degrade.LevelNoData, oncocase.Level)

	gen := &FakeGenerator{}
	res := NewController(gen, nil, zap.NewNop()).Run(context.Background(), oncocase)

	assert.Empty(t, gen.Prompts, "no generation calls in NO_DATA mode")
	assert.Contains(t, res.Synthesis, "No clinical data available")
	assert.Contains(t, res.PatientLetter, "You are not alone in this")
	assert.NotEmpty(t, res.PatientLetter)
}

func TestRunFallsBackPerStageOnError(t *testing.T) {
	gen := &FakeGenerator{Err: errors.New("backend down")}
	res := NewController(gen, nil, zap.NewNop()).Run(context.Background(), caseWithMissing(t))

	assert.Contains(t, res.Pathologist, "[Source: Path_Foundation]")
	assert.Contains(t, res.Radiologist, "[Source: CXR_Foundation]")
	assert.Contains(t, res.Oncologist, "[Source: TxGemma]")
	assert.Contains(t, res.Synthesis, "MOLECULAR TUMOR BOARD SYNTHESIS")
	assert.Contains(t, res.PatientLetter, "You are not alone in this")
}

func TestRunNilGeneratorUsesTemplates(t *testing.T) {
	res := NewController(nil, nil, zap.NewNop()).Run(context.Background(), caseWithMissing(t))

	assert.NotEmpty(t, res.Pathologist)
	assert.NotEmpty(t, res.PatientLetter)
}

func TestFallbacksTrackMissingModalities(t *testing.T) {
	oncocase := caseWithMissing(t, evidence.SourcePathFoundation)
	res := NewController(nil, nil, zap.NewNop()).Run(context.Background(), oncocase)

	assert.Contains(t, res.Pathologist, "Histopathology unavailable")

	oncocase = caseWithMissing(t, evidence.SourceCXRFoundation)
	res = NewController(nil, nil, zap.NewNop()).Run(context.Background(), oncocase)

	assert.Contains(t, res.Radiologist, "CXR unavailable")
}

func TestProvisionalStagingShapesSynthesisAndLetter(t *testing.T) {
	oncocase := caseWithMissing(t, evidence.SourceHeAR, evidence.SourceCXRFoundation)
	require.Contains(t, oncocase.StagingConfidence, "PROVISIONAL")

	res := NewController(nil, nil, zap.NewNop()).Run(context.Background(), oncocase)

	assert.True(t, strings.HasPrefix(res.Synthesis, "PROVISIONAL STAGING"))
	assert.Contains(t, res.PatientLetter, "We don't have all the information we need yet")
}

func TestEachStageHoldsLeaseSeparately(t *testing.T) {
	var events []string
	mgr := lease.NewManager(zap.NewNop(), lease.WithEvents(func(event, _ string) {
		events = append(events, event)
	}))
	gen := &FakeGenerator{Responses: map[string]string{"SYSTEM": "output [Source: Clinical_Frame_JSON]."}}

	NewController(gen, mgr, zap.NewNop()).Run(context.Background(), caseWithMissing(t))

	require.Len(t, events, 10, "five acquire/release pairs")
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, "MedGemma_loaded", events[i])
		assert.Equal(t, "MedGemma_unloaded", events[i+1])
	}
}

func TestPatientTranslatorAlwaysRuns(t *testing.T) {
	levels := [][]evidence.SourceID{
		nil,
		{evidence.SourceDermFoundation},
		{evidence.SourceDermFoundation, evidence.SourceCXRFoundation},
		{evidence.SourceDermFoundation, evidence.SourceCXRFoundation, evidence.SourceHeAR},
		{evidence.SourceTranscript, evidence.SourceHeAR, evidence.SourceCXRFoundation,
			evidence.SourcePathFoundation, evidence.SourceDermFoundation},
	}
	for _, missing := range levels {
		res := NewController(nil, nil, zap.NewNop()).Run(context.Background(), caseWithMissing(t, missing...))
		assert.NotEmpty(t, res.PatientLetter, "missing=%v", missing)
	}
}

func TestFormatEvidenceMarksMissing(t *testing.T) {
	oncocase := caseWithMissing(t, evidence.SourceDermFoundation)
	summary := formatEvidence(oncocase)

	assert.Contains(t, summary, "Derm_Foundation: MISSING")
	assert.Contains(t, summary, "CXR_Foundation: Bilateral infiltrates.")
}

func TestFormatClinicalFrameEmpty(t *testing.T) {
	assert.Equal(t, "No clinical data extracted.", formatClinicalFrame(evidence.EmptyFrame()))
}
