package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"aegis/internal/evidence"
)

func okItem(src evidence.SourceID, mod evidence.Modality, finding string, conf float64) evidence.Item {
	return evidence.Item{
		Modality:   mod,
		Source:     src,
		Status:     evidence.StatusOK,
		Finding:    finding,
		Confidence: evidence.Conf(conf),
	}
}

func TestComputeHighRiskCoinfectionCase(t *testing.T) {
	frame := evidence.EmptyFrame()
	frame.Symptoms = []string{"cough", "night sweats", "weight loss", "fever"}
	frame.Conditions = []string{"HIV-positive", "tuberculosis", "lymphoma"}
	frame.LabValues = []string{"CD4 count was 85"}

	pool := []evidence.Item{
		okItem(evidence.SourceHeAR, evidence.ModalityCough, "TB cough signature elevated", 0.73),
		okItem(evidence.SourceCXRFoundation, evidence.ModalityCXR, "Bilateral infiltrates with opacity", 0.8),
	}

	res := Compute(frame, pool, nil)

	// cough+sweats+loss+fever = 0.55, TB+HIV conditions = 0.35, HeAR = 0.15,
	// CXR infiltrate = 0.10 → clamped to 1.0.
	assert.Equal(t, 1.0, res.TBScore)
	assert.Equal(t, LevelHigh, res.TBLevel)
	// HIV 0.5 + CD4<100 0.35 + lymphoma 0.10 = 0.95.
	assert.Equal(t, 0.95, res.HIVScore)
	assert.Equal(t, OverallRed, res.OverallLevel)
	assert.Equal(t, 0, res.MissingCount)
}

func TestComputeClampsUnderAdversarialRepetition(t *testing.T) {
	frame := evidence.EmptyFrame()
	for i := 0; i < 500; i++ {
		frame.Symptoms = append(frame.Symptoms, "cough fever night sweats weight loss fatigue")
		frame.Conditions = append(frame.Conditions, "tuberculosis hiv lymphoma kaposi")
		frame.LabValues = append(frame.LabValues, "CD4 count 12")
	}

	res := Compute(frame, nil, nil)
	assert.LessOrEqual(t, res.TBScore, 1.0)
	assert.LessOrEqual(t, res.HIVScore, 1.0)
	assert.GreaterOrEqual(t, res.TBScore, 0.0)
	assert.GreaterOrEqual(t, res.HIVScore, 0.0)
}

func TestComputeCD4Tiers(t *testing.T) {
	tests := []struct {
		lab  string
		want float64
	}{
		{"CD4 count of 85", 0.35},
		{"CD4 150", 0.25},
		{"CD4 count was 300", 0.10},
		{"CD4 = 420", 0.0},
	}
	for _, tt := range tests {
		frame := evidence.EmptyFrame()
		frame.LabValues = []string{tt.lab}
		res := Compute(frame, nil, nil)
		assert.Equal(t, tt.want, res.HIVScore, "lab %q", tt.lab)
	}
}

func TestComputeUncertaintyFlags(t *testing.T) {
	pool := []evidence.Item{
		evidence.Missing(evidence.ModalityCough, evidence.SourceHeAR, "record a cough sample"),
		evidence.Missing(evidence.ModalityHistopathology, evidence.SourcePathFoundation, "obtain FNAC"),
		evidence.Missing(evidence.ModalityCXR, evidence.SourceCXRFoundation, "obtain chest X-ray"),
	}

	res := Compute(evidence.EmptyFrame(), pool, []string{FlagLowAudioConfidence})

	for _, want := range []string{
		FlagLowAudioConfidence, FlagNoRespiratoryData, FlagNoPathData,
		FlagNoCXRData, FlagInsufficientData,
	} {
		assert.Contains(t, res.UncertaintyFlags, want)
	}
	assert.Equal(t, 3, res.MissingCount)
	assert.Equal(t, "INSUFFICIENT_DATA", res.StagingOverride)
}

func TestComputePathologyOverrideBeatsCXR(t *testing.T) {
	pool := []evidence.Item{
		evidence.Missing(evidence.ModalityCXR, evidence.SourceCXRFoundation, "obtain chest X-ray"),
		evidence.Missing(evidence.ModalityHistopathology, evidence.SourcePathFoundation, "obtain FNAC"),
	}
	res := Compute(evidence.EmptyFrame(), pool, nil)
	assert.True(t, strings.Contains(res.StagingOverride, "PATHOLOGY REQUIRED"), res.StagingOverride)
}

func TestComputeBlockedDrugInteractionSetsTreatmentOverride(t *testing.T) {
	pool := []evidence.Item{
		{
			Modality: evidence.ModalityDrugInteraction,
			Source:   evidence.SourceTxGemma,
			Status:   evidence.StatusBlocked,
			Finding:  "Insufficient data for a confirmed treatment regimen.",
		},
	}
	res := Compute(evidence.EmptyFrame(), pool, nil)
	assert.Equal(t, "RECOMMENDATION_ONLY — NOT PRESCRIPTION", res.TreatmentOverride)
	assert.Contains(t, res.UncertaintyFlags, FlagRecommendationOnly)
}

func TestComputeDeterministicAndOrderIndependent(t *testing.T) {
	frame := evidence.EmptyFrame()
	frame.Symptoms = []string{"fever", "cough"}
	frame.Conditions = []string{"hiv"}

	a := okItem(evidence.SourceHeAR, evidence.ModalityCough, "elevated", 0.9)
	b := okItem(evidence.SourceCXRFoundation, evidence.ModalityCXR, "right upper lobe opacity", 0.8)

	r1 := Compute(frame, []evidence.Item{a, b}, nil)
	r2 := Compute(frame, []evidence.Item{b, a}, nil)
	assert.Equal(t, r1.TBScore, r2.TBScore)
	assert.Equal(t, r1.HIVScore, r2.HIVScore)
	assert.Equal(t, r1.OverallLevel, r2.OverallLevel)
}
