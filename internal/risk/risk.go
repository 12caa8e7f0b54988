// Package risk scores TB and HIV risk from the clinical frame and evidence
// pool. Scoring is deterministic and order-independent; missing modalities
// propagate as uncertainty flags rather than lowering scores silently.
package risk

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"aegis/internal/evidence"
)

// Level buckets a numeric score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
)

// OverallLevel is the combined triage color.
type OverallLevel string

const (
	OverallGreen OverallLevel = "GREEN"
	OverallAmber OverallLevel = "AMBER"
	OverallRed   OverallLevel = "RED"
)

// Uncertainty flags collected during scoring.
const (
	FlagLowAudioConfidence = "LOW_AUDIO_CONFIDENCE"
	FlagNoRespiratoryData  = "NO_RESPIRATORY_DATA"
	FlagNoCXRData          = "NO_CXR_DATA"
	FlagNoPathData         = "NO_PATH_DATA"
	FlagNoDermData         = "NO_DERM_DATA"
	FlagInsufficientData   = "INSUFFICIENT_DATA"
	FlagRecommendationOnly = "RECOMMENDATION_ONLY"
)

// Result is a pure derived value: recomputed when inputs change, never
// mutated in place.
type Result struct {
	TBScore           float64      `json:"tb_risk_score"`
	TBLevel           Level        `json:"tb_risk_level"`
	HIVScore          float64      `json:"hiv_risk_score"`
	OverallLevel      OverallLevel `json:"overall_risk_level"`
	UncertaintyFlags  []string     `json:"uncertainty_flags"`
	StagingOverride   string       `json:"staging_override,omitempty"`
	TreatmentOverride string       `json:"treatment_override,omitempty"`
	MissingCount      int          `json:"missing_count"`
}

// tbSymptomWeights are the fixed keyword weights for the TB score.
var tbSymptomWeights = []struct {
	keyword string
	weight  float64
}{
	{"cough", 0.15},
	{"night sweats", 0.15},
	{"weight loss", 0.15},
	{"fever", 0.10},
	{"fatigue", 0.05},
}

var numberPattern = regexp.MustCompile(`\d+`)

// Compute scores the case. asrConfidenceFlags come from the transcription
// worker and feed straight into the uncertainty flag set.
func Compute(frame evidence.ClinicalFrame, pool []evidence.Item, asrConfidenceFlags []string) Result {
	flags := map[string]struct{}{}
	var ordered []string
	add := func(flag string) {
		if _, ok := flags[flag]; !ok {
			flags[flag] = struct{}{}
			ordered = append(ordered, flag)
		}
	}

	for _, f := range asrConfidenceFlags {
		if f == FlagLowAudioConfidence {
			add(FlagLowAudioConfidence)
		}
	}

	for _, it := range pool {
		if it.Status != evidence.StatusMissingData {
			continue
		}
		switch evidence.Canonical(it.Source) {
		case evidence.SourceHeAR:
			add(FlagNoRespiratoryData)
		case evidence.SourceCXRFoundation:
			add(FlagNoCXRData)
		case evidence.SourcePathFoundation:
			add(FlagNoPathData)
		case evidence.SourceDermFoundation:
			add(FlagNoDermData)
		}
	}

	missing := evidence.MissingCount(pool)
	if missing >= 3 {
		add(FlagInsufficientData)
	}

	tb := tbScore(frame, pool)
	hiv := hivScore(frame)

	res := Result{
		TBScore:          round3(tb),
		TBLevel:          levelFor(tb),
		HIVScore:         round3(hiv),
		OverallLevel:     overallFor(math.Max(tb, hiv)),
		UncertaintyFlags: ordered,
		MissingCount:     missing,
	}
	if res.UncertaintyFlags == nil {
		res.UncertaintyFlags = []string{}
	}

	if _, ok := flags[FlagNoCXRData]; ok {
		res.StagingOverride = "PROVISIONAL"
	}
	if _, ok := flags[FlagNoPathData]; ok {
		res.StagingOverride = "PROVISIONAL — PATHOLOGY REQUIRED"
	}
	if missing >= 3 {
		res.StagingOverride = "INSUFFICIENT_DATA"
	}

	if tx, ok := evidence.BySource(pool, evidence.SourceTxGemma); ok && tx.Status == evidence.StatusBlocked {
		res.TreatmentOverride = "RECOMMENDATION_ONLY — NOT PRESCRIPTION"
		add(FlagRecommendationOnly)
		res.UncertaintyFlags = ordered
	}

	return res
}

func tbScore(frame evidence.ClinicalFrame, pool []evidence.Item) float64 {
	score := 0.0

	for _, sw := range tbSymptomWeights {
		if anyContains(frame.Symptoms, sw.keyword) {
			score += sw.weight
		}
	}

	if anyContains(frame.Conditions, "tb") || anyContains(frame.Conditions, "tuberculosis") {
		score += 0.25
	}
	if anyContains(frame.Conditions, "hiv") {
		// HIV increases TB risk.
		score += 0.10
	}

	for _, it := range pool {
		if evidence.Canonical(it.Source) == evidence.SourceHeAR && it.OK() {
			if it.Confidence != nil && *it.Confidence > 0.5 {
				score += 0.15
			}
		}
	}
	for _, it := range pool {
		if evidence.Canonical(it.Source) == evidence.SourceCXRFoundation && it.OK() {
			finding := strings.ToLower(it.Finding)
			if strings.Contains(finding, "infiltrate") || strings.Contains(finding, "opacity") {
				score += 0.10
			}
		}
	}

	return math.Min(score, 1.0)
}

func hivScore(frame evidence.ClinicalFrame) float64 {
	score := 0.0

	if anyContains(frame.Conditions, "hiv") {
		score += 0.5
	}

	for _, lab := range frame.LabValues {
		if !strings.Contains(strings.ToLower(lab), "cd4") {
			continue
		}
		nums := numberPattern.FindAllString(lab, -1)
		if len(nums) == 0 {
			continue
		}
		cd4, err := strconv.Atoi(nums[len(nums)-1])
		if err != nil {
			continue
		}
		switch {
		case cd4 < 100:
			score += 0.35
		case cd4 < 200:
			score += 0.25
		case cd4 < 350:
			score += 0.10
		}
	}

	if anyContains(frame.Conditions, "lymphoma") {
		score += 0.10
	}
	if anyContains(frame.Conditions, "kaposi") {
		score += 0.15
	}

	return math.Min(score, 1.0)
}

func levelFor(score float64) Level {
	switch {
	case score > 0.7:
		return LevelHigh
	case score > 0.4:
		return LevelModerate
	default:
		return LevelLow
	}
}

func overallFor(maxScore float64) OverallLevel {
	switch {
	case maxScore > 0.7:
		return OverallRed
	case maxScore > 0.4:
		return OverallAmber
	default:
		return OverallGreen
	}
}

func anyContains(values []string, keyword string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), keyword) {
			return true
		}
	}
	return false
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// Default is the result substituted when scoring itself fails.
func Default() Result {
	return Result{
		TBLevel:          LevelLow,
		OverallLevel:     OverallGreen,
		UncertaintyFlags: []string{},
	}
}
