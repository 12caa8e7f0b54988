// Package escalate decides whether a case stays in TB/HIV triage or escalates
// to the full oncology workup, based on trigger keywords in the clinical
// frame. The evaluator is a pure function: no state, no side effects.
package escalate

import (
	"fmt"
	"strings"

	"aegis/internal/evidence"
)

// Mode is the triage classification.
type Mode string

const (
	ModeTBTriage   Mode = "TB_TRIAGE"
	ModeOncosphere Mode = "ONCOSPHERE"
)

// Uncertainty grades confidence in the escalation decision.
type Uncertainty string

const (
	UncertaintyLow      Uncertainty = "LOW"
	UncertaintyMedium   Uncertainty = "MEDIUM"
	UncertaintyHigh     Uncertainty = "HIGH"
	UncertaintyCritical Uncertainty = "CRITICAL"
)

// oncologyTriggers escalate a case out of TB triage when matched anywhere in
// the clinical frame text.
var oncologyTriggers = []string{
	"lymphoma", "malignancy", "cancer", "tumor", "tumour",
	"metastasis", "metastatic", "carcinoma", "sarcoma",
	"kaposi", "mass", "neoplasm", "neoplastic", "oncology",
	"adenocarcinoma", "leukemia", "myeloma", "hodgkin",
	"non-hodgkin", "staging", "biopsy",
}

// coinfectionKeywords increase uncertainty even when the case stays in
// TB-only mode.
var coinfectionKeywords = []string{
	"hiv", "cd4", "art", "antiretroviral", "viral load",
	"immunocompromised", "immunosuppressed",
}

// Result is the escalation verdict.
type Result struct {
	Mode             Mode        `json:"mode"`
	Triggers         []string    `json:"triggers"`
	Uncertainty      Uncertainty `json:"uncertainty"`
	Rationale        string      `json:"rationale"`
	CoinfectionFlags []string    `json:"coinfection_flags"`
}

// Evaluate classifies the case. transcriptionMissing must be true when the
// transcription stage reported MISSING_DATA (or produced nothing): escalation
// then runs on uploaded data and history alone and uncertainty is CRITICAL.
func Evaluate(frame evidence.ClinicalFrame, transcriptionMissing bool) Result {
	res := Result{
		Triggers:         []string{},
		CoinfectionFlags: []string{},
		Uncertainty:      UncertaintyLow,
	}
	var rationale []string

	if transcriptionMissing {
		res.Uncertainty = UncertaintyCritical
		rationale = append(rationale,
			"Audio data unavailable — escalation assessment based on uploaded data and clinical history only.")
	}

	text := frame.Searchable()
	for _, trigger := range oncologyTriggers {
		if strings.Contains(text, trigger) {
			res.Triggers = append(res.Triggers, trigger)
		}
	}
	for _, kw := range coinfectionKeywords {
		if strings.Contains(text, kw) {
			res.CoinfectionFlags = append(res.CoinfectionFlags, kw)
		}
	}

	if len(res.Triggers) > 0 {
		res.Mode = ModeOncosphere
		rationale = append(rationale, fmt.Sprintf(
			"Oncology triggers detected: %s. Escalating from TB/HIV triage to full OncoSphere workup.",
			strings.Join(res.Triggers, ", ")))
		if !transcriptionMissing {
			if len(res.Triggers) >= 3 {
				res.Uncertainty = UncertaintyLow
			} else {
				res.Uncertainty = UncertaintyMedium
			}
		}
	} else {
		res.Mode = ModeTBTriage
		rationale = append(rationale, "No oncology triggers detected. Remaining in TB/HIV triage mode.")
	}

	if len(res.CoinfectionFlags) > 0 && res.Mode == ModeTBTriage {
		rationale = append(rationale, fmt.Sprintf(
			"TB/HIV coinfection indicators detected: %s. Monitor for opportunistic malignancies.",
			strings.Join(res.CoinfectionFlags, ", ")))
		if res.Uncertainty == UncertaintyLow {
			res.Uncertainty = UncertaintyMedium
		}
	}

	res.Rationale = strings.Join(rationale, " ")
	if res.Rationale == "" {
		res.Rationale = "Standard triage assessment."
	}
	return res
}

// Default is the verdict substituted when the evaluator itself fails:
// escalate rather than under-triage.
func Default() Result {
	return Result{
		Mode:             ModeOncosphere,
		Triggers:         []string{},
		Uncertainty:      UncertaintyCritical,
		Rationale:        "Escalation evaluation failed — defaulting to full OncoSphere workup.",
		CoinfectionFlags: []string{},
	}
}
