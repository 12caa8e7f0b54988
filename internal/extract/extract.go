// Package extract derives the structured clinical frame from a consultation
// transcript using keyword and pattern matching. The per-modality inference
// workers are external; this stage only structures their text output.
package extract

import (
	"regexp"
	"strings"

	"aegis/internal/evidence"
)

var symptomPatterns = compileAll(
	`night sweats`, `weight loss`, `fevers?`, `cough(?:ing)?`,
	`lymphadenopathy`, `fatigue`, `dyspnea`, `shortness of breath`,
	`pain`, `nausea`, `vomiting`, `diarrhea`, `rash`,
	`bleeding`, `bruising`, `anorexia`, `malaise`,
	`swelling`, `headache`, `dizziness`,
)

var medicationPatterns = compileAllCI(
	`tenofovir`, `lamivudine`, `dolutegravir`, `efavirenz`,
	`nevirapine`, `ritonavir`, `atazanavir`, `lopinavir`,
	`abacavir`, `zidovudine`, `emtricitabine`,
	`rifampicin`, `rifabutin`, `isoniazid`, `pyrazinamide`,
	`ethambutol`, `streptomycin`,
	`doxorubicin`, `cyclophosphamide`, `vincristine`,
	`prednisone`, `prednisolone`, `rituximab`, `methotrexate`,
	`cisplatin`, `carboplatin`, `paclitaxel`, `etoposide`,
	`cotrimoxazole`, `fluconazole`, `acyclovir`,
	`R-CHOP`, `CHOP`, `ART`,
)

var conditionPatterns = compileAllCI(
	`HIV[- ]?positive`, `HIV\+?`, `lymphoma`, `Kaposi sarcoma`,
	`tuberculosis`, `\bTB\b`, `malaria`, `hepatitis`,
	`diabetes`, `hypertension`, `renal impairment`,
	`anemia`, `thrombocytopenia`, `neutropenia`,
	`pneumonia`, `meningitis`, `cancer`,
	`adenocarcinoma`, `cervical cancer`,
)

var durationPatterns = compileAllCI(
	`\b\d+[\s-]*(?:week|month|day|year|hour)s?\b`,
	`\b(?:three|four|five|six|two|one)[\s-]*(?:week|month|day|year)s?\b`,
)

var labValuePatterns = compileAllCI(
	`CD4\s*(?:count\s*)?(?:of\s*|=\s*|was\s*)?\d+(?:\s*cells)?(?:\s*per\s*microliter)?`,
	`viral\s*load\s*(?:of\s*|=\s*)?\d+`,
	`hemoglobin\s*(?:of\s*|=\s*)?\d+\.?\d*`,
	`WBC\s*(?:of\s*|=\s*)?\d+\.?\d*`,
	`platelets?\s*(?:of\s*|=\s*)?\d+`,
	`creatinine\s*(?:of\s*|=\s*)?\d+\.?\d*`,
	`eGFR\s*(?:<|>|=)?\s*\d+`,
)

var (
	agePattern    = regexp.MustCompile(`(?i)(\d+)[\s-]*year[\s-]*old`)
	malePattern   = regexp.MustCompile(`(?i)\b(male|man|gentleman)\b`)
	femalePattern = regexp.MustCompile(`(?i)\b(female|woman|lady)\b`)
)

// Frame extracts a clinical frame from the transcript. An empty transcript
// yields an empty frame rather than an error: missing audio is a recognized
// degraded state, not a failure.
func Frame(transcript string) evidence.ClinicalFrame {
	f := evidence.EmptyFrame()
	if strings.TrimSpace(transcript) == "" {
		return f
	}

	lower := strings.ToLower(transcript)
	f.Symptoms = dedupe(firstMatches(symptomPatterns, lower))
	f.Medications = dedupe(firstMatches(medicationPatterns, transcript))
	f.Conditions = dedupe(firstMatches(conditionPatterns, transcript))
	f.Durations = dedupe(allMatches(durationPatterns, transcript))
	f.LabValues = dedupe(allMatches(labValuePatterns, transcript))
	f.Demographics = demographics(transcript)
	return f
}

func demographics(text string) map[string]string {
	demo := map[string]string{}
	if m := agePattern.FindStringSubmatch(text); m != nil {
		demo["age"] = m[1]
	}
	if malePattern.MatchString(text) {
		demo["sex"] = "male"
	} else if femalePattern.MatchString(text) {
		demo["sex"] = "female"
	}
	return demo
}

// firstMatches records the first occurrence of each pattern.
func firstMatches(patterns []*regexp.Regexp, text string) []string {
	var found []string
	for _, re := range patterns {
		if m := re.FindString(text); m != "" {
			found = append(found, strings.TrimSpace(m))
		}
	}
	return found
}

// allMatches records every occurrence of every pattern.
func allMatches(patterns []*regexp.Regexp, text string) []string {
	var found []string
	for _, re := range patterns {
		for _, m := range re.FindAllString(text, -1) {
			found = append(found, strings.TrimSpace(m))
		}
	}
	return found
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func compileAllCI(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}
