package evidence

import "strings"

// ClinicalFrame holds the structured entities extracted from the consultation
// transcript. It is produced once per session and immutable thereafter.
type ClinicalFrame struct {
	Symptoms     []string          `json:"symptoms"`
	Medications  []string          `json:"medications"`
	Durations    []string          `json:"durations"`
	Conditions   []string          `json:"conditions"`
	LabValues    []string          `json:"lab_values"`
	Demographics map[string]string `json:"demographics"`
}

// EmptyFrame returns a frame with all slices initialized, so downstream
// consumers never need nil checks.
func EmptyFrame() ClinicalFrame {
	return ClinicalFrame{
		Symptoms:     []string{},
		Medications:  []string{},
		Durations:    []string{},
		Conditions:   []string{},
		LabValues:    []string{},
		Demographics: map[string]string{},
	}
}

// Searchable concatenates every frame field as lowercase text for keyword
// matching by the escalation evaluator.
func (f ClinicalFrame) Searchable() string {
	var parts []string
	for _, set := range [][]string{f.Conditions, f.Symptoms, f.Medications, f.LabValues} {
		for _, v := range set {
			parts = append(parts, strings.ToLower(v))
		}
	}
	for _, v := range f.Demographics {
		parts = append(parts, strings.ToLower(v))
	}
	return strings.Join(parts, " ")
}

// IsEmpty reports whether no entities were extracted at all.
func (f ClinicalFrame) IsEmpty() bool {
	return len(f.Symptoms) == 0 && len(f.Medications) == 0 &&
		len(f.Conditions) == 0 && len(f.LabValues) == 0 &&
		len(f.Durations) == 0 && len(f.Demographics) == 0
}
