// Package session owns the per-patient analysis session: its identifiers,
// input file paths, accumulated phase results, and the error ledger the
// orchestrator appends to when a phase fails.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"aegis/internal/debate"
	"aegis/internal/degrade"
	"aegis/internal/escalate"
	"aegis/internal/evidence"
	"aegis/internal/pharma"
	"aegis/internal/retrieval"
	"aegis/internal/risk"
	"aegis/internal/trace"
)

// Status is the session lifecycle state. The orchestrator moves it
// INITIALIZED → RUNNING → COMPLETED regardless of per-phase failures.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusRunning     Status = "RUNNING"
	StatusCompleted   Status = "COMPLETED"
)

// PhaseRecord marks one completed phase.
type PhaseRecord struct {
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorRecord is one isolated phase failure. Failures never abort the
// pipeline; they are recorded here and the phase output is substituted
// with a safe default.
type ErrorRecord struct {
	Phase     string    `json:"phase"`
	Message   string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Inputs are the optional per-modality input files. Any of them may be
// absent; the workers degrade accordingly.
type Inputs struct {
	AudioPath     string
	CoughPath     string
	CXRPath       string
	DermPath      string
	PathPath      string
	InventoryPath string
}

// Session is a single patient analysis run. Fields are populated in phase
// order by the orchestrator; the struct is owned by one goroutine.
type Session struct {
	SessionID string    `json:"session_id"`
	PatientID string    `json:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`

	Inputs Inputs `json:"-"`

	Transcript      string                 `json:"transcript,omitempty"`
	ConfidenceFlags []string               `json:"confidence_flags,omitempty"`
	Frame           evidence.ClinicalFrame `json:"clinical_frame"`
	Pool            []evidence.Item        `json:"evidence_pool"`
	Escalation      escalate.Result        `json:"escalation"`
	Risk            risk.Result            `json:"risk"`
	Case            *degrade.OncoCase      `json:"oncocase,omitempty"`
	Tx              *pharma.Analysis       `json:"tx_analysis,omitempty"`
	Debate          *debate.Result         `json:"debate,omitempty"`
	Trace           trace.Trace            `json:"evidence_trace,omitempty"`
	SimilarCases    []retrieval.Case       `json:"similar_cases,omitempty"`

	PhasesCompleted []PhaseRecord `json:"phases_completed"`
	Errors          []ErrorRecord `json:"errors"`
}

// New creates a session in the INITIALIZED state. The short id keeps log
// lines and export filenames readable.
func New(patientID string) *Session {
	id := uuid.NewString()[:8]
	if patientID == "" {
		patientID = "PT-" + id
	}
	return &Session{
		SessionID: id,
		PatientID: patientID,
		CreatedAt: time.Now().UTC(),
		Status:    StatusInitialized,
		Frame:     evidence.EmptyFrame(),
	}
}

// MarkPhase records a completed phase.
func (s *Session) MarkPhase(phase string) {
	s.PhasesCompleted = append(s.PhasesCompleted, PhaseRecord{
		Phase:     phase,
		Status:    "DONE",
		Timestamp: time.Now().UTC(),
	})
}

// AddError records an isolated phase failure.
func (s *Session) AddError(phase string, err error) {
	s.Errors = append(s.Errors, ErrorRecord{
		Phase:     phase,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// Summary is the compact lifecycle view of a session.
type Summary struct {
	SessionID       string        `json:"session_id"`
	PatientID       string        `json:"patient_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Status          Status        `json:"status"`
	PhasesCompleted []PhaseRecord `json:"phases_completed"`
	Errors          []ErrorRecord `json:"errors"`
}

// Summarize returns the lifecycle view.
func (s *Session) Summarize() Summary {
	return Summary{
		SessionID:       s.SessionID,
		PatientID:       s.PatientID,
		CreatedAt:       s.CreatedAt,
		Status:          s.Status,
		PhasesCompleted: s.PhasesCompleted,
		Errors:          s.Errors,
	}
}

// Export serializes the full session as indented JSON.
func (s *Session) Export() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
