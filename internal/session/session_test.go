package session

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionDefaults(t *testing.T) {
	s := New("")

	assert.Len(t, s.SessionID, 8)
	assert.Equal(t, "PT-"+s.SessionID, s.PatientID)
	assert.Equal(t, StatusInitialized, s.Status)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Empty(t, s.Errors)
	assert.Empty(t, s.PhasesCompleted)
}

func TestNewSessionKeepsPatientID(t *testing.T) {
	s := New("PT-4471")
	assert.Equal(t, "PT-4471", s.PatientID)
}

func TestSessionIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, New("").SessionID, New("").SessionID)
}

func TestMarkPhaseAndAddError(t *testing.T) {
	s := New("")
	s.MarkPhase("transcription")
	s.AddError("cough_analysis", errors.New("probe unavailable"))
	s.MarkPhase("cough_analysis")

	require.Len(t, s.PhasesCompleted, 2)
	assert.Equal(t, "transcription", s.PhasesCompleted[0].Phase)
	assert.Equal(t, "DONE", s.PhasesCompleted[0].Status)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "cough_analysis", s.Errors[0].Phase)
	assert.Equal(t, "probe unavailable", s.Errors[0].Message)
}

func TestSummarizeMirrorsLifecycle(t *testing.T) {
	s := New("PT-1")
	s.Status = StatusCompleted
	s.MarkPhase("transcription")
	s.AddError("risk_scoring", errors.New("boom"))

	sum := s.Summarize()

	assert.Equal(t, s.SessionID, sum.SessionID)
	assert.Equal(t, StatusCompleted, sum.Status)
	assert.Len(t, sum.PhasesCompleted, 1)
	assert.Len(t, sum.Errors, 1)
}

func TestExportRoundTrips(t *testing.T) {
	s := New("PT-2")
	s.Transcript = "patient presents with night sweats"
	s.MarkPhase("transcription")

	data, err := s.Export()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s.SessionID, decoded["session_id"])
	assert.Equal(t, "PT-2", decoded["patient_id"])
	assert.Equal(t, string(StatusInitialized), decoded["status"])
	assert.Equal(t, "patient presents with night sweats", decoded["transcript"])
}
