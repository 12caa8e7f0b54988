package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aegis/internal/debate"
	"aegis/internal/degrade"
	"aegis/internal/evidence"
	"aegis/internal/lease"
	"aegis/internal/session"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fullInputs(t *testing.T) session.Inputs {
	t.Helper()
	dir := t.TempDir()
	transcript := strings.Repeat("patient reports fevers night sweats weight loss cough lymphadenopathy ", 10)
	return session.Inputs{
		AudioPath: writeFile(t, dir, "consult.txt", transcript),
		CXRPath:   writeFile(t, dir, "cxr.png", "cxr-bytes"),
		DermPath:  writeFile(t, dir, "derm.png", "derm-bytes"),
		PathPath:  writeFile(t, dir, "slide.png", "path-bytes"),
	}
}

func debateGen() *debate.FakeGenerator {
	return &debate.FakeGenerator{Responses: map[string]string{
		"Virtual Pathologist":         "Tissue diagnosis established [Source: Path_Foundation].",
		"Virtual Radiologist":         "Pulmonary findings reviewed [Source: CXR_Foundation].",
		"Virtual Oncologist":          "Regimen proposed [Source: TxGemma].",
		"Chief Physician Synthesizer": "Board synthesis complete [Source: Path_Foundation].",
		"compassionate":               "Dear Patient, here is what we found.",
	}}
}

func TestRunCompletesEveryPhaseInOrder(t *testing.T) {
	var seen []string
	var counts []int
	o := New(Config{
		DebateGen: debateGen(),
		Log:       zap.NewNop(),
		OnPhase: func(phase string, completed, total int) {
			seen = append(seen, phase)
			counts = append(counts, completed)
			assert.Equal(t, len(Phases), total)
		},
	})
	s := session.New("")
	s.Inputs = fullInputs(t)

	o.Run(context.Background(), s)

	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Equal(t, Phases, seen)
	require.Len(t, s.PhasesCompleted, len(Phases))
	for i, rec := range s.PhasesCompleted {
		assert.Equal(t, Phases[i], rec.Phase)
		assert.Equal(t, i+1, counts[i])
	}
	assert.Empty(t, s.Errors)
}

func TestRunFullInputsAssemblesFullCase(t *testing.T) {
	o := New(Config{DebateGen: debateGen(), Log: zap.NewNop()})
	s := session.New("")
	s.Inputs = fullInputs(t)

	o.Run(context.Background(), s)

	require.NotNil(t, s.Case)
	assert.Equal(t, degrade.LevelFull, s.Case.Level)
	assert.Zero(t, s.Case.MissingCount)
	assert.NotEmpty(t, s.Transcript)
	assert.NotEmpty(t, s.Frame.Symptoms)
	// 5 modality items + similarity evidence + drug-interaction evidence.
	assert.Len(t, s.Pool, 7)
	require.NotNil(t, s.Debate)
	assert.Equal(t, "Board synthesis complete [Source: Path_Foundation].", s.Debate.Synthesis)
	require.NotNil(t, s.Tx)
	assert.NotEmpty(t, s.Trace)
}

func TestRunWithoutInputsDegradesToNoData(t *testing.T) {
	o := New(Config{Log: zap.NewNop()})
	s := session.New("")

	o.Run(context.Background(), s)

	assert.Equal(t, session.StatusCompleted, s.Status)
	require.NotNil(t, s.Case)
	assert.Equal(t, degrade.LevelNoData, s.Case.Level)
	assert.Equal(t, len(evidence.CoreModalities), s.Case.MissingCount)
	require.NotNil(t, s.Tx)
	assert.Equal(t, evidence.StatusBlocked, s.Tx.Evidence.Status)
	require.NotNil(t, s.Debate)
	assert.Contains(t, s.Debate.PatientLetter, "You are not alone in this.")
	assert.Empty(t, s.Errors, "absent inputs degrade, they do not error")
}

func TestRunIsolatesPhaseFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(Config{
		Lease:     lease.NewManager(zap.NewNop()),
		DebateGen: debateGen(),
		Log:       zap.NewNop(),
	})
	s := session.New("")
	s.Inputs = fullInputs(t)

	o.Run(ctx, s)

	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Len(t, s.PhasesCompleted, len(Phases))
	assert.NotEmpty(t, s.Errors)
	assert.Equal(t, []string{"ASR_ERROR"}, s.ConfidenceFlags)
	// Failed workers substitute MISSING_DATA items with remediation text.
	item, ok := evidence.BySource(s.Pool, evidence.SourcePathFoundation)
	require.True(t, ok)
	assert.Equal(t, evidence.StatusMissingData, item.Status)
	assert.NotEmpty(t, item.NextBestAction)
}

func TestRunReusesConsultationAudioForCough(t *testing.T) {
	o := New(Config{Log: zap.NewNop()})
	s := session.New("")
	dir := t.TempDir()
	s.Inputs = session.Inputs{AudioPath: writeFile(t, dir, "consult.txt", "long consultation with many words "+strings.Repeat("w ", 60))}

	o.Run(context.Background(), s)

	item, ok := evidence.BySource(s.Pool, evidence.SourceHeAR)
	require.True(t, ok)
	assert.Equal(t, evidence.StatusOK, item.Status)
}

func TestRunTraceCoversEveryPoolSource(t *testing.T) {
	o := New(Config{DebateGen: debateGen(), Log: zap.NewNop()})
	s := session.New("")
	s.Inputs = fullInputs(t)

	o.Run(context.Background(), s)

	for _, item := range s.Pool {
		assert.Contains(t, s.Trace, evidence.Canonical(item.Source))
	}
}
