package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTranscript = `The patient is a 42-year-old male, HIV-positive on ` +
	`tenofovir, lamivudine and dolutegravir. He reports a dry cough and night ` +
	`sweats for three weeks, with weight loss. CD4 count was 85. A firm neck ` +
	`mass was noted; lymphoma is suspected.`

func TestFrameExtractsEntities(t *testing.T) {
	f := Frame(sampleTranscript)

	assert.Contains(t, f.Symptoms, "cough")
	assert.Contains(t, f.Symptoms, "night sweats")
	assert.Contains(t, f.Symptoms, "weight loss")

	assert.Contains(t, f.Medications, "tenofovir")
	assert.Contains(t, f.Medications, "dolutegravir")

	assert.Contains(t, f.Conditions, "lymphoma")
	require.NotEmpty(t, f.LabValues)
	assert.Contains(t, f.LabValues[0], "CD4")

	assert.Equal(t, "42", f.Demographics["age"])
	assert.Equal(t, "male", f.Demographics["sex"])
	assert.Contains(t, f.Durations, "three weeks")
}

func TestFrameEmptyTranscript(t *testing.T) {
	for _, transcript := range []string{"", "   ", "\n"} {
		f := Frame(transcript)
		assert.True(t, f.IsEmpty(), "expected empty frame for %q", transcript)
		require.NotNil(t, f.Symptoms)
		require.NotNil(t, f.Demographics)
	}
}

func TestFrameDeduplicatesPreservingOrder(t *testing.T) {
	f := Frame("cough and more cough, then fever, then cough again and fever")
	assert.Equal(t, []string{"fever", "cough"}, f.Symptoms[:2])

	counts := map[string]int{}
	for _, s := range f.Symptoms {
		counts[s]++
	}
	for s, n := range counts {
		assert.Equal(t, 1, n, "symptom %q appears %d times", s, n)
	}
}

func TestSearchableLowercasesAllFields(t *testing.T) {
	f := Frame("HIV-positive with Kaposi sarcoma on CHOP")
	text := f.Searchable()
	assert.Contains(t, text, "kaposi")
	assert.Contains(t, text, "hiv")
	assert.NotContains(t, text, "Kaposi")
}
