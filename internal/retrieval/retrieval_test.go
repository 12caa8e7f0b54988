package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/evidence"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vec, s.err
}

func testLibrary() *Library {
	return &Library{Cases: []Case{
		{CaseID: "A", Diagnosis: "TB + lymphoma", Embedding: []float32{1, 0, 0}},
		{CaseID: "B", Diagnosis: "Kaposi sarcoma", Embedding: []float32{0, 1, 0}},
		{CaseID: "C", Diagnosis: "Cervical carcinoma", Embedding: []float32{0.8, 0.6, 0}},
	}}
}

func TestRetrieveRanksByCosineSimilarity(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	r := NewRetriever(testLibrary(), emb, nil)

	res := r.Retrieve(context.Background(), "tb lymphoma cough")

	assert.Equal(t, evidence.StatusOK, res.Evidence.Status)
	assert.Equal(t, evidence.SourceCaseLibrary, res.Evidence.Source)
	require.Len(t, res.Cases, 3)
	assert.Equal(t, "A", res.Cases[0].CaseID)
	assert.Equal(t, 1, res.Cases[0].Rank)
	assert.Equal(t, 1.0, res.Cases[0].Similarity)
	assert.Equal(t, "C", res.Cases[1].CaseID)
	assert.Equal(t, "B", res.Cases[2].CaseID)
	assert.Nil(t, res.Cases[0].Embedding, "library embeddings are not exported")
}

func TestRetrieveTopKLimit(t *testing.T) {
	lib := &Library{}
	for i := 0; i < 8; i++ {
		lib.Cases = append(lib.Cases, Case{
			CaseID:    string(rune('A' + i)),
			Embedding: []float32{1, float32(i)},
		})
	}
	r := NewRetriever(lib, &stubEmbedder{vec: []float32{1, 0}}, nil)

	res := r.Retrieve(context.Background(), "query")
	assert.Len(t, res.Cases, topK)
}

func TestRetrieveEmptyQueryFallsBack(t *testing.T) {
	r := NewRetriever(testLibrary(), &stubEmbedder{vec: []float32{1, 0, 0}}, nil)

	res := r.Retrieve(context.Background(), "")

	assert.Equal(t, evidence.StatusMissingData, res.Evidence.Status)
	assert.NotEmpty(t, res.Evidence.NextBestAction)
	require.Len(t, res.Cases, 3)
	assert.Equal(t, 0.94, res.Cases[0].Similarity)
	assert.Equal(t, 1, res.Cases[0].Rank)
}

func TestRetrieveNilEmbedderUsesBuiltinReferences(t *testing.T) {
	r := NewRetriever(&Library{}, nil, nil)

	res := r.Retrieve(context.Background(), "anything")

	assert.Equal(t, evidence.StatusMissingData, res.Evidence.Status)
	require.Len(t, res.Cases, 3)
	assert.Equal(t, "CASE_001", res.Cases[0].CaseID)
}

func TestRetrieveEmbedErrorLowConfidence(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("backend offline")}
	r := NewRetriever(testLibrary(), emb, nil)

	res := r.Retrieve(context.Background(), "query")

	assert.Equal(t, evidence.StatusLowConfidence, res.Evidence.Status)
	assert.Contains(t, res.Evidence.Finding, "backend offline")
	assert.Len(t, res.Cases, 3, "fallback panel stays populated")
}

func TestRetrieveCachesByQuery(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{0, 1, 0}}
	r := NewRetriever(testLibrary(), emb, nil)

	first := r.Retrieve(context.Background(), "same query")
	second := r.Retrieve(context.Background(), "same query")

	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, first.Cases, second.Cases)
}

func TestCosineDimensionMismatch(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0, 0, 0}, []float32{1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 1}))
}
