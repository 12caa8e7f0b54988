package debate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// ErrEmptyResponse reports a generation call that returned no candidates.
var ErrEmptyResponse = errors.New("debate: empty model response")

// GeminiBackend serves generation calls through the official genai client.
// It satisfies both this package's Generator and the drug-interaction
// analyzer's.
type GeminiBackend struct {
	cli   *genai.Client
	model string
}

// NewGeminiBackend builds the backend. The API key is read from the
// environment by the genai client itself.
func NewGeminiBackend(ctx context.Context, model string) (*GeminiBackend, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("debate: init genai client: %w", err)
	}
	return &GeminiBackend{cli: cli, model: model}, nil
}

func (g *GeminiBackend) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			MaxOutputTokens: int32(maxTokens),
			Temperature:     f32(0.4),
			TopP:            f32(0.9),
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func f32(v float32) *float32 { return &v }

// FakeGenerator returns canned outputs keyed by a prompt substring, for
// tests and offline demos.
type FakeGenerator struct {
	Responses map[string]string
	Err       error

	Prompts []string
	Budgets []int
}

func (f *FakeGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	f.Prompts = append(f.Prompts, prompt)
	f.Budgets = append(f.Budgets, maxTokens)
	if f.Err != nil {
		return "", f.Err
	}
	for key, out := range f.Responses {
		if key != "" && strings.Contains(prompt, key) {
			return out, nil
		}
	}
	return "", nil
}
