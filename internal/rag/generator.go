package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// Generator produces an answer from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationConfig carries the model sampling knobs.
type GenerationConfig struct {
	Temperature float32
	TopP        float32
	TopK        int32
	MaxTokens   int32
}

// GenkitGenerator answers prompts through a Genkit-registered Gemini model.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
	cfg       GenerationConfig
}

// NewGenkitGenerator creates a generator for the given model.
// modelName is the bare Gemini model id (e.g. "gemini-2.5-flash").
func NewGenkitGenerator(g *genkit.Genkit, modelName string, cfg GenerationConfig) (*GenkitGenerator, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if modelName == "" {
		return nil, errors.New("model name is required")
	}
	return &GenkitGenerator{g: g, modelName: modelName, cfg: cfg}, nil
}

// Generate implements Generator.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName("googleai/"+gg.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(gg.cfg.Temperature),
			TopP:            genai.Ptr(gg.cfg.TopP),
			TopK:            genai.Ptr(float32(gg.cfg.TopK)),
			MaxOutputTokens: gg.cfg.MaxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return resp.Text(), nil
}
