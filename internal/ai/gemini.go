package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Turn roles understood by Generator implementations.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one prior exchange handed to the model.
type Turn struct {
	Role string
	Text string
}

// Generator produces one model reply for a system instruction and turns.
type Generator interface {
	Generate(ctx context.Context, system string, turns []Turn) (string, error)
}

// GeminiGenerator talks to the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: 0.3}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, system string, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleModel {
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleModel))
		} else {
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}

	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temperature}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
