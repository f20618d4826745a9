package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"so101-builder/pkg/apperr"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Gemini is the production Client backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	jsonOutput  bool
}

// NewGemini creates a Gemini client. Close releases the underlying connection.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       model,
		temperature: 0.2,
		maxTokens:   8192,
	}, nil
}

// WithTemperature overrides the sampling temperature.
func (g *Gemini) WithTemperature(t float32) *Gemini {
	g.temperature = t
	return g
}

// WithJSONOutput makes the model emit application/json responses.
func (g *Gemini) WithJSONOutput() *Gemini {
	g.jsonOutput = true
	return g
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Close releases the underlying API connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete sends a bare prompt.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (g *Gemini) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(ctx, systemPrompt, userPrompt)
}

func (g *Gemini) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(g.maxTokens)
	if g.jsonOutput {
		model.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", apperr.Upstream(err, "gemini request failed")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Upstream(nil, "gemini returned no content")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", apperr.Upstream(nil, "gemini returned no text parts")
	}
	return sb.String(), nil
}
