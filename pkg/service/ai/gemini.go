// Package ai narrates analysis reports with a generative model.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/duynguyendang/vultester/internal/logging"
	"github.com/duynguyendang/vultester/pkg/common/errors"
	"github.com/duynguyendang/vultester/pkg/engine"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator connects to Gemini. An empty key means the feature is
// switched off and yields ErrUnavailable.
func NewGeminiGenerator(ctx context.Context, apiKey, modelName string, temperature float32) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY not set", errors.ErrUnavailable)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends prompt and joins the text parts of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini request failed: %v", errors.ErrUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// Close releases the client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Narrator turns a Result into prose.
type Narrator struct {
	gen    Generator
	prompt *Prompt
	logger *zap.Logger
}

// NewNarrator wraps gen with the embedded explain prompt.
func NewNarrator(gen Generator, logger *zap.Logger) (*Narrator, error) {
	p, err := LoadPrompt("explain")
	if err != nil {
		return nil, err
	}
	return &Narrator{gen: gen, prompt: p, logger: logging.OrNop(logger)}, nil
}

// NewGeminiNarrator is NewNarrator over Gemini. modelName overrides the model
// named in the prompt frontmatter when set.
func NewGeminiNarrator(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*Narrator, error) {
	p, err := LoadPrompt("explain")
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = p.Config.Model
	}
	gen, err := NewGeminiGenerator(ctx, apiKey, modelName, p.Config.Temperature)
	if err != nil {
		return nil, err
	}
	return &Narrator{gen: gen, prompt: p, logger: logging.OrNop(logger)}, nil
}

type finding struct {
	Severity    string
	RuleID      string
	Description string
}

type reportView struct {
	*engine.Result
	Initial  []string
	Findings []finding
}

// BuildPrompt renders the prompt for res. initial lists the facts the caller
// supplied.
func (n *Narrator) BuildPrompt(res *engine.Result, initial []string) (string, error) {
	view := reportView{Result: res, Initial: initial}
	buckets := []struct {
		name  string
		items []engine.Vulnerability
	}{
		{"critical", res.Vulnerabilities.Critical},
		{"dangerous", res.Vulnerabilities.Dangerous},
		{"warning", res.Vulnerabilities.Warning},
		{"info", res.Vulnerabilities.Info},
	}
	for _, b := range buckets {
		for _, v := range b.items {
			view.Findings = append(view.Findings, finding{Severity: b.name, RuleID: v.RuleID, Description: v.Description})
		}
	}
	return n.prompt.Execute(view)
}

// Explain asks the model for a narrative of res.
func (n *Narrator) Explain(ctx context.Context, res *engine.Result, initial []string) (string, error) {
	prompt, err := n.BuildPrompt(res, initial)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInternal, err)
	}

	text, err := n.gen.Generate(ctx, prompt)
	if err != nil {
		n.logger.Warn("narration failed", zap.Error(err))
		return "", err
	}
	if text == "" {
		return "No response from AI.", nil
	}
	return text, nil
}
