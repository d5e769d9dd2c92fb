package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini generates suggestions through the Gemini API.
type Gemini struct {
	cli    *genai.Client
	model  string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: model, logger: logger}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error) {
	temperature := float32(0.3)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{
			Text: "Respond with a JSON array only, matching this JSON schema:\n" + schemaHint,
		}}},
	}

	g.logger.Debug("gemini request", "model", g.model, "prompt_len", len(prompt))
	start := time.Now()
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		cfg,
	)
	elapsed := time.Since(start)
	if err != nil {
		g.logger.Debug("gemini request failed", "model", g.model, "error", err, "elapsed", elapsed)
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &ModelError{Provider: g.Name(), Kind: ModelBlocked, Err: fmt.Errorf("%s", resp.PromptFeedback.BlockReason)}
	}

	text := resp.Text()
	g.logger.Debug("gemini response", "model", g.model, "response_len", len(text), "elapsed", elapsed)
	if text == "" {
		return "", &ModelError{Provider: g.Name(), Kind: ModelEmpty}
	}
	return text, nil
}
