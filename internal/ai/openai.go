package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAI generates suggestions through any OpenAI-compatible chat API.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: DefaultModelTimeout + 5*time.Second}),
		option.WithMaxRetries(0),
	)
	return &OpenAI{client: client, model: model, logger: logger}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

func (o *OpenAI) GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error) {
	system := "You produce draft time-log entries. Respond with a JSON array only, matching this JSON schema:\n" + schemaHint

	o.logger.Debug("openai request", "model", o.model, "prompt_len", len(prompt), "schema_len", len(schemaHint))
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	})
	elapsed := time.Since(start)
	if err != nil {
		o.logger.Debug("openai request failed", "model", o.model, "error", err, "elapsed", elapsed)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &ModelError{Provider: o.Name(), Kind: ModelEmpty}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		reason := choice.Message.Refusal
		if reason == "" {
			reason = "content filter"
		}
		return "", &ModelError{Provider: o.Name(), Kind: ModelBlocked, Err: fmt.Errorf("%s", reason)}
	}

	o.logger.Debug("openai response",
		"model", o.model,
		"finish_reason", choice.FinishReason,
		"response_len", len(choice.Message.Content),
		"elapsed", elapsed,
	)
	return choice.Message.Content, nil
}
