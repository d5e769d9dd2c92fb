package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultModelTimeout bounds a single generative-model call.
const DefaultModelTimeout = 30 * time.Second

// Generator turns a prompt into text that should contain a suggestion array.
type Generator interface {
	Name() string
	GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error)
}

type ModelErrorKind string

const (
	ModelTimeout   ModelErrorKind = "timeout"
	ModelBlocked   ModelErrorKind = "blocked"
	ModelEmpty     ModelErrorKind = "empty"
	ModelTransport ModelErrorKind = "transport"
)

// ModelError is a failed generative-model call.
type ModelError struct {
	Provider string
	Kind     ModelErrorKind
	Err      error
}

func (e *ModelError) Error() string {
	switch e.Kind {
	case ModelTimeout:
		return fmt.Sprintf("%s timed out: %v", e.Provider, e.Err)
	case ModelBlocked:
		return fmt.Sprintf("%s blocked the prompt: %v", e.Provider, e.Err)
	case ModelEmpty:
		return fmt.Sprintf("%s returned an empty response", e.Provider)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Generate calls g under a hard timeout and maps every failure to a
// ModelError. A timeout is an ordinary error, not a panic or a hang.
func Generate(ctx context.Context, g Generator, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := g.GenerateSuggestions(ctx, prompt, SchemaHint())
	if err != nil {
		var me *ModelError
		if errors.As(err, &me) {
			return "", me
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ModelError{Provider: g.Name(), Kind: ModelTimeout, Err: fmt.Errorf("no response after %s", timeout)}
		}
		return "", &ModelError{Provider: g.Name(), Kind: ModelTransport, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &ModelError{Provider: g.Name(), Kind: ModelEmpty}
	}
	return text, nil
}
