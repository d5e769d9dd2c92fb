package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// cleanEnv returns os.Environ() with Claude Code session vars removed
// so the subprocess doesn't get blocked by the nested-session check.
func cleanEnv() []string {
	blocked := map[string]bool{
		"CLAUDECODE":                           true,
		"CLAUDE_CODE_ENTRYPOINT":               true,
		"CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS": true,
	}
	var env []string
	for _, e := range os.Environ() {
		key, _, _ := strings.Cut(e, "=")
		if !blocked[key] {
			env = append(env, e)
		}
	}
	return env
}

// ClaudeCLI generates suggestions by shelling out to the claude CLI.
type ClaudeCLI struct {
	Model  string
	Binary string
	logger *slog.Logger
}

func NewClaudeCLI(model string, logger *slog.Logger) *ClaudeCLI {
	if model == "" {
		model = "sonnet"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ClaudeCLI{Model: model, Binary: "claude", logger: logger}
}

func (c *ClaudeCLI) Name() string { return "claude-cli:" + c.Model }

func (c *ClaudeCLI) GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error) {
	systemPrompt := "You produce draft time-log entries. Respond with a JSON array only, matching this JSON schema:\n" + schemaHint

	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--model", c.Model,
		"--system-prompt", systemPrompt,
		"--no-session-persistence",
	}

	c.logger.Debug("invoking claude CLI",
		"model", c.Model,
		"system_prompt_len", len(systemPrompt),
		"prompt_len", len(prompt),
	)

	result, err := c.runBufferedCLI(ctx, args)
	if err != nil {
		return "", err
	}

	c.logger.Debug("claude CLI result", "result_len", len(result), "result", truncateStr(result, 2000))
	return result, nil
}

// runBufferedCLI runs the CLI and captures all output at once.
func (c *ClaudeCLI) runBufferedCLI(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Env = cleanEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	elapsed := time.Since(startTime)

	c.logger.Debug("claude CLI finished",
		"elapsed", elapsed,
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
		"error", err,
	)

	if err != nil {
		c.logger.Error("claude CLI failed",
			"error", err,
			"elapsed", elapsed,
			"stderr", stderr.String(),
		)
		if ctx.Err() != nil {
			return "", &ModelError{Provider: c.Name(), Kind: ModelTimeout, Err: fmt.Errorf("no response after %s", elapsed.Truncate(time.Second))}
		}
		return "", fmt.Errorf("running claude CLI: %w (stderr: %s)", err, stderr.String())
	}

	return unwrapEnvelope(stdout.Bytes()), nil
}

// unwrapEnvelope extracts the model text from a `--output-format json`
// envelope, falling back to the raw output.
func unwrapEnvelope(out []byte) string {
	var wrapper struct {
		Type             string          `json:"type"`
		Subtype          string          `json:"subtype"`
		IsError          bool            `json:"is_error"`
		Result           json.RawMessage `json:"result"`
		StructuredOutput json.RawMessage `json:"structured_output"`
	}
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return string(out)
	}

	if len(wrapper.StructuredOutput) > 0 && (wrapper.StructuredOutput[0] == '[' || wrapper.StructuredOutput[0] == '{') {
		return string(wrapper.StructuredOutput)
	}
	if len(wrapper.Result) > 0 {
		// result is usually a JSON string holding the model's text
		var s string
		if err := json.Unmarshal(wrapper.Result, &s); err == nil {
			return s
		}
		if wrapper.Result[0] == '{' || wrapper.Result[0] == '[' {
			return string(wrapper.Result)
		}
	}
	if wrapper.Type == "" {
		return string(out)
	}
	return ""
}
