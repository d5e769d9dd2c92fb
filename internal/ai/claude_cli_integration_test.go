//go:build integration

package ai_test

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
)

func skipIfNoClaude(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("claude"); err != nil {
		t.Skip("claude CLI not found in PATH, skipping integration test")
	}
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestClaudeCLI_GenerateSuggestions(t *testing.T) {
	skipIfNoClaude(t)

	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	end := day.Add(10 * time.Hour)
	data := ai.NewPreprocessor(time.UTC).Reduce([]ai.FlatActivity{
		{Source: "calendar", Title: "Sprint planning", Timestamp: day.Add(9 * time.Hour), EndTime: &end, DurationMinutes: 60},
		{Source: "codehost", Title: "daylog: Fix login bug", Timestamp: day.Add(13 * time.Hour)},
	})
	pmCtx := &pm.Context{
		Projects:      []pm.Project{{ID: "p1", Name: "Project Alpha"}, {ID: "p2", Name: "DevApp"}},
		ActivityTypes: []pm.ActivityType{{ID: "a1", Name: "Development"}, {ID: "a3", Name: "Meetings"}},
	}
	prompt := ai.AssemblePrompt(data, pmCtx, "2025-03-04", ai.PromptOptions{})

	cli := ai.NewClaudeCLI("haiku", testLogger(t))
	text, err := ai.Generate(context.Background(), cli, prompt, 90*time.Second)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	t.Logf("raw response: %s", text)

	suggestions, err := ai.ParseSuggestions(text)
	if err != nil {
		t.Fatalf("ParseSuggestions failed: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("expected at least one suggestion")
	}
	for i, s := range suggestions {
		t.Logf("suggestion[%d]: project=%s (%s) hours=%.1f confidence=%s desc=%q",
			i, s.ProjectName, s.ProjectID, s.Hours, s.Confidence, s.Description)
		if s.Hours < 0.5 {
			t.Errorf("suggestion %d has %.1f hours, want >= 0.5", i, s.Hours)
		}
	}
}
