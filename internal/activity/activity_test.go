package activity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		name string
		act  Activity
		want string
	}{
		{"calendar", Activity{Source: SourceCalendar, Title: "Standup"}, "Standup"},
		{"calendar untitled", Activity{Source: SourceCalendar}, "Untitled event"},
		{"mail", Activity{Source: SourceMail, Subject: "Invoice"}, "Invoice"},
		{"chat channel", Activity{Source: SourceChat, Channel: "dev", Text: "deploying"}, "#dev: deploying"},
		{"chat dm", Activity{Source: SourceChat, Channel: "D123", IsDM: true, Text: "hi"}, "DM: hi"},
		{"document", Activity{Source: SourceDocument, Type: "Commented", Title: "Roadmap"}, "Commented: Roadmap"},
		{"document defaults", Activity{Source: SourceDocument}, "Edited: Untitled doc"},
		{"kanban", Activity{Source: SourceKanban, CardName: "Ship it"}, "Ship it"},
		{"codehost", Activity{Source: SourceCodeHost, RepoName: "api", Title: "Fix bug"}, "api: Fix bug"},
		{"issues summary", Activity{Source: SourceIssues, IssueKey: "OPS-1", IssueSummary: "Outage", Detail: "moved"}, "OPS-1: Outage"},
		{"issues detail", Activity{Source: SourceIssues, IssueKey: "OPS-1", Detail: "moved"}, "OPS-1: moved"},
		{"unknown", Activity{Source: "fax"}, "Unknown activity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.act.DisplayTitle())
		})
	}
}

func TestDisplayTitle_TruncatesChat(t *testing.T) {
	a := Activity{Source: SourceChat, Channel: "x", Text: strings.Repeat("é", 200)}
	assert.Len(t, []rune(a.DisplayTitle()), 100)
}

func TestDuration(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	before := start.Add(-time.Minute)

	assert.Equal(t, 45*time.Minute, Activity{Timestamp: start, EndTime: &end}.Duration())
	assert.Zero(t, Activity{Timestamp: start}.Duration())
	assert.False(t, Activity{Timestamp: start, EndTime: &before}.HasInterval())
}

func TestHighlightKey(t *testing.T) {
	ts := time.Date(2025, 3, 10, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "calendar-2025-03-10T09:30:00Z", HighlightKey(SourceCalendar, ts))
}

func TestSourceValid(t *testing.T) {
	for _, s := range Sources {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Source("fax").Valid())
}
