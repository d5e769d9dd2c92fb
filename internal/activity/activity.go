package activity

import (
	"strings"
	"time"
)

// Source identifies which external system an activity came from.
type Source string

const (
	SourceCalendar Source = "calendar"
	SourceMail     Source = "mail"
	SourceChat     Source = "chat"
	SourceDocument Source = "document"
	SourceKanban   Source = "kanban"
	SourceCodeHost Source = "codehost"
	SourceIssues   Source = "issues"
)

// Sources lists every known source in display order.
var Sources = []Source{
	SourceCalendar,
	SourceMail,
	SourceChat,
	SourceDocument,
	SourceKanban,
	SourceCodeHost,
	SourceIssues,
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Activity is a single normalized event from any source. Only the fields
// relevant to its source are populated.
type Activity struct {
	Source    Source     `json:"source"`
	Type      string     `json:"type,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	Title   string `json:"title,omitempty"`
	Subject string `json:"subject,omitempty"`
	Channel string `json:"channel,omitempty"`
	IsDM    bool   `json:"isDm,omitempty"`
	Text    string `json:"text,omitempty"`
	From    string `json:"from,omitempty"`
	URL     string `json:"url,omitempty"`

	RepoName     string `json:"repoName,omitempty"`
	CardName     string `json:"cardName,omitempty"`
	BoardName    string `json:"boardName,omitempty"`
	IssueKey     string `json:"issueKey,omitempty"`
	IssueSummary string `json:"issueSummary,omitempty"`
	Detail       string `json:"detail,omitempty"`

	// Set by the aggregator on copies of multi-hour activities.
	IsSpanning bool `json:"isSpanning,omitempty"`
	SpanStart  bool `json:"spanStart,omitempty"`
}

// HasInterval reports whether the activity is interval-shaped with a
// well-formed end.
func (a Activity) HasInterval() bool {
	return a.EndTime != nil && !a.EndTime.Before(a.Timestamp)
}

// Duration returns the interval length, or zero for point activities.
func (a Activity) Duration() time.Duration {
	if !a.HasInterval() {
		return 0
	}
	return a.EndTime.Sub(a.Timestamp)
}

// DisplayTitle renders a short human-readable label for the activity.
func (a Activity) DisplayTitle() string {
	switch a.Source {
	case SourceCalendar:
		return orDefault(a.Title, "Untitled event")
	case SourceMail:
		return orDefault(a.Subject, "Untitled email")
	case SourceChat:
		label := "#" + a.Channel
		if a.IsDM {
			label = "DM"
		}
		return truncateRunes(label+": "+a.Text, 100)
	case SourceDocument:
		return orDefault(a.Type, "Edited") + ": " + orDefault(a.Title, "Untitled doc")
	case SourceKanban:
		return orDefault(a.CardName, "Card activity")
	case SourceCodeHost:
		return orDefault(a.RepoName, "Code") + ": " + a.Title
	case SourceIssues:
		detail := a.IssueSummary
		if detail == "" {
			detail = a.Detail
		}
		return orDefault(a.IssueKey, "Issue") + ": " + detail
	}
	return orDefault(a.Title, "Unknown activity")
}

// HighlightKey links an activity to the suggestions that cite it.
func HighlightKey(source Source, ts time.Time) string {
	return string(source) + "-" + ts.UTC().Format(time.RFC3339)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
