package tui

import (
	"fmt"
	"strings"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/lifecycle"
	"github.com/christopherklint97/daylog/internal/service"
)

var statusMarks = map[ai.Status]string{
	ai.StatusPending:  "·",
	ai.StatusApproved: "✓",
	ai.StatusEdited:   "✎",
}

func renderSuggestions(view lifecycle.View, approvedHours float64) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Suggested time for " + view.Date))
	sb.WriteString("\n")
	if view.Context != nil && len(view.Context.ExistingRecords) > 0 {
		sb.WriteString(subtitleStyle.Render(fmt.Sprintf("Already logged: %gh", view.Context.LoggedHours())))
		sb.WriteString("\n")
	}
	if view.Locked {
		sb.WriteString(warningStyle.Render("Hours are locked through " + view.Context.TimeLockDate))
		sb.WriteString("\n")
	}

	total := 0.0
	for _, s := range view.Suggestions {
		if s.Status == ai.StatusSkipped {
			continue
		}
		total += s.Hours

		prefix := "  "
		if s.ID == view.Focused {
			prefix = "> "
		}
		mark := statusMarks[s.Status]
		if r, ok := view.Results[s.ID]; ok {
			mark = "✓"
			if !r.Success {
				mark = "✗"
			}
		}

		line := fmt.Sprintf("%s%s %-24s %-14s %4.1fh  %s  %s",
			prefix,
			mark,
			truncate(s.ProjectName, 24),
			truncate(s.ActivityTypeName, 14),
			s.Hours,
			dimStyle.Render(string(s.Confidence)),
			s.Description,
		)
		if s.ID == view.Focused {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")

		if s.ID == view.Focused && s.Reasoning != "" {
			sb.WriteString(dimStyle.Render("    " + s.Reasoning))
			sb.WriteString("\n")
		}
		if r, ok := view.Results[s.ID]; ok && !r.Success {
			sb.WriteString(errorStyle.Render("    " + r.Error))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Total %gh • approved %gh", total, approvedHours))
	return boxStyle.Render(sb.String())
}

// renderTimeline lists the day hour by hour, marking the activities behind
// the focused suggestion.
func renderTimeline(day *service.DayActivities, highlighted func(string) bool) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Timeline"))
	sb.WriteString("\n")

	empty := true
	for _, h := range day.Hours.SortedHours() {
		bucket := day.Hours[h]
		var lines []string
		for _, group := range [][]activity.Activity{bucket.Primaries, bucket.Communications} {
			for _, act := range group {
				if act.IsSpanning {
					continue
				}
				line := fmt.Sprintf("  %s  %-9s %s", act.Timestamp.Format("15:04"), act.Source, truncate(act.DisplayTitle(), 70))
				if highlighted(activity.HighlightKey(act.Source, act.Timestamp)) {
					line = selectedStyle.Render(line)
				} else {
					line = dimStyle.Render(line)
				}
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		empty = false
		sb.WriteString(fmt.Sprintf("%02d:00\n", h))
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n")
	}
	if empty {
		sb.WriteString(dimStyle.Render("No activity recorded."))
		sb.WriteString("\n")
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
