package aggregate

import "github.com/christopherklint97/daylog/internal/activity"

// DaySummary holds the headline counts for a day.
type DaySummary struct {
	TotalMeetings     int `json:"totalMeetings"`
	TotalMessages     int `json:"totalMessages"`
	TotalEmails       int `json:"totalEmails"`
	TotalDocEdits     int `json:"totalDocEdits"`
	TotalCardActivity int `json:"totalCardActivity"`
	TotalCodeEvents   int `json:"totalCodeEvents"`
	TotalIssueEvents  int `json:"totalIssueEvents"`
}

// Summarize counts non-spanning primaries as meetings and communications by
// source.
func Summarize(hours Hours) DaySummary {
	var s DaySummary
	for _, bucket := range hours {
		for _, p := range bucket.Primaries {
			if !p.IsSpanning {
				s.TotalMeetings++
			}
		}
		for _, c := range bucket.Communications {
			switch c.Source {
			case activity.SourceChat:
				s.TotalMessages++
			case activity.SourceMail:
				s.TotalEmails++
			case activity.SourceDocument:
				s.TotalDocEdits++
			case activity.SourceKanban:
				s.TotalCardActivity++
			case activity.SourceCodeHost:
				s.TotalCodeEvents++
			case activity.SourceIssues:
				s.TotalIssueEvents++
			}
		}
	}
	return s
}
