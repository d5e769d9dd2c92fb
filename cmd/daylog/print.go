package main

import (
	"fmt"
	"io"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/service"
	"github.com/christopherklint97/daylog/internal/store"
)

func printDay(w io.Writer, day *service.DayActivities) {
	fmt.Fprintf(w, "Activity for %s (%s)\n\n", day.Date, day.Timezone)
	loc := locOf(day)

	empty := true
	for _, h := range day.Hours.SortedHours() {
		bucket := day.Hours[h]
		if len(bucket.Primaries) == 0 && len(bucket.Communications) == 0 {
			continue
		}
		empty = false
		fmt.Fprintf(w, "%02d:00\n", h)
		for _, p := range bucket.Primaries {
			if p.IsSpanning {
				fmt.Fprintf(w, "  │     %s (cont.)\n", p.DisplayTitle())
				continue
			}
			fmt.Fprintf(w, "  ■ %s %s%s\n", p.Timestamp.In(loc).Format("15:04"), p.DisplayTitle(), minutes(p))
		}
		for _, c := range bucket.Communications {
			fmt.Fprintf(w, "  · %s [%s] %s\n", c.Timestamp.In(loc).Format("15:04"), c.Source, c.DisplayTitle())
		}
	}
	if empty {
		fmt.Fprintln(w, "No activity found.")
	}

	fmt.Fprintln(w)
	s := day.Summary
	fmt.Fprintf(w, "Meetings %d · messages %d · emails %d · docs %d · cards %d · code %d · issues %d\n",
		s.TotalMeetings, s.TotalMessages, s.TotalEmails, s.TotalDocEdits,
		s.TotalCardActivity, s.TotalCodeEvents, s.TotalIssueEvents)
	if len(day.Failed) > 0 {
		fmt.Fprintf(w, "Unavailable sources: %v\n", day.Failed)
	}
}

func printJournal(w io.Writer, date string, entries []store.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No entries submitted for %s.\n", date)
		return
	}

	total := 0.0
	fmt.Fprintf(w, "Entries for %s:\n\n", date)
	for _, e := range entries {
		fmt.Fprintf(w, "  %4.1fh  %-20s  %-14s  %s  [%s]\n",
			e.Hours, e.ProjectName, e.ActivityTypeName, e.Description, e.Status)
		if e.Error != "" {
			fmt.Fprintf(w, "         %s\n", e.Error)
		}
		if e.Status == store.StatusLogged {
			total += e.Hours
		}
	}
	fmt.Fprintf(w, "\nLogged: %gh (%d entries)\n", total, len(entries))
}

func minutes(a activity.Activity) string {
	if !a.HasInterval() {
		return ""
	}
	return fmt.Sprintf(" (%dmin)", int(a.Duration().Minutes()))
}

func locOf(day *service.DayActivities) *time.Location {
	if loc, err := time.LoadLocation(day.Timezone); err == nil {
		return loc
	}
	return time.Local
}
