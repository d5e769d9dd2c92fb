package ai

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/christopherklint97/daylog/internal/pm"
)

// DefaultWorkdayHours is the standard length of a workday.
const DefaultWorkdayHours = 7.5

// PromptOptions tunes the instructional template.
type PromptOptions struct {
	// WorkdayHours is the target total. Defaults to DefaultWorkdayHours.
	WorkdayHours float64
	// Language is the language descriptions are written in. Defaults to English.
	Language string
	// Location renders activity times. Defaults to UTC.
	Location *time.Location
}

func (o PromptOptions) withDefaults() PromptOptions {
	if o.WorkdayHours <= 0 {
		o.WorkdayHours = DefaultWorkdayHours
	}
	if o.Language == "" {
		o.Language = "English"
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// AssemblePrompt renders the instructions, the project context and the day's
// activity timeline into one prompt. Nothing is truncated here.
func AssemblePrompt(data PreprocessedData, pmCtx *pm.Context, date string, opts PromptOptions) string {
	opts = opts.withDefaults()
	if pmCtx == nil {
		pmCtx = &pm.Context{}
	}
	target := formatHours(opts.WorkdayHours)

	var b strings.Builder
	b.WriteString("You are an assistant that helps consultants log their working hours.\n\n")

	b.WriteString("RULES:\n")
	fmt.Fprintf(&b, "- A standard workday is %sh\n", target)
	b.WriteString("- Round every line to the nearest 0.5h (minimum 0.5h per line)\n")
	fmt.Fprintf(&b, "- Write descriptions in %s, in client-friendly language\n", opts.Language)
	fmt.Fprintf(&b, "- Write internal notes in %s, with more detail\n", opts.Language)
	b.WriteString("- Put an English version of the description in descriptionEn\n")
	b.WriteString("- Answer ONLY with a valid JSON array matching the schema below, no prose\n")
	fmt.Fprintf(&b, "- The hours should sum to about %sh including time already logged\n", target)
	fmt.Fprintf(&b, "- If rounding pushes the total above %sh, trim the line with the lowest confidence first\n", target)
	b.WriteString("- Only use project and activity type IDs from the lists below\n\n")

	fmt.Fprintf(&b, "DATE: %s\n\n", date)

	b.WriteString("AVAILABLE PROJECTS:\n")
	if len(pmCtx.Projects) == 0 {
		b.WriteString("No projects available.\n")
	}
	for _, p := range pmCtx.Projects {
		if p.Code != "" {
			fmt.Fprintf(&b, "- %s (ID: %s, code: %s)\n", p.Name, p.ID, p.Code)
		} else {
			fmt.Fprintf(&b, "- %s (ID: %s)\n", p.Name, p.ID)
		}
		if types := pmCtx.ProjectActivityTypes[p.ID]; len(types) > 0 {
			names := make([]string, 0, len(types))
			for _, t := range types {
				names = append(names, fmt.Sprintf("%s (ID: %s)", t.Name, t.ID))
			}
			fmt.Fprintf(&b, "  activity types: %s\n", strings.Join(names, ", "))
		}
	}
	b.WriteString("\n")

	if len(pmCtx.ProjectActivityTypes) == 0 {
		b.WriteString("ACTIVITY TYPES:\n")
		if len(pmCtx.ActivityTypes) == 0 {
			b.WriteString("No activity types available.\n")
		}
		for _, t := range pmCtx.ActivityTypes {
			fmt.Fprintf(&b, "- %s (ID: %s)\n", t.Name, t.ID)
		}
		b.WriteString("\n")
	}

	b.WriteString("ALLOCATIONS (hint for distribution):\n")
	if len(pmCtx.Allocations) == 0 {
		b.WriteString("No allocations registered.\n")
	}
	for _, a := range pmCtx.Allocations {
		fmt.Fprintf(&b, "- %s: %sh\n", a.ProjectName, formatHours(a.AllocatedHours))
	}
	b.WriteString("\n")

	b.WriteString("ALREADY LOGGED (do not suggest this time again):\n")
	if len(pmCtx.ExistingRecords) == 0 {
		b.WriteString("Nothing logged yet.\n")
	}
	for _, r := range pmCtx.ExistingRecords {
		name := r.ProjectName
		if name == "" {
			name = r.ProjectID
		}
		line := fmt.Sprintf("- %s: %sh", name, formatHours(r.Hours))
		if r.Description != "" {
			line += " (" + r.Description + ")"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("TODAY'S ACTIVITIES:\n")
	if len(data.Activities) == 0 {
		b.WriteString("No activities recorded.\n")
	}
	for _, a := range data.Activities {
		dur := ""
		if a.DurationMinutes > 0 {
			dur = fmt.Sprintf(" (%d min)", a.DurationMinutes)
		}
		fmt.Fprintf(&b, "- [%s] [%s] %s%s\n", a.Timestamp.In(opts.Location).Format("15:04"), a.Source, a.Title, dur)
	}
	b.WriteString("\n")

	b.WriteString("ANALYSIS:\n")
	fmt.Fprintf(&b, "- Calendar time: %d minutes\n", data.CalendarMinutes)
	fmt.Fprintf(&b, "- Time between meetings: %d minutes\n", data.GapMinutes)
	if data.LunchDetected {
		b.WriteString("- Lunch detected: yes (-30 min)\n")
	} else {
		b.WriteString("- Lunch detected: no\n")
	}
	fmt.Fprintf(&b, "- Estimated active time: %d minutes\n\n", data.TotalActiveMinutes)

	b.WriteString(`SCHEMA (return a JSON array):
[
  {
    "projectId": "string",
    "projectName": "string",
    "activityTypeId": "string",
    "activityTypeName": "string",
    "hours": number,
    "description": "Short client-friendly description",
    "descriptionEn": "The description in English",
    "internalNote": "More detailed internal note",
    "reasoning": "Why this line was suggested",
    "confidence": "high" | "medium" | "low",
    "sourceActivities": [
      { "source": "string", "title": "string", "timestamp": "ISO string", "estimatedMinutes": number }
    ]
  }
]

Generate the suggestions now.`)

	return b.String()
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}
