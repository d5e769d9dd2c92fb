package ai

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/pm"
)

const (
	fallbackProject        = "Internal/Admin"
	defaultActivityMinutes = 15
)

type keywordRule struct {
	project  string
	keywords []string
}

// keywordTable maps known project names to title keywords. Order matters:
// the first matching rule wins.
var keywordTable = []keywordRule{
	{"Project Alpha", []string{"alpha", "alfa", "sprint", "planning", "planlegging", "standup", "retro"}},
	{"DevApp", []string{"dev", "frontend", "backend", "react", "component", "layout", "code", "pr", "pull request", "commit", "github"}},
	{"Customer Portal", []string{"customer", "kunde", "portal", "client", "demo"}},
	{"Internal/Admin", []string{"admin", "internal", "intern", "lunch", "lunsj", "1:1", "one-on-one", "all-hands", "weekly", "status"}},
	{"Sales & Marketing", []string{"sale", "salg", "marketing", "marked", "pitch", "proposal"}},
	{"Training", []string{"training", "opplæring", "course", "kurs", "onboarding"}},
}

var (
	developmentTypes   = []string{"development", "utvikling"}
	documentationTypes = []string{"documentation", "dokumentasjon"}
	meetingTypes       = []string{"meetings", "meeting", "møter"}
)

// HeuristicOptions tunes GenerateHeuristic.
type HeuristicOptions struct {
	// TargetHours is the workday length totals are normalized to.
	TargetHours float64
}

type projectGroup struct {
	project    pm.Project
	activities []FlatActivity
}

// GenerateHeuristic builds suggestions from keyword matching alone. It is
// deterministic apart from the generated ids.
func GenerateHeuristic(data PreprocessedData, pmCtx *pm.Context, opts HeuristicOptions) []Suggestion {
	target := opts.TargetHours
	if target <= 0 {
		target = DefaultWorkdayHours
	}
	if pmCtx == nil || len(pmCtx.Projects) == 0 {
		return []Suggestion{}
	}

	admin := findProject(pmCtx.Projects, fallbackProject)
	if admin == nil {
		admin = &pmCtx.Projects[0]
	}

	var groups []*projectGroup
	byID := make(map[string]*projectGroup)
	add := func(p pm.Project, a FlatActivity) {
		g, ok := byID[p.ID]
		if !ok {
			g = &projectGroup{project: p}
			byID[p.ID] = g
			groups = append(groups, g)
		}
		g.activities = append(g.activities, a)
	}

	var unmatched []FlatActivity
	for _, a := range data.Activities {
		if p := matchProject(a, pmCtx.Projects); p != nil {
			add(*p, a)
		} else {
			unmatched = append(unmatched, a)
		}
	}
	for _, a := range unmatched {
		add(*admin, a)
	}

	if len(groups) == 0 {
		t := guessActivityType(nil, pmCtx.ActivityTypesFor(admin.ID))
		return []Suggestion{{
			ID:               uuid.NewString(),
			ProjectID:        admin.ID,
			ProjectName:      admin.Name,
			ActivityTypeID:   t.ID,
			ActivityTypeName: t.Name,
			Hours:            RoundToHalf(target),
			Description:      "Miscellaneous work",
			DescriptionEn:    "Miscellaneous work",
			Reasoning:        "No activities were recorded for this day.",
			Confidence:       ConfidenceLow,
			SourceActivities: []SourceActivity{},
			Status:           StatusPending,
		}}
	}

	suggestions := make([]Suggestion, 0, len(groups))
	for _, g := range groups {
		minutes := 0
		sources := make([]SourceActivity, 0, len(g.activities))
		for _, a := range g.activities {
			m := a.DurationMinutes
			if m <= 0 {
				m = defaultActivityMinutes
			}
			minutes += m
			sources = append(sources, SourceActivity{
				Source:           string(a.Source),
				Title:            a.Title,
				Timestamp:        a.Timestamp.UTC().Format(time.RFC3339),
				EstimatedMinutes: m,
			})
		}

		confidence := ConfidenceMedium
		if hasSource(g.activities, activity.SourceCalendar) {
			confidence = ConfidenceHigh
		}

		t := guessActivityType(g.activities, pmCtx.ActivityTypesFor(g.project.ID))
		desc := describe(g.activities)
		suggestions = append(suggestions, Suggestion{
			ID:               uuid.NewString(),
			ProjectID:        g.project.ID,
			ProjectName:      g.project.Name,
			ActivityTypeID:   t.ID,
			ActivityTypeName: t.Name,
			Hours:            RoundToHalf(float64(minutes) / 60),
			Description:      desc,
			DescriptionEn:    desc,
			InternalNote:     internalNote(g.activities),
			Reasoning:        fmt.Sprintf("%d activities matched to this project by keyword and time spent.", len(g.activities)),
			Confidence:       confidence,
			SourceActivities: sources,
			Status:           StatusPending,
		})
	}

	normalizeTotal(suggestions, target, pmCtx.Allocations)
	return suggestions
}

// normalizeTotal shaves excess hours from the lowest-confidence lines first,
// never below 0.5h, or adds a shortfall to the first allocated project's line.
func normalizeTotal(suggestions []Suggestion, target float64, allocations []pm.Allocation) {
	if len(suggestions) == 0 {
		return
	}
	total := 0.0
	for _, s := range suggestions {
		total += s.Hours
	}

	switch {
	case total > target:
		order := make([]int, len(suggestions))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return suggestions[order[a]].Confidence.rank() < suggestions[order[b]].Confidence.rank()
		})
		excess := total - target
		for _, i := range order {
			if excess <= 0 {
				break
			}
			s := &suggestions[i]
			reduction := excess
			if room := s.Hours - 0.5; room < reduction {
				reduction = room
			}
			if reduction <= 0 {
				continue
			}
			before := s.Hours
			s.Hours = RoundToHalf(s.Hours - reduction)
			excess -= before - s.Hours
		}
	case total < target:
		idx := 0
		for i, s := range suggestions {
			if hasAllocation(allocations, s.ProjectID) {
				idx = i
				break
			}
		}
		suggestions[idx].Hours = RoundToHalf(suggestions[idx].Hours + target - total)
	}
}

func matchProject(a FlatActivity, projects []pm.Project) *pm.Project {
	text := strings.ToLower(a.Title)
	for _, rule := range keywordTable {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				if p := findProject(projects, rule.project); p != nil {
					return p
				}
			}
		}
	}
	return nil
}

func findProject(projects []pm.Project, name string) *pm.Project {
	for i := range projects {
		if strings.EqualFold(projects[i].Name, name) {
			return &projects[i]
		}
	}
	return nil
}

func findType(types []pm.ActivityType, names []string) (pm.ActivityType, bool) {
	for _, t := range types {
		for _, n := range names {
			if strings.EqualFold(t.Name, n) {
				return t, true
			}
		}
	}
	return pm.ActivityType{}, false
}

// guessActivityType picks development for code-host work, documentation
// for documents without meetings, meetings for calendar time, and the first
// type otherwise.
func guessActivityType(acts []FlatActivity, types []pm.ActivityType) pm.ActivityType {
	hasCalendar := hasSource(acts, activity.SourceCalendar)
	if hasSource(acts, activity.SourceCodeHost) {
		if t, ok := findType(types, developmentTypes); ok {
			return t
		}
	}
	if hasSource(acts, activity.SourceDocument) && !hasCalendar {
		if t, ok := findType(types, documentationTypes); ok {
			return t
		}
	}
	if hasCalendar {
		if t, ok := findType(types, meetingTypes); ok {
			return t
		}
	}
	if len(types) == 0 {
		return pm.ActivityType{Name: fallbackTypeName}
	}
	return types[0]
}

func hasSource(acts []FlatActivity, s activity.Source) bool {
	for _, a := range acts {
		if a.Source == s {
			return true
		}
	}
	return false
}

func hasAllocation(allocations []pm.Allocation, projectID string) bool {
	for _, a := range allocations {
		if a.ProjectID == projectID {
			return true
		}
	}
	return false
}

func describe(acts []FlatActivity) string {
	var parts []string
	var meetings []string
	for _, a := range acts {
		if a.Source == activity.SourceCalendar && len(meetings) < 2 {
			meetings = append(meetings, a.Title)
		}
	}
	if len(meetings) > 0 {
		parts = append(parts, strings.Join(meetings, ", "))
	}
	if hasSource(acts, activity.SourceCodeHost) {
		parts = append(parts, "development")
	}
	if hasSource(acts, activity.SourceDocument) {
		parts = append(parts, "documentation work")
	}
	if hasSource(acts, activity.SourceChat) && len(parts) == 0 {
		parts = append(parts, "communication and follow-up")
	}
	if len(parts) == 0 {
		return "Miscellaneous work"
	}
	desc := []rune(strings.Join(parts, ", "))
	desc[0] = unicode.ToUpper(desc[0])
	return string(desc)
}

var noteLabels = map[activity.Source]string{
	activity.SourceCalendar: "Meeting",
	activity.SourceChat:     "Chat",
	activity.SourceDocument: "Doc",
	activity.SourceCodeHost: "GitHub",
	activity.SourceMail:     "Email",
}

func internalNote(acts []FlatActivity) string {
	if len(acts) > 4 {
		acts = acts[:4]
	}
	items := make([]string, 0, len(acts))
	for _, a := range acts {
		label, ok := noteLabels[a.Source]
		if !ok {
			label = string(a.Source)
		}
		items = append(items, label+": "+truncateRunes(a.Title, 50))
	}
	return strings.Join(items, ". ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
