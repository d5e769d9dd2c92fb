package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/pm"
)

func mockContext() *pm.Context {
	m := pm.NewMock(nil)
	return &pm.Context{
		Projects:      m.Projects,
		ActivityTypes: m.ActivityTypes,
		Allocations:   m.Allocations,
	}
}

func flat(src activity.Source, title string, ts time.Time, minutes int) FlatActivity {
	f := FlatActivity{Source: src, Title: title, Timestamp: ts}
	if minutes > 0 {
		end := ts.Add(time.Duration(minutes) * time.Minute)
		f.EndTime = &end
		f.DurationMinutes = minutes
	}
	return f
}

func totalHours(s []Suggestion) float64 {
	var sum float64
	for _, x := range s {
		sum += x.Hours
	}
	return sum
}

func TestGenerateHeuristic_TrimsLowestConfidenceFirst(t *testing.T) {
	data := PreprocessedData{Activities: []FlatActivity{
		flat(activity.SourceCalendar, "Sprint planning", at(8, 0), 300),
		flat(activity.SourceChat, "#random: coffee?", at(9, 0), 0),
		flat(activity.SourceChat, "#random: lunch plans", at(9, 30), 0),
		flat(activity.SourceCalendar, "Frontend review", at(13, 0), 240),
	}}

	got := GenerateHeuristic(data, mockContext(), HeuristicOptions{})
	require.Len(t, got, 3)

	assert.Equal(t, "Project Alpha", got[0].ProjectName)
	assert.Equal(t, 3.0, got[0].Hours)
	assert.Equal(t, ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, "Meetings", got[0].ActivityTypeName)

	assert.Equal(t, "Internal/Admin", got[1].ProjectName)
	assert.Equal(t, 0.5, got[1].Hours)
	assert.Equal(t, ConfidenceMedium, got[1].Confidence)

	assert.Equal(t, "DevApp", got[2].ProjectName)
	assert.Equal(t, 4.0, got[2].Hours)

	assert.Equal(t, 7.5, totalHours(got))
}

func TestGenerateHeuristic_ShortfallGoesToAllocatedProject(t *testing.T) {
	data := PreprocessedData{Activities: []FlatActivity{
		flat(activity.SourceCalendar, "Customer demo", at(9, 0), 60),
		flat(activity.SourceCodeHost, "daylog: commit parser fix", at(14, 0), 0),
	}}

	got := GenerateHeuristic(data, mockContext(), HeuristicOptions{})
	require.Len(t, got, 2)

	assert.Equal(t, "Customer Portal", got[0].ProjectName)
	assert.Equal(t, 1.0, got[0].Hours)
	assert.Equal(t, "DevApp", got[1].ProjectName)
	assert.Equal(t, "Development", got[1].ActivityTypeName)
	assert.Equal(t, 6.5, got[1].Hours)
	assert.Equal(t, 7.5, totalHours(got))
}

func TestGenerateHeuristic_ShortfallFallsBackToFirstSuggestion(t *testing.T) {
	pmCtx := mockContext()
	pmCtx.Allocations = nil
	data := PreprocessedData{Activities: []FlatActivity{
		flat(activity.SourceCalendar, "Customer demo", at(9, 0), 60),
	}}

	got := GenerateHeuristic(data, pmCtx, HeuristicOptions{TargetHours: 8})
	require.Len(t, got, 1)
	assert.Equal(t, 8.0, got[0].Hours)
}

func TestGenerateHeuristic_TotalHoursLaw(t *testing.T) {
	days := [][]FlatActivity{
		nil,
		{flat(activity.SourceChat, "#general: hi", at(9, 0), 0)},
		{
			flat(activity.SourceCalendar, "Weekly status", at(9, 0), 30),
			flat(activity.SourceDocument, "Edited: Proposal draft", at(10, 0), 0),
			flat(activity.SourceCodeHost, "daylog: Open PR", at(11, 0), 0),
			flat(activity.SourceCalendar, "Onboarding session", at(13, 0), 120),
			flat(activity.SourceCalendar, "Backend sync", at(15, 0), 600),
			flat(activity.SourceMail, "Customer question", at(16, 0), 0),
		},
	}
	for _, target := range []float64{7.5, 6, 8} {
		for i, acts := range days {
			got := GenerateHeuristic(PreprocessedData{Activities: acts}, mockContext(), HeuristicOptions{TargetHours: target})
			require.NotEmpty(t, got, "day %d", i)
			assert.InDelta(t, target, totalHours(got), 0.5, "day %d target %v", i, target)
			for _, s := range got {
				assert.GreaterOrEqual(t, s.Hours, 0.5)
				assert.Equal(t, StatusPending, s.Status)
				assert.NotEmpty(t, s.ID)
			}
		}
	}
}

func TestGenerateHeuristic_ActivityTypeGuess(t *testing.T) {
	types := mockContext().ActivityTypes

	docOnly := []FlatActivity{flat(activity.SourceDocument, "Edited: Roadmap", at(9, 0), 0)}
	assert.Equal(t, "Documentation", guessActivityType(docOnly, types).Name)

	docAndMeeting := append(docOnly, flat(activity.SourceCalendar, "Review", at(10, 0), 30))
	assert.Equal(t, "Meetings", guessActivityType(docAndMeeting, types).Name)

	withCode := append(docAndMeeting, flat(activity.SourceCodeHost, "repo: push", at(11, 0), 0))
	assert.Equal(t, "Development", guessActivityType(withCode, types).Name)

	chatOnly := []FlatActivity{flat(activity.SourceChat, "#general: hi", at(9, 0), 0)}
	assert.Equal(t, "Development", guessActivityType(chatOnly, types).Name, "first type is the fallback")

	assert.Equal(t, "Unknown type", guessActivityType(chatOnly, nil).Name)
}

func TestGenerateHeuristic_FallsBackToFirstProject(t *testing.T) {
	pmCtx := &pm.Context{
		Projects:      []pm.Project{{ID: "x1", Name: "Acme"}, {ID: "x2", Name: "Globex"}},
		ActivityTypes: []pm.ActivityType{{ID: "t1", Name: "Consulting"}},
	}
	data := PreprocessedData{Activities: []FlatActivity{flat(activity.SourceChat, "#general: hi", at(9, 0), 0)}}

	got := GenerateHeuristic(data, pmCtx, HeuristicOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "x1", got[0].ProjectID)
	assert.Equal(t, "Consulting", got[0].ActivityTypeName)
	assert.Equal(t, 7.5, got[0].Hours)
	assert.Equal(t, "Communication and follow-up", got[0].Description)
}

func TestGenerateHeuristic_NoProjects(t *testing.T) {
	data := PreprocessedData{Activities: []FlatActivity{flat(activity.SourceChat, "#general: hi", at(9, 0), 0)}}
	assert.Empty(t, GenerateHeuristic(data, &pm.Context{}, HeuristicOptions{}))
	assert.Empty(t, GenerateHeuristic(data, nil, HeuristicOptions{}))
}

func TestGenerateHeuristic_EmptyDay(t *testing.T) {
	got := GenerateHeuristic(PreprocessedData{}, mockContext(), HeuristicOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "Internal/Admin", got[0].ProjectName)
	assert.Equal(t, ConfidenceLow, got[0].Confidence)
	assert.Equal(t, 7.5, got[0].Hours)
}

func TestGenerateHeuristic_DescriptionAndNote(t *testing.T) {
	data := PreprocessedData{Activities: []FlatActivity{
		flat(activity.SourceCalendar, "Sprint planning", at(9, 0), 60),
		flat(activity.SourceCalendar, "Sprint retro", at(10, 0), 60),
		flat(activity.SourceCalendar, "Sprint demo prep", at(11, 0), 30),
	}}
	got := GenerateHeuristic(data, mockContext(), HeuristicOptions{})
	require.Len(t, got, 1)
	assert.Equal(t, "Sprint planning, Sprint retro", got[0].Description)
	assert.Equal(t, got[0].Description, got[0].DescriptionEn)
	assert.Equal(t, "Meeting: Sprint planning. Meeting: Sprint retro. Meeting: Sprint demo prep", got[0].InternalNote)
	require.Len(t, got[0].SourceActivities, 3)
	assert.Equal(t, "2025-03-10T09:00:00Z", got[0].SourceActivities[0].Timestamp)
	assert.Equal(t, 60, got[0].SourceActivities[0].EstimatedMinutes)
}
