package ai

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/aggregate"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 10, hour, min, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func meeting(title string, start, end time.Time) activity.Activity {
	return activity.Activity{Source: activity.SourceCalendar, Title: title, Timestamp: start, EndTime: ptr(end)}
}

func chat(channel, text string, ts time.Time) activity.Activity {
	return activity.Activity{Source: activity.SourceChat, Channel: channel, Text: text, Timestamp: ts}
}

func preprocess(acts ...activity.Activity) PreprocessedData {
	return Preprocess(aggregate.Aggregate(acts, aggregate.DefaultWindow(), time.UTC), time.UTC)
}

func TestPreprocess_LunchDetected(t *testing.T) {
	data := preprocess(
		meeting("Standup", at(9, 0), at(10, 0)),
		chat("general", "back from lunch", at(14, 0)),
	)

	require.Len(t, data.Activities, 2)
	assert.True(t, data.LunchDetected)
	assert.Equal(t, 60, data.CalendarMinutes)
	assert.Equal(t, 0, data.GapMinutes)
	assert.Equal(t, 60+data.GapMinutes-30, data.TotalActiveMinutes)
}

func TestPreprocess_NoLunchWhenEventCoversWindow(t *testing.T) {
	data := preprocess(
		chat("general", "morning", at(9, 0)),
		meeting("Offsite", at(10, 30), at(13, 30)),
	)
	assert.False(t, data.LunchDetected)
	assert.Equal(t, 180, data.TotalActiveMinutes)
}

func TestPreprocess_NoLunchWhenActivityInWindow(t *testing.T) {
	data := preprocess(
		meeting("Standup", at(9, 0), at(9, 30)),
		chat("general", "quick question", at(12, 15)),
	)
	assert.False(t, data.LunchDetected)
}

func TestPreprocess_NoLunchWhenDayStartsLate(t *testing.T) {
	data := preprocess(chat("general", "hi", at(14, 0)))
	assert.False(t, data.LunchDetected)
}

func TestPreprocess_LunchUsesLocation(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)

	// 10:30 UTC is 11:30 in Oslo in March.
	acts := []activity.Activity{
		meeting("Standup", at(7, 0), at(7, 30)),
		chat("general", "hello", at(10, 30)),
	}
	hours := aggregate.Aggregate(acts, aggregate.DefaultWindow(), oslo)

	assert.True(t, Preprocess(hours, time.UTC).LunchDetected)
	assert.False(t, Preprocess(hours, oslo).LunchDetected)
}

func TestPreprocess_GapsBetweenMeetings(t *testing.T) {
	data := preprocess(
		meeting("A", at(9, 0), at(10, 0)),
		meeting("B", at(10, 30), at(11, 0)),
		meeting("C", at(13, 0), at(14, 0)),
	)
	assert.Equal(t, 150, data.CalendarMinutes)
	assert.Equal(t, 30+120, data.GapMinutes)
}

func TestPreprocess_OverlappingMeetingsDoNotOpenGaps(t *testing.T) {
	data := preprocess(
		meeting("Workshop", at(9, 0), at(12, 0)),
		meeting("Side call", at(10, 0), at(11, 0)),
		meeting("Review", at(13, 0), at(14, 0)),
	)
	assert.Equal(t, 300, data.CalendarMinutes)
	assert.Equal(t, 60, data.GapMinutes)
}

func TestPreprocess_SkipsSpanningCopies(t *testing.T) {
	data := preprocess(meeting("Workshop", at(10, 0), at(12, 30)))

	require.Len(t, data.Activities, 1)
	assert.Equal(t, "Workshop", data.Activities[0].Title)
	assert.Equal(t, 150, data.Activities[0].DurationMinutes)
	assert.Equal(t, at(12, 30), *data.Activities[0].EndTime)
}

func TestPreprocess_CapsPerSource(t *testing.T) {
	var acts []activity.Activity
	for i := 0; i < 8; i++ {
		acts = append(acts, chat("general", fmt.Sprintf("message %d", i), at(9, i)))
	}
	for i := 0; i < 12; i++ {
		acts = append(acts, activity.Activity{Source: activity.SourceCodeHost, RepoName: "daylog", Title: fmt.Sprintf("commit %d", i), Timestamp: at(15, i)})
	}

	data := preprocess(acts...)

	var chats, commits int
	for _, a := range data.Activities {
		switch a.Source {
		case activity.SourceChat:
			chats++
		case activity.SourceCodeHost:
			commits++
		}
	}
	assert.Equal(t, 5, chats)
	assert.Equal(t, 10, commits)
	assert.Equal(t, "#general: message 0", data.Activities[0].Title)
	assert.Equal(t, "#general: message 4", data.Activities[4].Title)
}

func TestPreprocess_SortedChronologically(t *testing.T) {
	data := preprocess(
		chat("general", "late", at(16, 0)),
		meeting("Early", at(8, 0), at(8, 30)),
		activity.Activity{Source: activity.SourceMail, Subject: "Invoice", Timestamp: at(12, 0)},
	)
	require.Len(t, data.Activities, 3)
	for i := 1; i < len(data.Activities); i++ {
		assert.False(t, data.Activities[i].Timestamp.Before(data.Activities[i-1].Timestamp))
	}
}

func TestFlatten_DedupesAcrossBuckets(t *testing.T) {
	msg := chat("general", "hello", at(9, 59))
	hours := aggregate.Hours{
		9:  {Primaries: []activity.Activity{}, Communications: []activity.Activity{msg}},
		10: {Primaries: []activity.Activity{}, Communications: []activity.Activity{msg}},
	}
	assert.Len(t, Flatten(hours), 1)
}

func TestReduce_Idempotent(t *testing.T) {
	var acts []activity.Activity
	for i := 0; i < 7; i++ {
		acts = append(acts, chat("general", fmt.Sprintf("m%d", i), at(9, i*5)))
		acts = append(acts, activity.Activity{Source: activity.SourceMail, Subject: fmt.Sprintf("Thread %d", i), Timestamp: at(14, i)})
	}
	acts = append(acts, meeting("Standup", at(8, 0), at(8, 15)), meeting("Planning", at(10, 0), at(11, 30)))

	p := NewPreprocessor(time.UTC)
	first := p.Run(aggregate.Aggregate(acts, aggregate.DefaultWindow(), time.UTC))
	second := p.Reduce(first.Activities)

	assert.Equal(t, first, second)
}

func TestPreprocess_Empty(t *testing.T) {
	data := Preprocess(aggregate.Aggregate(nil, aggregate.DefaultWindow(), time.UTC), time.UTC)
	assert.Empty(t, data.Activities)
	assert.False(t, data.LunchDetected)
	assert.Equal(t, 0, data.TotalActiveMinutes)
}
