package ai

import (
	"math"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
)

// Confidence is a coarse quality signal on a suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders confidences so the lowest trims first.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceHigh:
		return 2
	}
	return 1
}

// Status is the review state of a suggestion.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusSkipped  Status = "skipped"
	StatusEdited   Status = "edited"
)

// SourceActivity is one activity cited as justification for a suggestion.
type SourceActivity struct {
	Source           string `json:"source"`
	Title            string `json:"title"`
	Timestamp        string `json:"timestamp"`
	EstimatedMinutes int    `json:"estimatedMinutes,omitempty"`
}

// HighlightKey matches activity.HighlightKey for the cited activity, or
// returns the raw source/timestamp pair when the timestamp does not parse.
func (s SourceActivity) HighlightKey() string {
	if ts, err := time.Parse(time.RFC3339, s.Timestamp); err == nil {
		return activity.HighlightKey(activity.Source(s.Source), ts)
	}
	return s.Source + "-" + s.Timestamp
}

// Suggestion is a draft time-log line awaiting review.
type Suggestion struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"projectId"`
	ProjectName      string           `json:"projectName"`
	ActivityTypeID   string           `json:"activityTypeId"`
	ActivityTypeName string           `json:"activityTypeName"`
	Hours            float64          `json:"hours"`
	Description      string           `json:"description"`
	DescriptionEn    string           `json:"descriptionEn,omitempty"`
	InternalNote     string           `json:"internalNote,omitempty"`
	Reasoning        string           `json:"reasoning"`
	Confidence       Confidence       `json:"confidence"`
	SourceActivities []SourceActivity `json:"sourceActivities"`
	Status           Status           `json:"status"`
}

// Response is what a suggestion request returns.
type Response struct {
	Suggestions        []Suggestion `json:"suggestions"`
	TotalHours         float64      `json:"totalHours"`
	UnaccountedMinutes int          `json:"unaccountedMinutes"`
}

// NewResponse totals suggestions against the target workday.
func NewResponse(suggestions []Suggestion, targetHours float64) Response {
	total := 0.0
	for _, s := range suggestions {
		total += s.Hours
	}
	unaccounted := int(targetHours*60 - total*60)
	if unaccounted < 0 {
		unaccounted = 0
	}
	return Response{Suggestions: suggestions, TotalHours: total, UnaccountedMinutes: unaccounted}
}

// RoundToHalf rounds to the nearest half hour with a half-hour floor.
func RoundToHalf(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0.5
	}
	return math.Max(0.5, math.Round(h*2)/2)
}
