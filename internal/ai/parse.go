package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	fallbackProjectName = "Unknown project"
	fallbackTypeName    = "Unknown type"
)

var arraySpan = regexp.MustCompile(`(?s)\[.*\]`)

// ParseError means no suggestion array could be recovered from model output.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no suggestion array found in model output (raw: %s)", truncateStr(e.Raw, 200))
}

// ParseSuggestions recovers suggestions from model output. It tries the whole
// text, then the outermost [...] span, then salvages a truncated array by
// closing it after the last complete object. Field values are coerced to
// their expected types; only a missing array is an error.
func ParseSuggestions(text string) ([]Suggestion, error) {
	items, ok := recoverArray(text)
	if !ok {
		return nil, &ParseError{Raw: text}
	}

	suggestions := make([]Suggestion, 0, len(items))
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		suggestions = append(suggestions, normalizeItem(obj))
	}
	return suggestions, nil
}

func recoverArray(text string) ([]any, bool) {
	if items, ok := decodeArray(text); ok {
		return items, true
	}
	if span := arraySpan.FindString(text); span != "" {
		if items, ok := decodeArray(span); ok {
			return items, true
		}
	}
	return salvageTruncated(text)
}

// salvageTruncated closes the array after successively earlier '}' until the
// prefix parses.
func salvageTruncated(text string) ([]any, bool) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return nil, false
	}
	body := text[start:]
	for end := strings.LastIndexByte(body, '}'); end > 0; end = strings.LastIndexByte(body[:end], '}') {
		if items, ok := decodeArray(body[:end+1] + "]"); ok && len(items) > 0 {
			return items, true
		}
	}
	return nil, false
}

// decodeArray accepts a JSON array, or an object wrapping one under
// "suggestions".
func decodeArray(s string) ([]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(s))))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if inner, ok := t["suggestions"].([]any); ok {
			return inner, true
		}
	}
	return nil, false
}

func normalizeItem(obj map[string]any) Suggestion {
	description := stringField(obj["description"])
	descriptionEn := stringField(obj["descriptionEn"])
	if descriptionEn == "" {
		descriptionEn = description
	}

	s := Suggestion{
		ID:               uuid.NewString(),
		ProjectID:        stringField(obj["projectId"]),
		ProjectName:      orFallback(stringField(obj["projectName"]), fallbackProjectName),
		ActivityTypeID:   stringField(obj["activityTypeId"]),
		ActivityTypeName: orFallback(stringField(obj["activityTypeName"]), fallbackTypeName),
		Hours:            RoundToHalf(hoursField(obj["hours"])),
		Description:      description,
		DescriptionEn:    descriptionEn,
		InternalNote:     stringField(obj["internalNote"]),
		Reasoning:        stringField(obj["reasoning"]),
		Confidence:       confidenceField(obj["confidence"]),
		SourceActivities: []SourceActivity{},
		Status:           StatusPending,
	}

	if list, ok := obj["sourceActivities"].([]any); ok {
		for _, raw := range list {
			sa, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			s.SourceActivities = append(s.SourceActivities, SourceActivity{
				Source:           stringField(sa["source"]),
				Title:            stringField(sa["title"]),
				Timestamp:        stringField(sa["timestamp"]),
				EstimatedMinutes: minutesField(sa["estimatedMinutes"]),
			})
		}
	}
	return s
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func numberField(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func hoursField(v any) float64 {
	if f, ok := numberField(v); ok && f != 0 {
		return f
	}
	return 0.5
}

func minutesField(v any) int {
	f, ok := numberField(v)
	if !ok || f <= 0 {
		return 0
	}
	return int(math.Round(f))
}

func confidenceField(v any) Confidence {
	switch c := Confidence(stringField(v)); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ConfidenceMedium
}

func orFallback(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
