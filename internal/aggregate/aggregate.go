// Package aggregate buckets a day's activities into hours of a work window
// and derives the day summary counts.
package aggregate

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
)

const (
	DefaultStartHour = 6
	DefaultEndHour   = 23
)

// Window is the half-open range of local hours [StartHour, EndHour).
type Window struct {
	StartHour int `json:"startHour"`
	EndHour   int `json:"endHour"`
}

// DefaultWindow covers 06:00 to 23:00.
func DefaultWindow() Window {
	return Window{StartHour: DefaultStartHour, EndHour: DefaultEndHour}
}

func (w Window) valid() bool {
	return w.StartHour >= 0 && w.EndHour <= 24 && w.StartHour < w.EndHour
}

// HourBucket holds everything touching one hour. Primaries are calendar
// activities; communications are everything else, sorted by timestamp.
type HourBucket struct {
	Primaries      []activity.Activity `json:"primaries"`
	Communications []activity.Activity `json:"communications"`
}

// Hours maps local hour-of-day to its bucket. Every hour in the window has
// an entry, possibly empty.
type Hours map[int]HourBucket

// SortedHours returns the bucket keys in ascending order.
func (h Hours) SortedHours() []int {
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Aggregate buckets activities by local hour in loc. Activities with a zero
// timestamp or a start outside the window are dropped. Interval activities
// are copied into every hour they cover, up to EndHour-1; copies after the
// first are flagged IsSpanning.
func Aggregate(activities []activity.Activity, w Window, loc *time.Location) Hours {
	if !w.valid() {
		w = DefaultWindow()
	}
	if loc == nil {
		loc = time.UTC
	}

	raw := make(map[int][]activity.Activity, w.EndHour-w.StartHour)
	for h := w.StartHour; h < w.EndHour; h++ {
		raw[h] = nil
	}

	for _, a := range activities {
		if a.Timestamp.IsZero() {
			continue
		}
		start := a.Timestamp.In(loc)
		hour := start.Hour()
		if hour < w.StartHour || hour >= w.EndHour {
			continue
		}

		if !a.HasInterval() {
			raw[hour] = append(raw[hour], a)
			continue
		}

		endHour := spanEndHour(start, a.EndTime.In(loc), w)
		for h := hour; h <= endHour; h++ {
			cp := a
			cp.IsSpanning = h != hour
			cp.SpanStart = h == hour
			raw[h] = append(raw[h], cp)
		}
	}

	hours := make(Hours, len(raw))
	for h, acts := range raw {
		hours[h] = mergeHour(acts)
	}
	return hours
}

// spanEndHour returns the last bucket an interval touches, capped to the
// window. An interval ending on a later local day runs to the end of the
// window.
func spanEndHour(start, end time.Time, w Window) int {
	last := w.EndHour - 1
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if ey != sy || em != sm || ed != sd {
		return last
	}
	if end.Hour() < last {
		return end.Hour()
	}
	return last
}

func mergeHour(acts []activity.Activity) HourBucket {
	bucket := HourBucket{
		Primaries:      []activity.Activity{},
		Communications: []activity.Activity{},
	}

	seenThreads := make(map[string]bool)
	for _, a := range acts {
		switch a.Source {
		case activity.SourceCalendar:
			bucket.Primaries = append(bucket.Primaries, a)
		case activity.SourceMail:
			if IsCalendarNotification(a) {
				continue
			}
			key := NormalizeSubject(a.Subject)
			if seenThreads[key] {
				continue
			}
			seenThreads[key] = true
			bucket.Communications = append(bucket.Communications, a)
		default:
			bucket.Communications = append(bucket.Communications, a)
		}
	}

	sort.SliceStable(bucket.Communications, func(i, j int) bool {
		return bucket.Communications[i].Timestamp.Before(bucket.Communications[j].Timestamp)
	})
	return bucket
}

// Reply and forward prefixes across English, Scandinavian, German, Dutch
// and Finnish mail clients.
var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|sv|vs|fwd|fw|aw|wg|antw|tr)\s*:\s*`)

// NormalizeSubject strips any chain of reply/forward prefixes, trims and
// case-folds the subject so messages in one thread share a key.
func NormalizeSubject(subject string) string {
	s := subject
	for {
		stripped := replyPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// IsCalendarNotification reports whether a mail activity is an invitation or
// update sent by a calendar system; the event already shows as a primary.
func IsCalendarNotification(a activity.Activity) bool {
	from := strings.ToLower(a.From)
	return strings.Contains(from, "calendar-notification@google.com") ||
		strings.Contains(from, "google calendar") ||
		strings.Contains(from, "calendar.google.com")
}
