package ai

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/aggregate"
)

const (
	lunchStartMinute = 11 * 60
	lunchEndMinute   = 13 * 60
	lunchDeduction   = 30
	defaultSourceCap = 10
)

// FlatActivity is one activity in the chronological list fed to generators.
type FlatActivity struct {
	Source          activity.Source `json:"source"`
	Type            string          `json:"type,omitempty"`
	Title           string          `json:"title"`
	Timestamp       time.Time       `json:"timestamp"`
	EndTime         *time.Time      `json:"endTime,omitempty"`
	DurationMinutes int             `json:"durationMinutes,omitempty"`
}

func (f FlatActivity) key() string {
	return string(f.Source) + "-" + strconv.FormatInt(f.Timestamp.UnixNano(), 10) + "-" + f.Title
}

// PreprocessedData is the day's flattened timeline plus day-shape signals.
type PreprocessedData struct {
	Activities         []FlatActivity `json:"activities"`
	CalendarMinutes    int            `json:"calendarMinutes"`
	GapMinutes         int            `json:"gapMinutes"`
	LunchDetected      bool           `json:"lunchDetected"`
	TotalActiveMinutes int            `json:"totalActiveMinutes"`
}

// Preprocessor flattens aggregated hours into a bounded timeline.
type Preprocessor struct {
	// Location is used for the lunch window. Defaults to UTC.
	Location *time.Location
	// SourceCaps bounds how many activities of a source survive; sources
	// missing from the map get DefaultCap.
	SourceCaps map[activity.Source]int
	DefaultCap int
}

// DefaultSourceCaps keeps the noisy sources short.
func DefaultSourceCaps() map[activity.Source]int {
	return map[activity.Source]int{
		activity.SourceChat: 5,
		activity.SourceMail: 5,
	}
}

// NewPreprocessor returns a preprocessor with the default caps.
func NewPreprocessor(loc *time.Location) Preprocessor {
	return Preprocessor{Location: loc, SourceCaps: DefaultSourceCaps(), DefaultCap: defaultSourceCap}
}

// Preprocess runs the default preprocessor over hours.
func Preprocess(hours aggregate.Hours, loc *time.Location) PreprocessedData {
	return NewPreprocessor(loc).Run(hours)
}

// Run flattens hours and reduces the result.
func (p Preprocessor) Run(hours aggregate.Hours) PreprocessedData {
	return p.Reduce(Flatten(hours))
}

// Flatten walks buckets in hour order, skips spanning continuations, renders
// titles and drops events already seen in an earlier bucket.
func Flatten(hours aggregate.Hours) []FlatActivity {
	var out []FlatActivity
	seen := make(map[string]bool)

	for _, h := range hours.SortedHours() {
		bucket := hours[h]
		all := make([]activity.Activity, 0, len(bucket.Primaries)+len(bucket.Communications))
		all = append(all, bucket.Primaries...)
		all = append(all, bucket.Communications...)

		for _, a := range all {
			if a.IsSpanning {
				continue
			}
			flat := FlatActivity{
				Source:    a.Source,
				Type:      a.Type,
				Title:     a.DisplayTitle(),
				Timestamp: a.Timestamp,
			}
			if seen[flat.key()] {
				continue
			}
			seen[flat.key()] = true
			if a.HasInterval() {
				end := *a.EndTime
				flat.EndTime = &end
				flat.DurationMinutes = int(math.Round(end.Sub(a.Timestamp).Minutes()))
			}
			out = append(out, flat)
		}
	}
	return out
}

// Reduce deduplicates, sorts and caps a flat list, then computes the
// calendar-shape signals. Reduce is idempotent on its own output.
func (p Preprocessor) Reduce(flat []FlatActivity) PreprocessedData {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[string]bool, len(flat))
	unique := make([]FlatActivity, 0, len(flat))
	for _, f := range flat {
		if seen[f.key()] {
			continue
		}
		seen[f.key()] = true
		unique = append(unique, f)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Timestamp.Before(unique[j].Timestamp)
	})

	counts := make(map[activity.Source]int)
	capped := make([]FlatActivity, 0, len(unique))
	for _, f := range unique {
		if counts[f.Source] >= p.capFor(f.Source) {
			continue
		}
		counts[f.Source]++
		capped = append(capped, f)
	}

	data := PreprocessedData{Activities: capped}

	var calendar []FlatActivity
	for _, f := range capped {
		if f.Source == activity.SourceCalendar && f.EndTime != nil && f.DurationMinutes > 0 {
			calendar = append(calendar, f)
			data.CalendarMinutes += f.DurationMinutes
		}
	}

	data.GapMinutes = gapMinutes(calendar)
	data.LunchDetected = detectLunch(capped, calendar, loc)

	active := data.CalendarMinutes + data.GapMinutes
	if data.LunchDetected {
		active -= lunchDeduction
	}
	if active < 0 {
		active = 0
	}
	data.TotalActiveMinutes = active
	return data
}

func (p Preprocessor) capFor(s activity.Source) int {
	if c, ok := p.SourceCaps[s]; ok {
		return c
	}
	if p.DefaultCap > 0 {
		return p.DefaultCap
	}
	return defaultSourceCap
}

// gapMinutes sums idle time between consecutive calendar events. The gap is
// measured from the latest end seen so far, so an event nested inside an
// earlier one does not open a phantom gap.
func gapMinutes(calendar []FlatActivity) int {
	var total float64
	var latestEnd time.Time
	for i, e := range calendar {
		if i > 0 {
			if gap := e.Timestamp.Sub(latestEnd).Minutes(); gap > 0 {
				total += gap
			}
		}
		if e.EndTime.After(latestEnd) {
			latestEnd = *e.EndTime
		}
	}
	return int(math.Round(total))
}

func detectLunch(all, calendar []FlatActivity, loc *time.Location) bool {
	if len(all) == 0 {
		return false
	}
	if minuteOfDay(all[0].Timestamp, loc) >= lunchStartMinute {
		return false
	}
	for _, e := range calendar {
		start := minuteOfDay(e.Timestamp, loc)
		if start <= lunchStartMinute && start+e.DurationMinutes >= lunchEndMinute {
			return false
		}
	}
	for _, a := range all {
		m := minuteOfDay(a.Timestamp, loc)
		if m >= lunchStartMinute && m < lunchEndMinute {
			return false
		}
	}
	return true
}

func minuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
