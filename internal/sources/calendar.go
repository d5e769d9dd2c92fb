package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/christopherklint97/daylog/internal/activity"
)

// Calendar reads an iCalendar feed from a URL or file path.
type Calendar struct {
	Location   string
	HTTPClient *http.Client
	logger     *slog.Logger
}

func NewCalendar(location string, logger *slog.Logger) *Calendar {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Calendar{
		Location:   location,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (c *Calendar) Source() activity.Source { return activity.SourceCalendar }

func (c *Calendar) open(ctx context.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(c.Location, "http://") || strings.HasPrefix(c.Location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Location, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching calendar: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("calendar fetch returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
	f, err := os.Open(c.Location)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	return f, nil
}

// Fetch returns events starting on day. All-day events carry no working
// time and are skipped.
func (c *Calendar) Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error) {
	r, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	loc := day.Location()
	dayEnd := day.AddDate(0, 0, 1)

	dec := ical.NewDecoder(r)
	var acts []activity.Activity
	skipped := 0

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := ical.Event{Component: component}

			if p := event.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
				continue
			}
			start, err := event.DateTimeStart(loc)
			if err != nil {
				skipped++
				continue
			}
			end, err := event.DateTimeEnd(loc)
			if err != nil {
				skipped++
				continue
			}
			if start.Before(day) || !start.Before(dayEnd) {
				continue
			}
			if status, _ := event.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
				continue
			}

			summary, _ := event.Props.Text(ical.PropSummary)
			a := activity.Activity{
				Source:    activity.SourceCalendar,
				Type:      "event",
				Timestamp: start,
				Title:     summary,
			}
			if end.After(start) {
				a.EndTime = &end
			}
			if u, _ := event.Props.Text(ical.PropURL); u != "" {
				a.URL = u
			}
			if where, _ := event.Props.Text(ical.PropLocation); where != "" {
				a.Detail = where
			}
			acts = append(acts, a)
		}
	}

	if skipped > 0 {
		c.logger.Debug("skipped malformed calendar events", "count", skipped)
	}
	return acts, nil
}
