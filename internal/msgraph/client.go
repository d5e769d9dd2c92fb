package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource hands out a valid bearer token. *Auth implements it.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (string, error)
}

// Client is a Microsoft Graph API client for calendar and mail reads.
type Client struct {
	tokens     TokenSource
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

// NewClient creates a new Graph API client.
func NewClient(tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		tokens:  tokens,
		baseURL: graphBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		backoff: backoff,
	}
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

type graphEvent struct {
	Subject     string        `json:"subject"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
	IsCancelled bool          `json:"isCancelled"`
	IsAllDay    bool          `json:"isAllDay"`
	WebLink     string        `json:"webLink"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphMessage struct {
	Type             string    `json:"@odata.type"`
	Subject          string    `json:"subject"`
	BodyPreview      string    `json:"bodyPreview"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	WebLink          string    `json:"webLink"`
	From             struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

// FetchEvents returns calendar events starting in [start, end) as calendar
// activities. Cancelled and all-day events are skipped.
func (c *Client) FetchEvents(ctx context.Context, start, end time.Time) ([]activity.Activity, error) {
	params := url.Values{
		"startDateTime": {start.UTC().Format("2006-01-02T15:04:05")},
		"endDateTime":   {end.UTC().Format("2006-01-02T15:04:05")},
		"$select":       {"subject,start,end,isCancelled,isAllDay,webLink,location"},
		"$top":          {"100"},
		"$orderby":      {"start/dateTime"},
	}

	events, err := fetchAll[graphEvent](ctx, c, c.baseURL+"/me/calendarView?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var acts []activity.Activity
	for _, ge := range events {
		if ge.IsCancelled || ge.IsAllDay {
			continue
		}

		startTime, err := parseGraphDateTime(ge.Start)
		if err != nil {
			c.logger.Debug("skipping event with unparseable start time", "subject", ge.Subject, "error", err)
			continue
		}
		endTime, err := parseGraphDateTime(ge.End)
		if err != nil {
			c.logger.Debug("skipping event with unparseable end time", "subject", ge.Subject, "error", err)
			continue
		}
		if startTime.Before(start) || !startTime.Before(end) {
			continue
		}

		a := activity.Activity{
			Source:    activity.SourceCalendar,
			Type:      "event",
			Timestamp: startTime,
			Title:     ge.Subject,
			URL:       ge.WebLink,
			Detail:    ge.Location.DisplayName,
		}
		if endTime.After(startTime) {
			a.EndTime = &endTime
		}
		acts = append(acts, a)
	}

	c.logger.Debug("graph calendar events fetched", "count", len(acts))
	return acts, nil
}

// FetchMessages returns read inbox messages received in [start, end) as
// mail activities. Meeting invitations are skipped; the event itself comes
// from the calendar.
func (c *Client) FetchMessages(ctx context.Context, start, end time.Time) ([]activity.Activity, error) {
	filter := fmt.Sprintf("receivedDateTime ge %s and receivedDateTime lt %s and isRead eq true",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	params := url.Values{
		"$filter":  {filter},
		"$select":  {"subject,from,receivedDateTime,bodyPreview,webLink"},
		"$top":     {"50"},
		"$orderby": {"receivedDateTime"},
	}

	msgs, err := fetchAll[graphMessage](ctx, c, c.baseURL+"/me/messages?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var acts []activity.Activity
	for _, m := range msgs {
		if strings.HasSuffix(m.Type, "eventMessage") {
			continue
		}
		subject := m.Subject
		if subject == "" {
			subject = "(No subject)"
		}
		acts = append(acts, activity.Activity{
			Source:    activity.SourceMail,
			Type:      "email",
			Timestamp: m.ReceivedDateTime,
			Subject:   subject,
			From:      formatSender(m.From.EmailAddress.Name, m.From.EmailAddress.Address),
			Text:      m.BodyPreview,
			URL:       m.WebLink,
		})
	}

	c.logger.Debug("graph messages fetched", "count", len(acts))
	return acts, nil
}

func formatSender(name, address string) string {
	switch {
	case name == "":
		return address
	case address == "":
		return name
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// fetchAll follows @odata.nextLink until the last page.
func fetchAll[T any](ctx context.Context, c *Client, requestURL string) ([]T, error) {
	token, err := c.tokens.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var all []T
	for requestURL != "" {
		body, err := c.get(ctx, token, requestURL)
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("parsing graph response: %w", err)
		}
		all = append(all, p.Value...)
		requestURL = p.NextLink
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, token, requestURL string) ([]byte, error) {
	var resp *http.Response
	maxRetries := 3
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating graph request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Prefer", "outlook.timezone=\"UTC\"")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return nil, fmt.Errorf("graph API request failed: %w", err)
			}
			time.Sleep(c.backoff(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return nil, fmt.Errorf("graph API returned status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.logger.Debug("graph API retrying", "status", resp.StatusCode, "attempt", attempt+1)
			time.Sleep(c.backoff(attempt))
			continue
		}
		break
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, truncateStr(string(body), 200))
	}
	return body, nil
}

func parseGraphDateTime(gdt graphDateTime) (time.Time, error) {
	// With Prefer: outlook.timezone="UTC" times come back in UTC as
	// "2006-01-02T15:04:05.0000000".
	loc := time.UTC
	if gdt.TimeZone != "" && gdt.TimeZone != "UTC" {
		l, err := time.LoadLocation(gdt.TimeZone)
		if err == nil {
			loc = l
		}
	}

	// Fractional seconds are optional.
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		t, err := time.ParseInLocation(layout, gdt.DateTime, loc)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse datetime %q", gdt.DateTime)
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Fetcher exposes one Graph resource as an activity source.
type Fetcher struct {
	client *Client
	src    activity.Source
}

// Calendar returns a fetcher for the signed-in user's calendar.
func (c *Client) Calendar() *Fetcher { return &Fetcher{client: c, src: activity.SourceCalendar} }

// Mail returns a fetcher for the signed-in user's inbox.
func (c *Client) Mail() *Fetcher { return &Fetcher{client: c, src: activity.SourceMail} }

func (f *Fetcher) Source() activity.Source { return f.src }

func (f *Fetcher) Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error) {
	end := day.AddDate(0, 0, 1)
	if f.src == activity.SourceMail {
		return f.client.FetchMessages(ctx, day, end)
	}
	return f.client.FetchEvents(ctx, day, end)
}
