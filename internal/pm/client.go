package pm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://app.moment.team"

// ClientConfig configures the HTTP time-tracking client.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	Company  string
	UserID   string
	CacheTTL time.Duration
	// PerProjectActivityTypes asks the backend for the types of each project
	// instead of the company-wide list.
	PerProjectActivityTypes bool
}

// Client talks to a Moment/Milient-style REST API:
// /api/1.0/companies/{company}/{entity}[/include/{fields}].
type Client struct {
	cfg        ClientConfig
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	logger     *slog.Logger
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:      NewCache(cfg.CacheTTL),
		logger:     logger,
		maxRetries: 3,
		backoff:    backoff,
	}
}

func (c *Client) Name() string { return "milient" }

// Cache exposes the reference-data cache.
func (c *Client) Cache() *Cache { return c.cache }

type requestOptions struct {
	includes string
	params   url.Values
	body     any
}

func (c *Client) doRequest(ctx context.Context, method, entity string, opts requestOptions) ([]byte, error) {
	if c.cfg.APIKey == "" || c.cfg.Company == "" {
		return nil, fmt.Errorf("time tracking not configured: set api_key and company in [timetracking] or DAYLOG_TT_API_KEY/DAYLOG_TT_COMPANY")
	}

	var payload []byte
	if opts.body != nil {
		data, err := json.Marshal(opts.body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	path := fmt.Sprintf("/api/1.0/companies/%s/%s", url.PathEscape(c.cfg.Company), entity)
	if opts.includes != "" {
		path += "/include/" + opts.includes
	}
	if len(opts.params) > 0 {
		path += "?" + opts.params.Encode()
	}

	credentials := base64.StdEncoding.EncodeToString([]byte("apikey:" + c.cfg.APIKey))

	c.logger.Debug("time tracking API request", "method", method, "path", path)

	var resp *http.Response
	requestStart := time.Now()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Basic "+credentials)
		req.Header.Set("Content-Type", "application/json")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == c.maxRetries || ctx.Err() != nil {
				c.logger.Error("API request transport error", "method", method, "path", path, "error", err, "elapsed", time.Since(requestStart))
				return nil, fmt.Errorf("sending request: %w", err)
			}
			c.logger.Debug("API request transport error, retrying", "method", method, "path", path, "attempt", attempt+1, "error", err)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == c.maxRetries {
				c.logger.Error("API request failed after retries", "method", method, "path", path, "status", resp.StatusCode, "attempts", c.maxRetries+1, "elapsed", time.Since(requestStart))
				return nil, fmt.Errorf("API returned status %d after %d retries", resp.StatusCode, c.maxRetries)
			}
			c.logger.Debug("API request retryable error", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("time tracking API response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody), "elapsed", time.Since(requestStart))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("API request failed", "method", method, "path", path, "status", resp.StatusCode, "response", truncate(string(respBody), 200))
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	return respBody, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// decodeList accepts either a bare array or a page envelope {"content": [...]}.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var page struct {
		Content []T `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Content, nil
}

// flexID decodes ids sent either as numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexID(n.String())
	return nil
}

type apiProject struct {
	ID            flexID `json:"id"`
	Name          string `json:"name"`
	ProjectNumber string `json:"projectNumber"`
}

type apiActivity struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type apiAllocation struct {
	ProjectID      flexID  `json:"projectId"`
	ProjectName    string  `json:"projectName"`
	Hours          float64 `json:"hours"`
	AllocatedHours float64 `json:"allocatedHours"`
}

type apiTimeRecord struct {
	ID           flexID  `json:"id"`
	ProjectID    flexID  `json:"projectId"`
	ProjectName  string  `json:"projectName"`
	ActivityID   flexID  `json:"activityId"`
	ActivityName string  `json:"activityName"`
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	Description  string  `json:"description"`
}

func (c *Client) cacheKey(parts ...string) string {
	return c.cfg.Company + ":" + c.cfg.UserID + ":" + strings.Join(parts, ":")
}

func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	return cached(c.cache, c.cacheKey("projects"), func() ([]Project, error) {
		data, err := c.doRequest(ctx, http.MethodGet, "projects", requestOptions{includes: "base"})
		if err != nil {
			return nil, fmt.Errorf("getting projects: %w", err)
		}
		raw, err := decodeList[apiProject](data)
		if err != nil {
			return nil, fmt.Errorf("parsing projects response: %w", err)
		}
		projects := make([]Project, 0, len(raw))
		for _, p := range raw {
			projects = append(projects, Project{ID: string(p.ID), Name: p.Name, Code: p.ProjectNumber})
		}
		return projects, nil
	})
}

func (c *Client) GetActivityTypes(ctx context.Context, projectID string) ([]ActivityType, error) {
	key := projectID
	if key == "" {
		key = "all"
	}
	return cached(c.cache, c.cacheKey("activities", key), func() ([]ActivityType, error) {
		entity := "activities"
		if projectID != "" {
			entity = "projects/" + url.PathEscape(projectID) + "/activities"
		}
		data, err := c.doRequest(ctx, http.MethodGet, entity, requestOptions{includes: "base"})
		if err != nil {
			return nil, fmt.Errorf("getting activity types: %w", err)
		}
		raw, err := decodeList[apiActivity](data)
		if err != nil {
			return nil, fmt.Errorf("parsing activity types response: %w", err)
		}
		types := make([]ActivityType, 0, len(raw))
		for _, a := range raw {
			types = append(types, ActivityType{ID: string(a.ID), Name: a.Name, ProjectID: projectID})
		}
		return types, nil
	})
}

func (c *Client) dayParams(date string) url.Values {
	return url.Values{
		"userId":   {c.cfg.UserID},
		"fromDate": {date},
		"toDate":   {date},
	}
}

func (c *Client) GetAllocations(ctx context.Context, date string) ([]Allocation, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "allocations", requestOptions{
		includes: "base+project.name",
		params:   c.dayParams(date),
	})
	if err != nil {
		return nil, fmt.Errorf("getting allocations: %w", err)
	}
	raw, err := decodeList[apiAllocation](data)
	if err != nil {
		return nil, fmt.Errorf("parsing allocations response: %w", err)
	}
	allocations := make([]Allocation, 0, len(raw))
	for _, a := range raw {
		hours := a.Hours
		if hours == 0 {
			hours = a.AllocatedHours
		}
		allocations = append(allocations, Allocation{ProjectID: string(a.ProjectID), ProjectName: a.ProjectName, AllocatedHours: hours})
	}
	return allocations, nil
}

func (c *Client) GetExistingRecords(ctx context.Context, date string) ([]TimeRecord, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "timeRecords", requestOptions{
		includes: "base+project.name+activity.name",
		params:   c.dayParams(date),
	})
	if err != nil {
		return nil, fmt.Errorf("getting time records: %w", err)
	}
	raw, err := decodeList[apiTimeRecord](data)
	if err != nil {
		return nil, fmt.Errorf("parsing time records response: %w", err)
	}
	records := make([]TimeRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, TimeRecord{
			ID:               string(r.ID),
			ProjectID:        string(r.ProjectID),
			ProjectName:      r.ProjectName,
			ActivityTypeID:   string(r.ActivityID),
			ActivityTypeName: r.ActivityName,
			Date:             r.Date,
			Hours:            r.Hours,
			Description:      r.Description,
		})
	}
	return records, nil
}

func (c *Client) GetTimeLockDate(ctx context.Context) (string, error) {
	if c.cfg.UserID == "" {
		return "", fmt.Errorf("getting time lock date: user_id is not configured")
	}
	data, err := c.doRequest(ctx, http.MethodGet, "userAccounts/"+url.PathEscape(c.cfg.UserID), requestOptions{includes: "base+timeLockDate"})
	if err != nil {
		return "", fmt.Errorf("getting time lock date: %w", err)
	}
	var user struct {
		TimeLockDate *string `json:"timeLockDate"`
	}
	if err := json.Unmarshal(data, &user); err != nil {
		return "", fmt.Errorf("parsing user account response: %w", err)
	}
	if user.TimeLockDate == nil {
		return "", nil
	}
	lock := *user.TimeLockDate
	if len(lock) > len(DateLayout) {
		lock = lock[:len(DateLayout)]
	}
	return lock, nil
}

func (c *Client) SubmitTimeLog(ctx context.Context, entry Entry) SubmitResult {
	body := map[string]any{
		"projectId":   numericOrString(entry.ProjectID),
		"activityId":  numericOrString(entry.ActivityTypeID),
		"date":        entry.Date,
		"hours":       entry.Hours,
		"description": entry.Description,
		"userId":      numericOrString(c.cfg.UserID),
	}
	if entry.InternalNote != "" {
		body["internalNote"] = entry.InternalNote
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "timeRecords", requestOptions{body: body}); err != nil {
		return SubmitResult{EntryID: entry.ID, Success: false, Error: err.Error()}
	}
	return SubmitResult{EntryID: entry.ID, Success: true}
}

func numericOrString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
