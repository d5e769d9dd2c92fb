package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
)

const (
	defaultGitHubURL = "https://api.github.com"
	maxEventPages    = 3
)

// ResolveGitHubToken tries to resolve a GitHub token from multiple sources:
// 1. `gh auth token` CLI command
// 2. GITHUB_TOKEN environment variable
// 3. Config file value passed in
func ResolveGitHubToken(configToken string) (string, error) {
	out, err := exec.Command("gh", "auth", "token").Output()
	if err == nil {
		token := strings.TrimSpace(string(out))
		if token != "" {
			return token, nil
		}
	}

	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		return v, nil
	}

	if configToken != "" {
		return configToken, nil
	}

	return "", fmt.Errorf("no GitHub token found: install gh CLI and run 'gh auth login', set GITHUB_TOKEN env var, or add token to [github] config")
}

// GitHub turns the user's public event stream and authored commits into
// code-host activities.
type GitHub struct {
	token      string
	username   string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewGitHub(token, username string, logger *slog.Logger) *GitHub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GitHub{
		token:    token,
		username: username,
		baseURL:  defaultGitHubURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		backoff: backoff,
	}
}

func (c *GitHub) Source() activity.Source { return activity.SourceCodeHost }

func (c *GitHub) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	var resp *http.Response
	maxRetries := 3
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				c.logger.Error("GitHub API transport error", "method", method, "path", path, "error", err)
				return nil, fmt.Errorf("sending request: %w", err)
			}
			time.Sleep(c.backoff(attempt))
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				c.logger.Error("GitHub API failed after retries", "method", method, "path", path, "status", resp.StatusCode)
				return nil, fmt.Errorf("GitHub API returned status %d after %d retries", resp.StatusCode, maxRetries)
			}
			time.Sleep(c.backoff(attempt))
			continue
		}
		break
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("GitHub API error", "method", method, "path", path, "status", resp.StatusCode, "response", truncate(string(body), 200))
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// user returns the configured login or asks the API for it.
func (c *GitHub) user(ctx context.Context) (string, error) {
	if c.username != "" {
		return c.username, nil
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/user")
	if err != nil {
		return "", fmt.Errorf("getting GitHub user: %w", err)
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(data, &user); err != nil {
		return "", fmt.Errorf("parsing user response: %w", err)
	}

	c.username = user.Login
	return c.username, nil
}

type ghEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Repo      struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload struct {
		Action  string `json:"action"`
		Commits []struct {
			SHA     string `json:"sha"`
			Message string `json:"message"`
		} `json:"commits"`
		PullRequest *struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
			Merged  bool   `json:"merged"`
		} `json:"pull_request"`
		Issue *struct {
			Title   string `json:"title"`
			HTMLURL string `json:"html_url"`
		} `json:"issue"`
		Comment *struct {
			HTMLURL string `json:"html_url"`
		} `json:"comment"`
	} `json:"payload"`
}

// Fetch merges the event stream with a commit search for the day. Commits
// reported by both are kept once.
func (c *GitHub) Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error) {
	if c.token == "" {
		return nil, fmt.Errorf("GitHub token not configured")
	}
	login, err := c.user(ctx)
	if err != nil {
		return nil, err
	}

	dayEnd := day.AddDate(0, 0, 1)
	var acts []activity.Activity
	seenCommit := make(map[string]bool)

	for page := 1; page <= maxEventPages; page++ {
		path := fmt.Sprintf("/users/%s/events?per_page=100&page=%d", url.PathEscape(login), page)
		data, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return nil, fmt.Errorf("fetching events: %w", err)
		}
		var events []ghEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parsing events: %w", err)
		}

		reachedOlder := false
		for _, e := range events {
			if e.CreatedAt.Before(day) {
				reachedOlder = true
				continue
			}
			if !e.CreatedAt.Before(dayEnd) {
				continue
			}
			for _, a := range normalizeEvent(e) {
				if a.Type == "commit" {
					seenCommit[a.URL] = true
				}
				acts = append(acts, a)
			}
		}
		if reachedOlder || len(events) < 100 {
			break
		}
	}

	commits, err := c.searchCommits(ctx, login, day)
	if err != nil {
		c.logger.Warn("commit search failed", "error", err)
	}
	for _, a := range commits {
		if seenCommit[a.URL] || a.Timestamp.Before(day) || !a.Timestamp.Before(dayEnd) {
			continue
		}
		seenCommit[a.URL] = true
		acts = append(acts, a)
	}

	c.logger.Debug("GitHub activities fetched", "user", login, "count", len(acts))
	return acts, nil
}

func (c *GitHub) searchCommits(ctx context.Context, login string, day time.Time) ([]activity.Activity, error) {
	q := fmt.Sprintf("author:%s committer-date:%s", login, day.Format("2006-01-02"))
	path := "/search/commits?per_page=100&sort=committer-date&q=" + url.QueryEscape(q)
	data, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []struct {
			SHA     string `json:"sha"`
			HTMLURL string `json:"html_url"`
			Commit  struct {
				Message   string `json:"message"`
				Committer struct {
					Date time.Time `json:"date"`
				} `json:"committer"`
			} `json:"commit"`
			Repository struct {
				FullName string `json:"full_name"`
			} `json:"repository"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing commit search: %w", err)
	}

	acts := make([]activity.Activity, 0, len(result.Items))
	for _, it := range result.Items {
		acts = append(acts, activity.Activity{
			Source:    activity.SourceCodeHost,
			Type:      "commit",
			Timestamp: it.Commit.Committer.Date,
			Title:     firstLine(it.Commit.Message),
			RepoName:  shortRepoName(it.Repository.FullName),
			URL:       commitURL(it.Repository.FullName, it.SHA),
		})
	}
	return acts, nil
}

func normalizeEvent(e ghEvent) []activity.Activity {
	base := activity.Activity{
		Source:    activity.SourceCodeHost,
		Timestamp: e.CreatedAt,
		RepoName:  shortRepoName(e.Repo.Name),
	}
	with := func(typ, title, link string) activity.Activity {
		a := base
		a.Type, a.Title, a.URL = typ, title, link
		return a
	}

	p := e.Payload
	switch e.Type {
	case "PushEvent":
		out := make([]activity.Activity, 0, len(p.Commits))
		for _, commit := range p.Commits {
			out = append(out, with("commit", firstLine(commit.Message), commitURL(e.Repo.Name, commit.SHA)))
		}
		return out
	case "PullRequestEvent":
		if p.PullRequest == nil {
			return nil
		}
		switch {
		case p.Action == "opened":
			return []activity.Activity{with("pr_opened", "Opened PR: "+p.PullRequest.Title, p.PullRequest.HTMLURL)}
		case p.Action == "closed" && p.PullRequest.Merged:
			return []activity.Activity{with("pr_merged", "Merged PR: "+p.PullRequest.Title, p.PullRequest.HTMLURL)}
		}
	case "PullRequestReviewEvent":
		if p.PullRequest != nil {
			return []activity.Activity{with("pr_reviewed", "Reviewed PR: "+p.PullRequest.Title, p.PullRequest.HTMLURL)}
		}
	case "PullRequestReviewCommentEvent":
		if p.PullRequest != nil {
			link := p.PullRequest.HTMLURL
			if p.Comment != nil && p.Comment.HTMLURL != "" {
				link = p.Comment.HTMLURL
			}
			return []activity.Activity{with("review_comment", "Review comment on: "+p.PullRequest.Title, link)}
		}
	case "IssuesEvent":
		if p.Issue != nil && p.Action == "opened" {
			return []activity.Activity{with("issue_opened", "Opened issue: "+p.Issue.Title, p.Issue.HTMLURL)}
		}
	case "IssueCommentEvent":
		if p.Issue != nil {
			link := p.Issue.HTMLURL
			if p.Comment != nil && p.Comment.HTMLURL != "" {
				link = p.Comment.HTMLURL
			}
			return []activity.Activity{with("issue_commented", "Commented on: "+p.Issue.Title, link)}
		}
	}
	return nil
}

func shortRepoName(fullName string) string {
	if i := strings.LastIndexByte(fullName, '/'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

func firstLine(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return msg[:idx]
	}
	return msg
}

func commitURL(fullName, sha string) string {
	return "https://github.com/" + fullName + "/commit/" + sha
}
