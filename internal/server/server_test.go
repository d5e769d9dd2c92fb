package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/service"
	"github.com/christopherklint97/daylog/internal/sources"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type silentGenerator struct{}

func (silentGenerator) Name() string { return "silent" }

func (silentGenerator) GenerateSuggestions(ctx context.Context, prompt, schemaHint string) (string, error) {
	return "   ", nil
}

func ptr(t time.Time) *time.Time { return &t }

func newTestServer(t *testing.T, token string, gen ai.Generator) (*httptest.Server, *pm.Mock, *service.Service) {
	t.Helper()
	at := func(h int) time.Time { return time.Date(2025, 3, 10, h, 0, 0, 0, time.UTC) }
	mock := pm.NewMock(nil)
	svc := service.New(service.Config{Location: time.UTC}, service.Options{
		Fetchers: []sources.Fetcher{
			&sources.Static{Src: activity.SourceCalendar, Items: []activity.Activity{
				{Source: activity.SourceCalendar, Title: "Sprint planning", Timestamp: at(9), EndTime: ptr(at(10))},
			}},
			&sources.Static{Src: activity.SourceChat, Items: []activity.Activity{
				{Source: activity.SourceChat, Channel: "dev", Text: "pushed the frontend fix", Timestamp: at(14)},
			}},
		},
		PM:        mock,
		Generator: gen,
	})
	srv := httptest.NewServer(New(Config{APIToken: token}, svc, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, mock, svc
}

func do(t *testing.T, method, url, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestActivities(t *testing.T) {
	srv, _, _ := newTestServer(t, "", nil)

	status, env := do(t, http.MethodGet, srv.URL+"/api/activities?date=2025-03-10&tz=UTC", "", nil)
	require.Equal(t, http.StatusOK, status)
	var day service.DayActivities
	require.NoError(t, json.Unmarshal(env.Data, &day))
	assert.Equal(t, "2025-03-10", day.Date)
	assert.Equal(t, 1, day.Summary.TotalMeetings)
	assert.Equal(t, 1, day.Summary.TotalMessages)
	assert.Equal(t, 1, day.Sources[activity.SourceChat])
	assert.Len(t, day.Hours[9].Primaries, 1)

	for _, q := range []string{"", "?date=2025-3-10", "?date=2025-03-10&tz=Nowhere/City"} {
		status, env := do(t, http.MethodGet, srv.URL+"/api/activities"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, status, q)
		assert.Equal(t, "validation_error", env.Error, q)
	}
}

func TestTokenRequired(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret", nil)

	status, env := do(t, http.MethodGet, srv.URL+"/api/pm-context?date=2025-03-10", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", env.Error)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/pm-context?date=2025-03-10", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = do(t, http.MethodGet, srv.URL+"/api/pm-context?date=2025-03-10", "secret", nil)
	require.Equal(t, http.StatusOK, status)
	var pmCtx pm.Context
	require.NoError(t, json.Unmarshal(env.Data, &pmCtx))
	assert.Len(t, pmCtx.Projects, 6)

	status, env = do(t, http.MethodGet, srv.URL+"/api/status", "", nil)
	require.Equal(t, http.StatusOK, status)
	var st service.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "mock", st.TimeTracking)
	assert.Equal(t, "heuristic", st.Generator)
}

func TestSuggest(t *testing.T) {
	srv, _, svc := newTestServer(t, "", nil)
	ctx := context.Background()

	day, err := svc.FetchDay(ctx, "2025-03-10", "UTC")
	require.NoError(t, err)
	pmCtx, err := svc.Context(ctx, "2025-03-10")
	require.NoError(t, err)

	status, env := do(t, http.MethodPost, srv.URL+"/api/suggest", "", service.SuggestRequest{
		Date: "2025-03-10", Timezone: "UTC", Hours: day.Hours, PMContext: pmCtx,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var resp ai.Response
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.NotEmpty(t, resp.Suggestions)
	assert.InDelta(t, 7.5, resp.TotalHours, 0.5)

	status, env = do(t, http.MethodPost, srv.URL+"/api/suggest", "", map[string]any{"date": "2025-03-10"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "hours")
}

func TestSuggest_ModelFailureIsBadGateway(t *testing.T) {
	srv, _, svc := newTestServer(t, "", silentGenerator{})
	ctx := context.Background()
	day, err := svc.FetchDay(ctx, "2025-03-10", "UTC")
	require.NoError(t, err)
	pmCtx, err := svc.Context(ctx, "2025-03-10")
	require.NoError(t, err)

	status, env := do(t, http.MethodPost, srv.URL+"/api/suggest", "", service.SuggestRequest{
		Date: "2025-03-10", Hours: day.Hours, PMContext: pmCtx,
	})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "model_empty", env.Error)
}

func TestSubmit(t *testing.T) {
	srv, mock, _ := newTestServer(t, "", nil)

	entries := []pm.Entry{
		{ID: "s1", ProjectID: "p1", ActivityTypeID: "a3", Date: "2025-03-10", Hours: 2, Description: "Planning"},
		{ID: "s2", ProjectID: "p2", ActivityTypeID: "a1", Date: "2025-03-10", Hours: 5.5, Description: "Frontend"},
	}
	status, env := do(t, http.MethodPost, srv.URL+"/api/submit", "", map[string]any{"entries": entries})
	require.Equal(t, http.StatusOK, status, env.Message)
	var resp submitResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Success)
	assert.Len(t, mock.Submitted(), 2)

	status, env = do(t, http.MethodPost, srv.URL+"/api/submit", "", map[string]any{"entries": []pm.Entry{}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", env.Error)
}

func TestSubmit_LockedBatchIsForbidden(t *testing.T) {
	srv, mock, _ := newTestServer(t, "", nil)
	mock.SetLockDate("2025-03-05")

	entries := []pm.Entry{
		{ID: "s1", ProjectID: "p1", ActivityTypeID: "a3", Date: "2025-03-10", Hours: 2},
		{ID: "s2", ProjectID: "p2", ActivityTypeID: "a1", Date: "2025-03-05", Hours: 1},
	}
	status, env := do(t, http.MethodPost, srv.URL+"/api/submit", "", map[string]any{"entries": entries})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "time_locked", env.Error)
	assert.Contains(t, env.Message, "2025-03-05")
	assert.Empty(t, mock.Submitted())
}

func TestBadJSON(t *testing.T) {
	srv, _, _ := newTestServer(t, "", nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/submit", bytes.NewBufferString("{nope"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, "", nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/submit", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
