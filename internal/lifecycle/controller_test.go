package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/store"
)

const testDate = "2025-03-10"

type fakeBackend struct {
	mu           sync.Mutex
	lock         string
	suggestCalls int
	contextCalls int
	suggestErr   error
	submitErr    error
	submitted    [][]pm.Entry
	fail         map[string]bool
	// gate, when set, blocks SuggestDay until closed.
	gate chan struct{}
}

func (f *fakeBackend) Context(ctx context.Context, date string) (*pm.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contextCalls++
	return &pm.Context{
		Projects:      []pm.Project{{ID: "p1", Name: "Project Alpha"}, {ID: "p2", Name: "DevApp"}},
		ActivityTypes: []pm.ActivityType{{ID: "a1", Name: "Development"}, {ID: "a3", Name: "Meetings"}},
		TimeLockDate:  f.lock,
	}, nil
}

func (f *fakeBackend) SuggestDay(ctx context.Context, date string, pmCtx *pm.Context) (ai.Response, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestCalls++
	if f.suggestErr != nil {
		return ai.Response{}, f.suggestErr
	}
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	return ai.NewResponse([]ai.Suggestion{
		{ID: "s1", ProjectID: "p1", ProjectName: "Project Alpha", ActivityTypeID: "a3", Hours: 2, Description: "Planning",
			DescriptionEn: "Planning (en)", Status: ai.StatusPending, Confidence: ai.ConfidenceHigh,
			SourceActivities: []ai.SourceActivity{{Source: "calendar", Title: "Sprint planning", Timestamp: ts}}},
		{ID: "s2", ProjectID: "p2", ProjectName: "DevApp", ActivityTypeID: "a1", Hours: 4, Description: "Frontend",
			Status: ai.StatusPending, Confidence: ai.ConfidenceMedium, SourceActivities: []ai.SourceActivity{}},
		{ID: "s3", ProjectID: "p1", ProjectName: "Project Alpha", ActivityTypeID: "a1", Hours: 1.5, Description: "Review",
			Status: ai.StatusPending, Confidence: ai.ConfidenceLow, SourceActivities: []ai.SourceActivity{}},
	}, 7.5), nil
}

func (f *fakeBackend) Submit(ctx context.Context, entries []pm.Entry) ([]pm.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, entries)
	results := make([]pm.SubmitResult, len(entries))
	for i, e := range entries {
		results[i] = pm.SubmitResult{EntryID: e.ID, Success: !f.fail[e.ID]}
		if f.fail[e.ID] {
			results[i].Error = "rejected"
		}
	}
	return results, nil
}

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) GetState(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memKV) SetState(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) DeleteState(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newController(t *testing.T, b *fakeBackend, kv KV) (*Controller, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC)}
	var cache *StateCache
	if kv != nil {
		cache = NewStateCache(kv, nil)
	}
	c := New(b, Options{Cache: cache, Now: clk.Now})
	require.NoError(t, c.SetDate(context.Background(), testDate))
	return c, clk
}

func generated(t *testing.T, b *fakeBackend, kv KV) (*Controller, *clock) {
	t.Helper()
	c, clk := newController(t, b, kv)
	require.NoError(t, c.Generate(context.Background(), false))
	return c, clk
}

func ids(list []ai.Suggestion) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestGenerate_FocusesFirst(t *testing.T) {
	c, _ := generated(t, &fakeBackend{}, nil)

	assert.Equal(t, StateSuggestions, c.State())
	assert.Equal(t, "s1", c.Focused())
	key := activity.HighlightKey(activity.SourceCalendar, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	assert.True(t, c.Highlighted(key))
	assert.Equal(t, []string{key}, c.Highlights())
	assert.Equal(t, 7.5, c.TotalHours())
}

func TestRejectUndo(t *testing.T) {
	c, clk := generated(t, &fakeBackend{}, nil)
	require.Len(t, c.PendingSuggestions(), 3)

	require.NoError(t, c.Reject("s2"))
	assert.Equal(t, []string{"s1", "s3"}, ids(c.VisibleSuggestions()))
	assert.Equal(t, "s3", c.Focused())
	assert.True(t, c.CanUndo())

	clk.Advance(3 * time.Second)
	require.True(t, c.Undo())

	view := c.View()
	assert.Equal(t, ai.StatusPending, view.Suggestions[1].Status)
	assert.Equal(t, "s2", view.Focused)
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids(c.VisibleSuggestions()))

	assert.False(t, c.Undo(), "second undo is a no-op")
}

func TestUndo_WindowExpires(t *testing.T) {
	c, clk := generated(t, &fakeBackend{}, nil)

	require.NoError(t, c.Reject("s1"))
	clk.Advance(UndoWindow + time.Millisecond)
	assert.False(t, c.CanUndo())
	assert.False(t, c.Undo())
	assert.Equal(t, []string{"s2", "s3"}, ids(c.VisibleSuggestions()))
}

func TestApprove_AdvancesFocus(t *testing.T) {
	c, _ := generated(t, &fakeBackend{}, nil)

	require.NoError(t, c.Approve("s1"))
	assert.Equal(t, "s2", c.Focused())
	require.NoError(t, c.Approve("s3"))
	assert.Empty(t, c.Focused(), "nothing pending after s3")

	assert.Equal(t, 3.5, c.ApprovedHours())
	assert.ErrorIs(t, c.Approve("nope"), ErrNotFound)

	require.NoError(t, c.Reject("s2"))
	assert.ErrorIs(t, c.Approve("s2"), ErrNotEditable)
}

func TestApproveAll(t *testing.T) {
	c, _ := generated(t, &fakeBackend{}, nil)
	require.NoError(t, c.Reject("s3"))

	require.NoError(t, c.ApproveAll())
	assert.Empty(t, c.Focused())
	assert.Equal(t, []string{"s1", "s2"}, ids(c.ApprovedSuggestions()))
	assert.Empty(t, c.PendingSuggestions())
}

func TestEdit(t *testing.T) {
	c, _ := generated(t, &fakeBackend{}, nil)

	hours := 2.7
	project := "p2"
	require.NoError(t, c.Edit("s3", Edit{Hours: &hours, ProjectID: &project}))
	s := c.View().Suggestions[2]
	assert.Equal(t, 2.5, s.Hours)
	assert.Equal(t, "DevApp", s.ProjectName)
	assert.Equal(t, ai.StatusPending, s.Status, "pending stays pending")

	require.NoError(t, c.Approve("s1"))
	desc := "Sprint planning and grooming"
	require.NoError(t, c.Edit("s1", Edit{Description: &desc}))
	s = c.View().Suggestions[0]
	assert.Equal(t, ai.StatusEdited, s.Status)
	assert.Equal(t, desc, s.Description)

	require.NoError(t, c.Reject("s2"))
	assert.ErrorIs(t, c.Edit("s2", Edit{Description: &desc}), ErrNotEditable)
}

func TestLockedDateDisablesMutations(t *testing.T) {
	b := &fakeBackend{lock: testDate}
	c, _ := generated(t, b, nil)
	require.True(t, c.View().Locked)

	desc := "x"
	assert.ErrorIs(t, c.Approve("s1"), ErrLocked)
	assert.ErrorIs(t, c.Reject("s1"), ErrLocked)
	assert.ErrorIs(t, c.Edit("s1", Edit{Description: &desc}), ErrLocked)
	assert.ErrorIs(t, c.ApproveAll(), ErrLocked)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, c.Generate(context.Background(), true))
	assert.Equal(t, 2, b.suggestCalls)
}

func TestSubmit(t *testing.T) {
	b := &fakeBackend{fail: map[string]bool{"s2": true}}
	c, _ := generated(t, b, nil)

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState, "nothing approved yet")

	require.NoError(t, c.Approve("s1"))
	require.NoError(t, c.Approve("s2"))
	require.NoError(t, c.Reject("s3"))

	results, err := c.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, StateSubmitted, c.State())
	assert.Equal(t, testDate, b.submitted[0][0].Date)
	assert.Equal(t, "Planning", b.submitted[0][0].Description)

	view := c.View()
	assert.True(t, view.Results["s1"].Success)
	assert.Equal(t, "rejected", view.Results["s2"].Error)

	b.fail = nil
	results, err = c.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "only the failed entry is resent")
	assert.Equal(t, "s2", results[0].EntryID)
	assert.True(t, c.View().Results["s2"].Success)
}

func TestSubmit_TransportFailureKeepsApprovals(t *testing.T) {
	b := &fakeBackend{submitErr: errors.New("connection refused")}
	c, _ := generated(t, b, nil)
	require.NoError(t, c.ApproveAll())

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	view := c.View()
	assert.Equal(t, StateSuggestions, view.State)
	assert.Error(t, view.Err)
	assert.Len(t, c.ApprovedSuggestions(), 3)
}

func TestSubmit_EnglishDescriptions(t *testing.T) {
	b := &fakeBackend{}
	c := New(b, Options{SubmitEnglish: true})
	require.NoError(t, c.SetDate(context.Background(), testDate))
	require.NoError(t, c.Generate(context.Background(), false))
	require.NoError(t, c.ApproveAll())

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Planning (en)", b.submitted[0][0].Description)
	assert.Equal(t, "Frontend", b.submitted[0][1].Description, "falls back without an English text")
}

func TestGenerateFailure(t *testing.T) {
	b := &fakeBackend{suggestErr: &ai.ModelError{Provider: "fake", Kind: ai.ModelTimeout}}
	c, _ := newController(t, b, nil)

	err := c.Generate(context.Background(), false)
	var me *ai.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, StateReady, c.State())

	b.suggestErr = nil
	require.NoError(t, c.Generate(context.Background(), false))
	require.NoError(t, c.Approve("s1"))

	b.suggestErr = errors.New("quota exceeded")
	require.Error(t, c.Generate(context.Background(), true))
	view := c.View()
	assert.Equal(t, StateSuggestions, view.State)
	assert.Len(t, view.Suggestions, 3, "previous suggestions survive")
	assert.Equal(t, ai.StatusApproved, view.Suggestions[0].Status)
}

func TestCache_RestoresDate(t *testing.T) {
	kv := newMemKV()
	b := &fakeBackend{}
	c, _ := generated(t, b, kv)
	require.NoError(t, c.Approve("s1"))
	require.NoError(t, c.Reject("s3"))

	require.NoError(t, c.SetDate(context.Background(), "2025-03-11"))
	assert.Equal(t, StateReady, c.State())
	assert.Empty(t, c.View().Suggestions)
	assert.NotNil(t, c.View().Context, "context is loaded for an uncached date")

	require.NoError(t, c.SetDate(context.Background(), testDate))
	view := c.View()
	assert.Equal(t, StateSuggestions, view.State)
	assert.Equal(t, ai.StatusApproved, view.Suggestions[0].Status)
	assert.Equal(t, ai.StatusSkipped, view.Suggestions[2].Status)

	require.NoError(t, c.Generate(context.Background(), false))
	assert.Equal(t, 1, b.suggestCalls, "restored without a model call")

	require.NoError(t, c.Generate(context.Background(), true))
	assert.Equal(t, 2, b.suggestCalls)
	assert.Equal(t, ai.StatusPending, c.View().Suggestions[0].Status)
}

func TestCache_DiscardsMismatchedEnvelope(t *testing.T) {
	kv := newMemKV()
	cache := NewStateCache(kv, nil)
	require.NoError(t, cache.Save(testDate, Snapshot{State: StateSuggestions, Suggestions: []ai.Suggestion{{ID: "x"}}}))

	_, ok := cache.Load(testDate)
	require.True(t, ok)

	old, _ := json.Marshal(envelope{Version: CacheVersion + 1, Key: cacheKey(testDate), Payload: json.RawMessage(`{}`)})
	require.NoError(t, kv.SetState(cacheKey(testDate), string(old)))
	_, ok = cache.Load(testDate)
	assert.False(t, ok)
	assert.Empty(t, kv.data[cacheKey(testDate)], "mismatched entry is deleted")

	wrongKey, _ := json.Marshal(envelope{Version: CacheVersion, Key: cacheKey("2025-01-01"), Payload: json.RawMessage(`{}`)})
	require.NoError(t, kv.SetState(cacheKey(testDate), string(wrongKey)))
	_, ok = cache.Load(testDate)
	assert.False(t, ok)

	require.NoError(t, kv.SetState(cacheKey(testDate), "not json"))
	_, ok = cache.Load(testDate)
	assert.False(t, ok)
}

func TestCache_SQLiteStore(t *testing.T) {
	db, err := store.OpenPath(filepath.Join(t.TempDir(), "daylog.db"))
	require.NoError(t, err)
	defer db.Close()

	b := &fakeBackend{}
	c, _ := generated(t, b, db)
	require.NoError(t, c.Approve("s2"))

	fresh := New(b, Options{Cache: NewStateCache(db, nil)})
	require.NoError(t, fresh.SetDate(context.Background(), testDate))
	assert.Equal(t, ai.StatusApproved, fresh.View().Suggestions[1].Status)
	assert.Equal(t, 1, b.suggestCalls)
}

func TestStaleGenerateIsDiscarded(t *testing.T) {
	b := &fakeBackend{gate: make(chan struct{})}
	c, _ := newController(t, b, nil)

	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background(), false) }()

	require.Eventually(t, func() bool { return c.State() == StateLoading }, time.Second, time.Millisecond)
	require.NoError(t, c.SetDate(context.Background(), "2025-03-11"))
	close(b.gate)

	assert.ErrorIs(t, <-done, ErrStale)
	view := c.View()
	assert.Equal(t, "2025-03-11", view.Date)
	assert.Empty(t, view.Suggestions)
}

func TestFocusNavigation(t *testing.T) {
	c, _ := generated(t, &fakeBackend{}, nil)

	require.NoError(t, c.Focus("s1"))
	assert.Empty(t, c.Focused(), "focusing the focused suggestion toggles it off")
	assert.Empty(t, c.Highlights())

	c.FocusNext()
	assert.Equal(t, "s1", c.Focused())
	require.NoError(t, c.Reject("s2"))
	assert.Equal(t, "s3", c.Focused())
	c.FocusNext()
	assert.Equal(t, "s1", c.Focused(), "wraps and skips rejected")
	c.FocusPrev()
	assert.Equal(t, "s3", c.Focused())

	assert.ErrorIs(t, c.Focus("missing"), ErrNotFound)
}

func TestActionsNeedSuggestions(t *testing.T) {
	c, _ := newController(t, &fakeBackend{}, nil)
	assert.ErrorIs(t, c.Approve("s1"), ErrInvalidState)
	assert.ErrorIs(t, c.ApproveAll(), ErrInvalidState)
	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.ErrorIs(t, New(&fakeBackend{}, Options{}).Generate(context.Background(), false), ErrInvalidState)
}
