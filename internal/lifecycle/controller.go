// Package lifecycle drives the review of a day's suggestions: generation,
// per-line approve/reject/edit/undo, caching per date, and submission.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
)

type State string

const (
	StateReady       State = "ready"
	StateLoading     State = "loading"
	StateSuggestions State = "suggestions"
	StateSubmitting  State = "submitting"
	StateSubmitted   State = "submitted"
)

// UndoWindow is how long a rejection can be undone.
const UndoWindow = 5 * time.Second

var (
	ErrLocked       = errors.New("hours for this date are locked")
	ErrInvalidState = errors.New("action not allowed in the current state")
	ErrNotEditable  = errors.New("skipped suggestions cannot be changed")
	ErrNotFound     = errors.New("suggestion not found")
	// ErrStale is returned when the date or state changed while a request
	// was in flight; its result was discarded.
	ErrStale = errors.New("result discarded: superseded by a newer action")
)

// Backend performs the slow calls. *service.Service implements it.
type Backend interface {
	Context(ctx context.Context, date string) (*pm.Context, error)
	SuggestDay(ctx context.Context, date string, pmCtx *pm.Context) (ai.Response, error)
	Submit(ctx context.Context, entries []pm.Entry) ([]pm.SubmitResult, error)
}

type Options struct {
	// Cache persists state per date. Nil keeps everything in memory.
	Cache *StateCache
	// Now defaults to time.Now.
	Now func() time.Time
	// SubmitEnglish submits descriptionEn instead of description when set.
	SubmitEnglish bool
	Logger        *slog.Logger
}

// Edit holds the fields to change; nil fields are left alone.
type Edit struct {
	ProjectID        *string
	ProjectName      *string
	ActivityTypeID   *string
	ActivityTypeName *string
	Hours            *float64
	Description      *string
	InternalNote     *string
}

type rejection struct {
	suggestion ai.Suggestion
	index      int
	at         time.Time
}

// Controller serializes every transition behind one mutex. Backend calls
// run without the lock held; their results are dropped if the date or
// request sequence changed meanwhile.
type Controller struct {
	mu      sync.Mutex
	backend Backend
	cache   *StateCache
	now     func() time.Time
	english bool
	logger  *slog.Logger

	date        string
	seq         uint64
	state       State
	suggestions []ai.Suggestion
	pmCtx       *pm.Context
	results     map[string]pm.SubmitResult
	focused     string
	highlights  map[string]bool
	lastErr     error
	undo        *rejection
}

func New(backend Backend, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		backend:    backend,
		cache:      opts.Cache,
		now:        now,
		english:    opts.SubmitEnglish,
		logger:     logger,
		state:      StateReady,
		highlights: map[string]bool{},
	}
}

// SetDate switches to date. A cached date is restored as it was left;
// otherwise the controller resets to ready and loads the project context so
// already logged hours can be shown before generating.
func (c *Controller) SetDate(ctx context.Context, date string) error {
	c.mu.Lock()
	if date == c.date && c.state != StateReady {
		c.mu.Unlock()
		return nil
	}
	c.reset(date)
	if c.restore() {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	pmCtx, err := c.backend.Context(ctx, date)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(date, seq) {
		return ErrStale
	}
	if err != nil {
		c.lastErr = err
		return err
	}
	c.pmCtx = pmCtx
	return nil
}

// Generate produces suggestions for the current date. Without force a cached
// result is restored instead of calling the backend. A failure keeps any
// previous suggestions.
func (c *Controller) Generate(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.date == "" || c.state == StateLoading || c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if !force {
		if len(c.suggestions) > 0 || c.restore() {
			c.mu.Unlock()
			return nil
		}
	}
	prev := c.state
	c.state = StateLoading
	c.lastErr = nil
	c.seq++
	seq, date := c.seq, c.date
	c.mu.Unlock()

	pmCtx, err := c.backend.Context(ctx, date)
	var resp ai.Response
	if err == nil {
		resp, err = c.backend.SuggestDay(ctx, date, pmCtx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(date, seq) {
		return ErrStale
	}
	if err != nil {
		c.lastErr = err
		c.state = StateReady
		if len(c.suggestions) > 0 {
			c.state = prev
		}
		c.logger.Warn("generation failed", "date", date, "error", err)
		return err
	}

	c.pmCtx = pmCtx
	c.suggestions = resp.Suggestions
	c.results = nil
	c.undo = nil
	c.state = StateSuggestions
	c.focused = ""
	if len(c.suggestions) > 0 {
		c.focus(c.suggestions[0].ID)
	}
	c.persist()
	return nil
}

func (c *Controller) Approve(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, err := c.mutable(id)
	if err != nil {
		return err
	}
	switch c.suggestions[i].Status {
	case ai.StatusSkipped:
		return ErrNotEditable
	case ai.StatusPending:
		c.suggestions[i].Status = ai.StatusApproved
	}
	c.advance(i)
	c.persist()
	return nil
}

// Reject skips a suggestion. It can be restored with Undo within UndoWindow.
func (c *Controller) Reject(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, err := c.mutable(id)
	if err != nil {
		return err
	}
	if c.suggestions[i].Status == ai.StatusSkipped {
		return nil
	}
	c.undo = &rejection{suggestion: c.suggestions[i], index: i, at: c.now()}
	c.suggestions[i].Status = ai.StatusSkipped
	c.advance(i)
	c.persist()
	return nil
}

// Undo restores the last rejection to pending and focuses it. It reports
// false when there is nothing left to undo.
func (c *Controller) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.undo
	c.undo = nil
	if r == nil || c.now().Sub(r.at) > UndoWindow || c.state != StateSuggestions {
		return false
	}

	i := c.indexOf(r.suggestion.ID)
	if i < 0 {
		return false
	}
	c.suggestions[i].Status = ai.StatusPending
	c.focus(c.suggestions[i].ID)
	c.persist()
	return true
}

// CanUndo reports whether Undo would restore something right now.
func (c *Controller) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo != nil && c.now().Sub(c.undo.at) <= UndoWindow
}

func (c *Controller) ApproveAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	for i := range c.suggestions {
		if c.suggestions[i].Status == ai.StatusPending {
			c.suggestions[i].Status = ai.StatusApproved
		}
	}
	c.clearFocus()
	c.persist()
	return nil
}

// Edit merges fields into a suggestion. An approved suggestion becomes
// edited so approved always means accepted as generated.
func (c *Controller) Edit(id string, e Edit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, err := c.mutable(id)
	if err != nil {
		return err
	}
	s := &c.suggestions[i]
	if s.Status == ai.StatusSkipped {
		return ErrNotEditable
	}

	if e.ProjectID != nil {
		s.ProjectID = *e.ProjectID
		if p, ok := c.pmCtx.ProjectByID(s.ProjectID); ok && e.ProjectName == nil {
			s.ProjectName = p.Name
		}
	}
	if e.ProjectName != nil {
		s.ProjectName = *e.ProjectName
	}
	if e.ActivityTypeID != nil {
		s.ActivityTypeID = *e.ActivityTypeID
		if e.ActivityTypeName == nil {
			for _, t := range c.pmCtx.ActivityTypesFor(s.ProjectID) {
				if t.ID == s.ActivityTypeID {
					s.ActivityTypeName = t.Name
				}
			}
		}
	}
	if e.ActivityTypeName != nil {
		s.ActivityTypeName = *e.ActivityTypeName
	}
	if e.Hours != nil {
		s.Hours = ai.RoundToHalf(*e.Hours)
	}
	if e.Description != nil {
		s.Description = *e.Description
	}
	if e.InternalNote != nil {
		s.InternalNote = *e.InternalNote
	}
	if s.Status == ai.StatusApproved {
		s.Status = ai.StatusEdited
	}
	c.persist()
	return nil
}

// Submit sends every approved or edited suggestion that has not already
// been submitted successfully. On a transport failure the controller
// returns to suggestions with approvals intact.
func (c *Controller) Submit(ctx context.Context) ([]pm.SubmitResult, error) {
	c.mu.Lock()
	if c.pmCtx.IsLocked(c.date) {
		c.mu.Unlock()
		return nil, ErrLocked
	}
	if c.state != StateSuggestions && c.state != StateSubmitted {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	entries := c.entries()
	if len(entries) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: nothing approved to submit", ErrInvalidState)
	}
	prev := c.state
	c.state = StateSubmitting
	c.lastErr = nil
	c.seq++
	seq, date := c.seq, c.date
	c.mu.Unlock()

	results, err := c.backend.Submit(ctx, entries)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(date, seq) {
		return nil, ErrStale
	}
	if err != nil {
		c.lastErr = err
		c.state = StateSuggestions
		if prev == StateSubmitted {
			c.state = StateSubmitted
		}
		c.logger.Warn("submission failed", "date", date, "entries", len(entries), "error", err)
		return nil, err
	}

	if c.results == nil {
		c.results = make(map[string]pm.SubmitResult, len(results))
	}
	for _, r := range results {
		c.results[r.EntryID] = r
	}
	c.state = StateSubmitted
	c.persist()
	return results, nil
}

func (c *Controller) entries() []pm.Entry {
	var out []pm.Entry
	for _, s := range c.suggestions {
		if s.Status != ai.StatusApproved && s.Status != ai.StatusEdited {
			continue
		}
		if r, ok := c.results[s.ID]; ok && r.Success {
			continue
		}
		desc := s.Description
		if c.english && s.DescriptionEn != "" {
			desc = s.DescriptionEn
		}
		out = append(out, pm.Entry{
			ID:               s.ID,
			ProjectID:        s.ProjectID,
			ProjectName:      s.ProjectName,
			ActivityTypeID:   s.ActivityTypeID,
			ActivityTypeName: s.ActivityTypeName,
			Date:             c.date,
			Hours:            s.Hours,
			Description:      desc,
			InternalNote:     s.InternalNote,
		})
	}
	return out
}

// Focus toggles focus on a suggestion and highlights its source activities.
func (c *Controller) Focus(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return ErrNotFound
	}
	if c.focused == id {
		c.clearFocus()
		return nil
	}
	c.focus(id)
	return nil
}

// FocusNext moves focus to the next visible suggestion, wrapping around.
func (c *Controller) FocusNext() { c.step(1) }

// FocusPrev moves focus to the previous visible suggestion, wrapping around.
func (c *Controller) FocusPrev() { c.step(-1) }

func (c *Controller) step(dir int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	visible := c.visible()
	if len(visible) == 0 {
		c.clearFocus()
		return
	}
	pos := -1
	for i, s := range visible {
		if s.ID == c.focused {
			pos = i
		}
	}
	switch {
	case pos < 0 && dir > 0:
		pos = 0
	case pos < 0:
		pos = len(visible) - 1
	default:
		pos = (pos + dir + len(visible)) % len(visible)
	}
	c.focus(visible[pos].ID)
}

// View is a consistent copy of the controller state for rendering.
type View struct {
	Date        string
	State       State
	Suggestions []ai.Suggestion
	Context     *pm.Context
	Results     map[string]pm.SubmitResult
	Focused     string
	Locked      bool
	Err         error
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	results := make(map[string]pm.SubmitResult, len(c.results))
	for k, v := range c.results {
		results[k] = v
	}
	return View{
		Date:        c.date,
		State:       c.state,
		Suggestions: append([]ai.Suggestion(nil), c.suggestions...),
		Context:     c.pmCtx,
		Results:     results,
		Focused:     c.focused,
		Locked:      c.pmCtx.IsLocked(c.date),
		Err:         c.lastErr,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Focused() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Highlighted reports whether an activity key (see activity.HighlightKey)
// belongs to the focused suggestion.
func (c *Controller) Highlighted(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlights[key]
}

func (c *Controller) Highlights() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.highlights))
	for k := range c.highlights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VisibleSuggestions excludes skipped suggestions.
func (c *Controller) VisibleSuggestions() []ai.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible()
}

func (c *Controller) PendingSuggestions() []ai.Suggestion {
	return c.filter(func(s ai.Suggestion) bool { return s.Status == ai.StatusPending })
}

// ApprovedSuggestions includes edited ones.
func (c *Controller) ApprovedSuggestions() []ai.Suggestion {
	return c.filter(func(s ai.Suggestion) bool {
		return s.Status == ai.StatusApproved || s.Status == ai.StatusEdited
	})
}

func (c *Controller) TotalHours() float64 {
	return sumHours(c.VisibleSuggestions())
}

func (c *Controller) ApprovedHours() float64 {
	return sumHours(c.ApprovedSuggestions())
}

func (c *Controller) filter(keep func(ai.Suggestion) bool) []ai.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ai.Suggestion
	for _, s := range c.suggestions {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func sumHours(list []ai.Suggestion) float64 {
	var total float64
	for _, s := range list {
		total += s.Hours
	}
	return total
}

// The helpers below expect c.mu to be held.

func (c *Controller) reset(date string) {
	c.date = date
	c.state = StateReady
	c.suggestions = nil
	c.pmCtx = nil
	c.results = nil
	c.undo = nil
	c.lastErr = nil
	c.clearFocus()
}

func (c *Controller) restore() bool {
	if c.cache == nil {
		return false
	}
	snap, ok := c.cache.Load(c.date)
	if !ok {
		return false
	}
	c.suggestions = snap.Suggestions
	c.pmCtx = snap.Context
	c.results = snap.Results
	c.state = snap.State
	if c.state != StateSubmitted {
		c.state = StateSuggestions
	}
	c.seq++
	c.logger.Debug("restored suggestions from cache", "date", c.date, "count", len(c.suggestions))
	return true
}

func (c *Controller) persist() {
	if c.cache == nil || (c.state != StateSuggestions && c.state != StateSubmitted) {
		return
	}
	snap := Snapshot{Suggestions: c.suggestions, Context: c.pmCtx, Results: c.results, State: c.state}
	if err := c.cache.Save(c.date, snap); err != nil {
		c.logger.Warn("saving suggestion cache failed", "date", c.date, "error", err)
	}
}

func (c *Controller) stale(date string, seq uint64) bool {
	return c.date != date || c.seq != seq
}

func (c *Controller) checkMutable() error {
	if c.pmCtx.IsLocked(c.date) {
		return ErrLocked
	}
	if c.state != StateSuggestions {
		return ErrInvalidState
	}
	return nil
}

func (c *Controller) mutable(id string) (int, error) {
	if err := c.checkMutable(); err != nil {
		return -1, err
	}
	i := c.indexOf(id)
	if i < 0 {
		return -1, ErrNotFound
	}
	return i, nil
}

func (c *Controller) indexOf(id string) int {
	for i, s := range c.suggestions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) visible() []ai.Suggestion {
	var out []ai.Suggestion
	for _, s := range c.suggestions {
		if s.Status != ai.StatusSkipped {
			out = append(out, s)
		}
	}
	return out
}

// advance focuses the next pending suggestion after index i, or clears
// focus when none is left.
func (c *Controller) advance(i int) {
	for j := i + 1; j < len(c.suggestions); j++ {
		if c.suggestions[j].Status == ai.StatusPending {
			c.focus(c.suggestions[j].ID)
			return
		}
	}
	c.clearFocus()
}

func (c *Controller) focus(id string) {
	c.focused = id
	c.highlights = map[string]bool{}
	if i := c.indexOf(id); i >= 0 {
		for _, src := range c.suggestions[i].SourceActivities {
			c.highlights[src.HighlightKey()] = true
		}
	}
}

func (c *Controller) clearFocus() {
	c.focused = ""
	c.highlights = map[string]bool{}
}
