// Package service wires sources, the aggregator, the generators and the
// time-tracking backend into the operations the HTTP server and the CLI
// expose.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
	"github.com/christopherklint97/daylog/internal/aggregate"
	"github.com/christopherklint97/daylog/internal/ai"
	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/sources"
	"github.com/christopherklint97/daylog/internal/store"
)

type Config struct {
	Window       aggregate.Window
	Location     *time.Location
	TargetHours  float64
	Language     string
	ModelTimeout time.Duration
	// PerProjectActivityTypes loads the permitted activity types per project.
	PerProjectActivityTypes bool
}

func (c Config) withDefaults() Config {
	if c.Window == (aggregate.Window{}) {
		c.Window = aggregate.DefaultWindow()
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.TargetHours <= 0 {
		c.TargetHours = ai.DefaultWorkdayHours
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = ai.DefaultModelTimeout
	}
	return c
}

// Journal records submissions locally. *store.DB implements it.
type Journal interface {
	InsertEntry(e *store.Entry) (int64, error)
	GetFailedEntries() ([]store.Entry, error)
	UpdateEntryStatus(id int, status, remoteID, errMsg string) error
}

type Options struct {
	Fetchers []sources.Fetcher
	PM       pm.Adapter
	// Generator is the generative model. When nil the heuristic generator
	// produces suggestions.
	Generator ai.Generator
	Journal   Journal
	Logger    *slog.Logger
}

type Service struct {
	cfg       Config
	fetchers  []sources.Fetcher
	pm        pm.Adapter
	generator ai.Generator
	journal   Journal
	logger    *slog.Logger
}

func New(cfg Config, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:       cfg.withDefaults(),
		fetchers:  opts.Fetchers,
		pm:        opts.PM,
		generator: opts.Generator,
		journal:   opts.Journal,
		logger:    logger,
	}
}

func (s *Service) TargetHours() float64 { return s.cfg.TargetHours }

func (s *Service) Location() *time.Location { return s.cfg.Location }

// DayActivities is one day's bucketed timeline.
type DayActivities struct {
	Date     string                  `json:"date"`
	Timezone string                  `json:"timezone"`
	Hours    aggregate.Hours         `json:"hours"`
	Summary  aggregate.DaySummary    `json:"summary"`
	Sources  map[activity.Source]int `json:"sources"`
	Failed   []activity.Source       `json:"failed,omitempty"`
}

func (s *Service) location(tz string) (*time.Location, error) {
	if tz == "" {
		return s.cfg.Location, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, invalid("tz", "is not a known timezone: %s", tz)
	}
	return loc, nil
}

// FetchDay pulls every source for date concurrently and buckets the result.
// tz defaults to the configured timezone.
func (s *Service) FetchDay(ctx context.Context, date, tz string) (*DayActivities, error) {
	if !ValidDate(date) {
		return nil, invalid("date", "must be a YYYY-MM-DD date")
	}
	loc, err := s.location(tz)
	if err != nil {
		return nil, err
	}
	day, err := pm.ParseDate(date, loc)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}

	res := sources.FetchAll(ctx, s.fetchers, day, s.logger)
	hours := aggregate.Aggregate(res.Activities, s.cfg.Window, loc)

	s.logger.Debug("day fetched", "date", date, "tz", loc.String(), "activities", len(res.Activities), "failed", res.Failed)
	return &DayActivities{
		Date:     date,
		Timezone: loc.String(),
		Hours:    hours,
		Summary:  aggregate.Summarize(hours),
		Sources:  res.Counts,
		Failed:   res.Failed,
	}, nil
}

// Context loads the project metadata for date from the backend.
func (s *Service) Context(ctx context.Context, date string) (*pm.Context, error) {
	if !ValidDate(date) {
		return nil, invalid("date", "must be a YYYY-MM-DD date")
	}
	if s.pm == nil {
		return nil, ErrUnauthenticated
	}
	pmCtx, err := pm.LoadContext(ctx, s.pm, date, pm.LoadOptions{PerProjectActivityTypes: s.cfg.PerProjectActivityTypes})
	if err != nil {
		return nil, err
	}
	return pmCtx, nil
}

func (s *Service) Projects(ctx context.Context) ([]pm.Project, error) {
	if s.pm == nil {
		return nil, ErrUnauthenticated
	}
	return s.pm.GetProjects(ctx)
}

// SuggestRequest carries an already fetched timeline and context.
type SuggestRequest struct {
	Date      string          `json:"date" validate:"required,isodate"`
	Timezone  string          `json:"timezone,omitempty"`
	Hours     aggregate.Hours `json:"hours" validate:"required"`
	PMContext *pm.Context     `json:"pmContext" validate:"required"`
}

// Suggest turns a timeline into draft time-log lines. Model failures are
// returned as *ai.ModelError or *ai.ParseError and never replaced by the
// heuristic generator.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) (ai.Response, error) {
	if err := Validate(req); err != nil {
		return ai.Response{}, err
	}
	loc, err := s.location(req.Timezone)
	if err != nil {
		return ai.Response{}, err
	}

	start := time.Now()
	data := ai.NewPreprocessor(loc).Run(req.Hours)

	var suggestions []ai.Suggestion
	generator := "heuristic"
	if s.generator == nil {
		suggestions = ai.GenerateHeuristic(data, req.PMContext, ai.HeuristicOptions{TargetHours: s.cfg.TargetHours})
	} else {
		generator = s.generator.Name()
		prompt := ai.AssemblePrompt(data, req.PMContext, req.Date, ai.PromptOptions{
			WorkdayHours: s.cfg.TargetHours,
			Language:     s.cfg.Language,
			Location:     loc,
		})
		text, err := ai.Generate(ctx, s.generator, prompt, s.cfg.ModelTimeout)
		if err != nil {
			s.logger.Error("suggestion generation failed", "generator", generator, "date", req.Date, "error", err)
			return ai.Response{}, err
		}
		suggestions, err = ai.ParseSuggestions(text)
		if err != nil {
			s.logger.Error("model output unparsable", "generator", generator, "date", req.Date, "error", err)
			return ai.Response{}, err
		}
	}

	resp := ai.NewResponse(suggestions, s.cfg.TargetHours)
	s.logger.Info("suggestions generated",
		"generator", generator,
		"date", req.Date,
		"activities", len(data.Activities),
		"suggestions", len(resp.Suggestions),
		"total_hours", resp.TotalHours,
		"elapsed", time.Since(start))
	return resp, nil
}

// SuggestDay fetches the day and generates suggestions in one step. A nil
// pmCtx is loaded from the backend.
func (s *Service) SuggestDay(ctx context.Context, date string, pmCtx *pm.Context) (ai.Response, error) {
	day, err := s.FetchDay(ctx, date, "")
	if err != nil {
		return ai.Response{}, err
	}
	if pmCtx == nil {
		if pmCtx, err = s.Context(ctx, date); err != nil {
			return ai.Response{}, err
		}
	}
	return s.Suggest(ctx, SuggestRequest{Date: date, Hours: day.Hours, PMContext: pmCtx})
}

// Submit validates and submits entries. A batch touching a locked date
// fails with *pm.LockError and writes nothing.
func (s *Service) Submit(ctx context.Context, entries []pm.Entry) ([]pm.SubmitResult, error) {
	if err := validateEntries(entries); err != nil {
		return nil, err
	}
	if s.pm == nil {
		return nil, ErrUnauthenticated
	}

	results, err := pm.SubmitBatch(ctx, s.pm, entries, s.logger)
	if err != nil {
		return nil, err
	}
	s.record(entries, results)
	return results, nil
}

func (s *Service) record(entries []pm.Entry, results []pm.SubmitResult) {
	if s.journal == nil {
		return
	}
	for i, e := range entries {
		row := &store.Entry{
			ProjectID:        e.ProjectID,
			ProjectName:      e.ProjectName,
			ActivityTypeID:   e.ActivityTypeID,
			ActivityTypeName: e.ActivityTypeName,
			Date:             e.Date,
			Hours:            e.Hours,
			Description:      e.Description,
			InternalNote:     e.InternalNote,
			Status:           store.StatusLogged,
		}
		if !results[i].Success {
			row.Status = store.StatusFailed
			row.Error = results[i].Error
		}
		if _, err := s.journal.InsertEntry(row); err != nil {
			s.logger.Warn("journaling entry failed", "project", e.ProjectID, "date", e.Date, "error", err)
		}
	}
}

// RetryFailed resubmits journaled entries that failed earlier and returns
// how many went through.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	if s.pm == nil {
		return 0, ErrUnauthenticated
	}
	failed, err := s.journal.GetFailedEntries()
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	entries := make([]pm.Entry, len(failed))
	for i, f := range failed {
		entries[i] = pm.Entry{
			ID:               strconv.Itoa(f.ID),
			ProjectID:        f.ProjectID,
			ProjectName:      f.ProjectName,
			ActivityTypeID:   f.ActivityTypeID,
			ActivityTypeName: f.ActivityTypeName,
			Date:             f.Date,
			Hours:            f.Hours,
			Description:      f.Description,
			InternalNote:     f.InternalNote,
		}
	}

	results, err := pm.SubmitBatch(ctx, s.pm, entries, s.logger)
	if err != nil {
		var lockErr *pm.LockError
		if errors.As(err, &lockErr) {
			s.logger.Warn("failed entries fall on locked dates", "lock_date", lockErr.LockDate, "dates", lockErr.Dates)
		}
		return 0, err
	}

	ok := 0
	for i, res := range results {
		status, msg := store.StatusFailed, res.Error
		if res.Success {
			status, msg = store.StatusLogged, ""
			ok++
		}
		if err := s.journal.UpdateEntryStatus(failed[i].ID, status, "", msg); err != nil {
			s.logger.Warn("updating journal entry failed", "id", failed[i].ID, "error", err)
		}
	}
	s.logger.Info("retried failed entries", "total", len(failed), "succeeded", ok)
	return ok, nil
}

// Status describes what the service is wired to.
type Status struct {
	Sources      []activity.Source `json:"sources"`
	TimeTracking string            `json:"timetracking,omitempty"`
	Generator    string            `json:"generator"`
}

func (s *Service) Status() Status {
	st := Status{Sources: make([]activity.Source, 0, len(s.fetchers)), Generator: "heuristic"}
	for _, f := range s.fetchers {
		st.Sources = append(st.Sources, f.Source())
	}
	if s.pm != nil {
		st.TimeTracking = s.pm.Name()
	}
	if s.generator != nil {
		st.Generator = s.generator.Name()
	}
	return st
}
