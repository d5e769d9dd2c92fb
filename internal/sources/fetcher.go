package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/christopherklint97/daylog/internal/activity"
)

// Fetcher loads one source's activity for a day. day is local midnight in
// the caller's timezone; implementations return activities that start within
// [day, day+24h).
type Fetcher interface {
	Source() activity.Source
	Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error)
}

// Result is the best-effort union of every source.
type Result struct {
	Activities []activity.Activity
	Counts     map[activity.Source]int
	// Failed lists the sources whose fetch errored and contributed nothing.
	Failed []activity.Source
}

// FetchAll runs every fetcher concurrently. A failing source is logged and
// contributes an empty list; FetchAll itself never fails.
func FetchAll(ctx context.Context, fetchers []Fetcher, day time.Time, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lists := make([][]activity.Activity, len(fetchers))
	failed := make([]bool, len(fetchers))

	var g errgroup.Group
	for i, f := range fetchers {
		g.Go(func() error {
			start := time.Now()
			acts, err := safeFetch(ctx, f, day)
			if err != nil {
				logger.Warn("source fetch failed", "source", f.Source(), "error", err, "elapsed", time.Since(start))
				failed[i] = true
				return nil
			}
			logger.Debug("source fetched", "source", f.Source(), "count", len(acts), "elapsed", time.Since(start))
			lists[i] = acts
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Activities: []activity.Activity{}, Counts: make(map[activity.Source]int, len(activity.Sources))}
	for _, s := range activity.Sources {
		res.Counts[s] = 0
	}
	for i, acts := range lists {
		res.Activities = append(res.Activities, acts...)
		res.Counts[fetchers[i].Source()] += len(acts)
		if failed[i] {
			res.Failed = append(res.Failed, fetchers[i].Source())
		}
	}
	return res
}

// safeFetch turns a panicking fetcher into an error.
func safeFetch(ctx context.Context, f Fetcher, day time.Time) (acts []activity.Activity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return f.Fetch(ctx, day)
}

// Static serves a fixed list, filtered to the requested day.
type Static struct {
	Src   activity.Source
	Items []activity.Activity
	mu    sync.Mutex
	calls int
}

func (s *Static) Source() activity.Source { return s.Src }

func (s *Static) Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return withinDay(s.Items, day), nil
}

// Calls reports how many times Fetch ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func withinDay(acts []activity.Activity, day time.Time) []activity.Activity {
	end := day.AddDate(0, 0, 1)
	out := make([]activity.Activity, 0, len(acts))
	for _, a := range acts {
		if !a.Timestamp.Before(day) && a.Timestamp.Before(end) {
			out = append(out, a)
		}
	}
	return out
}
