package pm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// SubmitBatch checks the time lock once for the whole batch and then submits
// each entry concurrently. A lock violation, or a failure to read the lock
// date, rejects the batch before anything is written. Per-entry failures are
// reported in the results, which keep the input order.
func SubmitBatch(ctx context.Context, a Adapter, entries []Entry, logger *slog.Logger) ([]SubmitResult, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	lock, err := a.GetTimeLockDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking time lock: %w", err)
	}
	if lockErr := checkLock(entries, lock); lockErr != nil {
		logger.Warn("submission rejected by time lock", "lock_date", lock, "dates", lockErr.Dates)
		return nil, lockErr
	}

	results := make([]SubmitResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, e := range entries {
		g.Go(func() error {
			res := a.SubmitTimeLog(gctx, e)
			if res.EntryID == "" {
				res.EntryID = e.ID
			}
			if !res.Success {
				logger.Warn("time log submission failed", "entry", e.ID, "project", e.ProjectID, "error", res.Error)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	logger.Debug("submitted batch", "adapter", a.Name(), "entries", len(entries))
	return results, nil
}

func checkLock(entries []Entry, lock string) *LockError {
	if lock == "" {
		return nil
	}
	seen := make(map[string]bool)
	var dates []string
	for _, e := range entries {
		if IsLocked(e.Date, lock) && !seen[e.Date] {
			seen[e.Date] = true
			dates = append(dates, e.Date)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	sort.Strings(dates)
	return &LockError{LockDate: lock, Dates: dates}
}
