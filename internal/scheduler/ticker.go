package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/christopherklint97/daylog/internal/config"
)

// Retrier resubmits journal entries that failed earlier.
// *service.Service implements it.
type Retrier interface {
	RetryFailed(ctx context.Context) (int, error)
}

// ReviewFunc opens the interactive review for date (YYYY-MM-DD).
type ReviewFunc func(ctx context.Context, date string) error

// Scheduler fires once per work day at [schedule] reminder_at: it retries
// failed submissions, sends a notification and opens the review.
type Scheduler struct {
	cfg     config.ScheduleConfig
	notify  bool
	retrier Retrier
	review  ReviewFunc
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

func New(cfg *config.Config, retrier Retrier, review ReviewFunc, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cfg:     cfg.Schedule,
		notify:  cfg.Notifications.Enabled,
		retrier: retrier,
		review:  review,
		loc:     loc,
		now:     time.Now,
		logger:  logger,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer s.removePID()

	s.retryFailed(ctx)

	fmt.Printf("Scheduler started (reminder at %s on days %v)\n", s.cfg.ReminderAt, s.cfg.WorkDays)

	for {
		next := s.nextReminder(s.now())
		fmt.Printf("Next reminder at %s\n", next.Format("Mon 2006-01-02 15:04"))

		select {
		case <-ctx.Done():
			fmt.Println("\nScheduler stopped.")
			return nil
		case <-time.After(time.Until(next)):
		}

		s.remind(ctx, next)
	}
}

func (s *Scheduler) remind(ctx context.Context, at time.Time) {
	s.retryFailed(ctx)

	if s.notify {
		if err := SendNotification("daylog", "Time to review today's hours."); err != nil {
			s.logger.Warn("sending notification failed", "error", err)
		}
	}

	if s.review == nil {
		return
	}
	date := at.In(s.loc).Format("2006-01-02")
	if err := s.review(ctx, date); err != nil {
		fmt.Printf("Error running review: %v\n", err)
	}
}

// nextReminder returns the first reminder time strictly after now that
// falls on a work day.
func (s *Scheduler) nextReminder(now time.Time) time.Time {
	now = now.In(s.loc)
	h, m := parseTime(s.cfg.ReminderAt)
	next := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	for i := 0; i < 7 && !s.isWorkDay(next); i++ {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) isWorkDay(t time.Time) bool {
	if len(s.cfg.WorkDays) == 0 {
		return true
	}
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday = 7
	}
	for _, d := range s.cfg.WorkDays {
		if d == weekday {
			return true
		}
	}
	return false
}

// parseTime reads "HH:MM", defaulting to 16:30.
func parseTime(s string) (int, int) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 16, 30
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 16, 30
	}
	return h, m
}

func (s *Scheduler) retryFailed(ctx context.Context) {
	if s.retrier == nil {
		return
	}
	n, err := s.retrier.RetryFailed(ctx)
	if err != nil {
		s.logger.Warn("retrying failed entries", "error", err)
		return
	}
	if n > 0 {
		fmt.Printf("Retried %d failed entries successfully\n", n)
	}
}

func pidPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daylog.pid"), nil
}

func (s *Scheduler) writePID() error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := pidPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func (s *Scheduler) removePID() {
	if path, err := pidPath(); err == nil {
		os.Remove(path)
	}
}

func ReadPID() (int, error) {
	path, err := pidPath()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running scheduler found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
