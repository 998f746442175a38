package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/metrics"
)

const (
	JobName         = "refresh_rates"
	DefaultSchedule = time.Hour
)

var (
	ErrEmptySchedule      = errors.New("schedule must not be empty")
	ErrScheduleNeverFires = errors.New("schedule never fires")
)

// Scheduler runs the rate updater on a schedule in its own goroutine.
// A cycle always finishes before Stop returns.
type Scheduler struct {
	Updater  currency.Updater
	Schedule cron.Schedule
	Logger   *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// ParseSchedule accepts integer seconds, a Go duration or a standard
// five field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)

	if expr == "" {
		return nil, ErrEmptySchedule
	}

	if seconds, err := strconv.Atoi(expr); err == nil {
		if seconds <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive, got %d", seconds)
		}

		return cron.Every(time.Duration(seconds) * time.Second), nil
	}

	if interval, err := time.ParseDuration(expr); err == nil {
		if interval <= 0 {
			return nil, fmt.Errorf("schedule interval must be positive, got %s", interval)
		}

		return cron.Every(interval), nil
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	if schedule.Next(time.Now()).IsZero() {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, ErrScheduleNeverFires)
	}

	return schedule, nil
}

func New(updater currency.Updater, schedule cron.Schedule, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Updater:  updater,
		Schedule: schedule,
		Logger:   logger,
	}
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}

	return s.Logger
}

func (s *Scheduler) schedule() cron.Schedule {
	if s.Schedule == nil {
		return cron.Every(DefaultSchedule)
	}

	return s.Schedule
}

// Start launches the loop. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return
		}
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)
}

// Stop signals the loop and waits until the current cycle and the goroutine end.
// The lock is not held while waiting, so Running stays responsive.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done

	if done == nil {
		s.mu.Unlock()
		return
	}

	select {
	case <-stop:
	default:
		close(stop)
	}
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.done == done {
		s.stop = nil
		s.done = nil
	}
	s.mu.Unlock()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return false
	}

	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	schedule := s.schedule()
	s.logger().Info("scheduler started", "job", JobName)

	for {
		s.runOnce(ctx)

		next := schedule.Next(time.Now())
		if next.IsZero() {
			s.logger().Error("schedule has no next run, scheduler stopped", "job", JobName)
			return
		}

		timer := time.NewTimer(time.Until(next))

		select {
		case <-stop:
			timer.Stop()
			s.logger().Info("scheduler stopped", "job", JobName)

			return
		case <-ctx.Done():
			timer.Stop()
			s.logger().Info("scheduler context done", "job", JobName, "error", ctx.Err())

			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	started := time.Now()
	result, err := s.Updater.RunUpdate(ctx, "")

	metrics.UpdateJobMetrics(JobName, started, err)

	if err != nil {
		s.logger().Error("scheduled rate update failed", "job", JobName, "error", err, "took", time.Since(started))
		return
	}

	s.logger().Info("scheduled rate update finished",
		"job", JobName,
		"updated_pairs", len(result.UpdatedPairs),
		"errors", len(result.Errors),
		"last_refresh", result.LastRefresh,
		"took", time.Since(started),
	)
}
