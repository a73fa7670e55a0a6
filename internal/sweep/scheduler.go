package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/logger"
)

var ErrAlreadyRunning = errors.New("sweep already running")

const DefaultInterval = 5 * time.Minute

type StudentLister interface {
	ListStudentIDs(ctx context.Context) ([]string, error)
}

type BadgeChecker interface {
	Check(ctx context.Context, studentID string, trigger gamification.Trigger) (gamification.CheckResult, error)
}

type AlertChecker interface {
	CheckStudent(ctx context.Context, studentID string) ([]alerts.Alert, error)
}

type Report struct {
	StartedAt     int64 `json:"started_at"`
	FinishedAt    int64 `json:"finished_at"`
	Students      int   `json:"students"`
	Failed        int   `json:"failed"`
	AlertsCreated int   `json:"alerts_created"`
	BadgesAwarded int   `json:"badges_awarded"`
}

// Scheduler runs the badge and alert checks for every student on an interval.
// Runs never overlap; a student's failure is logged and the sweep moves on.
type Scheduler struct {
	Students    StudentLister
	Badges      BadgeChecker
	Alerts      AlertChecker
	Interval    time.Duration
	Concurrency int
	Log         *logger.Logger
	Now         func() time.Time

	running atomic.Bool
	mu      sync.Mutex
	last    Report
}

func NewScheduler(students StudentLister, badges BadgeChecker, al AlertChecker, interval time.Duration, concurrency int, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		Students:    students,
		Badges:      badges,
		Alerts:      al,
		Interval:    interval,
		Concurrency: concurrency,
		Log:         log.With("service", "AlertSweep"),
		Now:         time.Now,
	}
}

// Start runs the sweep every Interval until ctx is done. Ticks that arrive
// while a run is in progress are skipped.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		s.Log.Info("sweep scheduler started", "interval", s.Interval.String(), "concurrency", s.Concurrency)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Log.Info("sweep scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					if errors.Is(err, ErrAlreadyRunning) {
						s.Log.Debug("sweep tick skipped, previous run still active")
						continue
					}
					s.Log.Error("sweep failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce sweeps every student now.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	rep := Report{StartedAt: s.Now().Unix()}
	ids, err := s.Students.ListStudentIDs(ctx)
	if err != nil {
		return rep, fmt.Errorf("list students: %w", err)
	}
	rep.Students = len(ids)

	var failed, created, awarded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			nb, na, err := s.checkStudent(gctx, id)
			awarded.Add(int64(nb))
			created.Add(int64(na))
			if err != nil {
				failed.Add(1)
				s.Log.Warn("student sweep failed", "student_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep.Failed = int(failed.Load())
	rep.AlertsCreated = int(created.Load())
	rep.BadgesAwarded = int(awarded.Load())
	rep.FinishedAt = s.Now().Unix()
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()
	s.Log.Info("sweep finished", "students", rep.Students, "failed", rep.Failed,
		"alerts_created", rep.AlertsCreated, "badges_awarded", rep.BadgesAwarded)
	return rep, ctx.Err()
}

func (s *Scheduler) checkStudent(ctx context.Context, id string) (badges, created int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	var errs []error
	if s.Badges != nil {
		res, berr := s.Badges.Check(ctx, id, gamification.TriggerAll)
		badges = len(res.NewBadges)
		if berr != nil {
			errs = append(errs, fmt.Errorf("badges: %w", berr))
		}
	}
	if s.Alerts != nil {
		as, aerr := s.Alerts.CheckStudent(ctx, id)
		created = len(as)
		if aerr != nil {
			errs = append(errs, fmt.Errorf("alerts: %w", aerr))
		}
	}
	return badges, created, errors.Join(errs...)
}

// Last returns the report of the most recent completed run.
func (s *Scheduler) Last() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
