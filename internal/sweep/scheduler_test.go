package sweep_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/sweep"
)

type students []string

func (s students) ListStudentIDs(context.Context) ([]string, error) { return s, nil }

type fakeBadges struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeBadges) Check(_ context.Context, id string, trigger gamification.Trigger) (gamification.CheckResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, id)
	f.mu.Unlock()
	if trigger != gamification.TriggerAll {
		return gamification.CheckResult{}, errors.New("sweep must evaluate every rule")
	}
	if id == "s2" {
		return gamification.CheckResult{}, errors.New("db read failed")
	}
	return gamification.CheckResult{NewBadges: []string{"streak_7"}}, nil
}

type fakeAlerts struct {
	started chan struct{}
	block   chan struct{}
}

func (f *fakeAlerts) CheckStudent(_ context.Context, id string) ([]alerts.Alert, error) {
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	if id == "s3" {
		panic("nil facts")
	}
	return []alerts.Alert{{ID: "a-" + id}}, nil
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	for _, conc := range []int{1, 4} {
		b := &fakeBadges{}
		s := sweep.NewScheduler(students{"s1", "s2", "s3", "s4"}, b, &fakeAlerts{}, time.Minute, conc, logger.Nop())
		rep, err := s.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("concurrency %d: %v", conc, err)
		}
		if rep.Students != 4 || rep.Failed != 2 {
			t.Fatalf("concurrency %d: report = %+v, want 4 students 2 failed", conc, rep)
		}
		if len(b.seen) != 4 {
			t.Fatalf("concurrency %d: every student must be checked, saw %v", conc, b.seen)
		}
		// s1, s3, s4 get badges; s3's alert check panics, s2 still gets its alert.
		if rep.BadgesAwarded != 3 || rep.AlertsCreated != 3 {
			t.Fatalf("concurrency %d: report = %+v", conc, rep)
		}
		if s.Last() != rep {
			t.Fatalf("last report not recorded")
		}
	}
}

func TestRunOnce_NoOverlap(t *testing.T) {
	fa := &fakeAlerts{started: make(chan struct{}), block: make(chan struct{})}
	s := sweep.NewScheduler(students{"s1"}, nil, fa, time.Minute, 1, logger.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	select {
	case <-fa.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first run never started")
	}
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, sweep.ErrAlreadyRunning) {
		t.Fatalf("expected overlapping run to be refused, got %v", err)
	}
	close(fa.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}
