package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/risk"
)

// StudentFacts is what the generator reads for one student.
type StudentFacts struct {
	risk.Signals
	// MissedAssignments are published assignments of enrolled courses past
	// their due date with no submission.
	MissedAssignments []string
}

type FactStore interface {
	StudentAlertFacts(ctx context.Context, studentID string, now int64) (StudentFacts, error)
}

const systemActor = "system"

type Generator struct {
	Alerts         *Service
	Facts          FactStore
	InactivityDays int
	Log            *logger.Logger
	Now            func() time.Time
}

func NewGenerator(svc *Service, facts FactStore, inactivityDays int, log *logger.Logger) *Generator {
	if inactivityDays <= 0 {
		inactivityDays = risk.DefaultInactiveDays
	}
	return &Generator{
		Alerts:         svc,
		Facts:          facts,
		InactivityDays: inactivityDays,
		Log:            log.With("service", "AlertGenerator"),
		Now:            time.Now,
	}
}

type rule struct {
	typ   Type
	build func(f StudentFacts, now time.Time) (Alert, bool)
}

func (g *Generator) rules() []rule {
	return []rule{
		{TypeInactivity, g.inactivity},
		{TypeLowPerformance, lowPerformance},
		{TypeMissedDeadline, missedDeadline},
	}
}

// CheckStudent evaluates the threshold rules for one student and raises the
// alerts that apply. A failing rule is logged and the remaining rules still
// run; the joined rule errors are returned alongside the created alerts.
func (g *Generator) CheckStudent(ctx context.Context, studentID string) ([]Alert, error) {
	now := g.Now()
	facts, err := g.Facts.StudentAlertFacts(ctx, studentID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("alert facts: %w", err)
	}
	facts.StudentID = studentID

	var created []Alert
	var errs []error
	for _, r := range g.rules() {
		a, ok := r.build(facts, now)
		if !ok {
			continue
		}
		a.StudentID = studentID
		stored, isNew, err := g.Alerts.Raise(ctx, a)
		if err != nil {
			g.Log.Warn("alert rule failed", "student_id", studentID, "alert_type", r.typ, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.typ, err))
			continue
		}
		if isNew {
			created = append(created, stored)
		}
	}
	return created, errors.Join(errs...)
}

func (g *Generator) inactivity(f StudentFacts, now time.Time) (Alert, bool) {
	days := risk.DaysSince(f.LastLoginAt, now)
	if days < g.InactivityDays {
		return Alert{}, false
	}
	p := PriorityMedium
	switch {
	case days >= 30:
		p = PriorityCritical
	case days >= 14:
		p = PriorityHigh
	}
	return Alert{
		Type: TypeInactivity, Priority: p,
		Title:   "Student inactive",
		Message: fmt.Sprintf("No login for %d days", days),
		Context: map[string]any{"days_since_last_login": days},
	}, true
}

func lowPerformance(f StudentFacts, _ time.Time) (Alert, bool) {
	low := risk.LowCLOs(f.CLOAttainment)
	if len(low) < risk.MinLowCLOs {
		return Alert{}, false
	}
	p := PriorityHigh
	if len(low) >= 4 {
		p = PriorityCritical
	}
	return Alert{
		Type: TypeLowPerformance, Priority: p,
		Title:   "Low outcome attainment",
		Message: fmt.Sprintf("Below %d%% on %d CLOs", int(risk.LowAttainment), len(low)),
		Context: map[string]any{"low_clos": low, "low_clo_count": len(low)},
	}, true
}

func missedDeadline(f StudentFacts, _ time.Time) (Alert, bool) {
	n := len(f.MissedAssignments)
	if n == 0 {
		return Alert{}, false
	}
	p := PriorityMedium
	if n >= 3 {
		p = PriorityHigh
	}
	return Alert{
		Type: TypeMissedDeadline, Priority: p,
		Title:   "Missed deadlines",
		Message: fmt.Sprintf("%d assignment(s) past due without a submission", n),
		Context: map[string]any{"assignment_ids": f.MissedAssignments},
	}, true
}

// ClearMissedDeadline resolves the student's live missed_deadline alerts once
// no missed assignment remains.
func (g *Generator) ClearMissedDeadline(ctx context.Context, studentID string) error {
	facts, err := g.Facts.StudentAlertFacts(ctx, studentID, g.Now().Unix())
	if err != nil {
		return fmt.Errorf("alert facts: %w", err)
	}
	if len(facts.MissedAssignments) > 0 {
		return nil
	}
	n, err := g.Alerts.ResolveLive(ctx, studentID, TypeMissedDeadline, systemActor)
	if err != nil {
		return err
	}
	if n > 0 {
		g.Log.Info("missed deadline alerts cleared", "student_id", studentID, "resolved", n)
	}
	return nil
}

// RequestHelp raises a help_request for the student. Priority defaults to medium.
func (g *Generator) RequestHelp(ctx context.Context, studentID, message string, p Priority) (Alert, bool, error) {
	if p == "" {
		p = PriorityMedium
	}
	return g.Alerts.Raise(ctx, Alert{
		StudentID: studentID, Type: TypeHelpRequest, Priority: p,
		Title: "Help requested", Message: strings.TrimSpace(message),
	})
}

// OnGrade clears resolved deadlines and re-evaluates the student after a grade.
func (g *Generator) OnGrade(ctx context.Context, ev grading.GradeEvent) error {
	clearErr := g.ClearMissedDeadline(ctx, ev.StudentID)
	_, checkErr := g.CheckStudent(ctx, ev.StudentID)
	return errors.Join(clearErr, checkErr)
}

// BadgesAwarded raises a low-priority achievement alert.
func (g *Generator) BadgesAwarded(ctx context.Context, studentID string, badgeIDs []string) error {
	if len(badgeIDs) == 0 {
		return nil
	}
	_, _, err := g.Alerts.Raise(ctx, Alert{
		StudentID: studentID, Type: TypeAchievement, Priority: PriorityLow,
		Title:   "New badge earned",
		Message: "Awarded " + strings.Join(badgeIDs, ", "),
		Context: map[string]any{"badges": badgeIDs},
	})
	return err
}

func (g *Generator) StreakBroken(ctx context.Context, studentID string, previous int) error {
	_, _, err := g.Alerts.Raise(ctx, Alert{
		StudentID: studentID, Type: TypeStreakBreak, Priority: PriorityLow,
		Title:   "Study streak ended",
		Message: fmt.Sprintf("A %d-day streak was broken", previous),
		Context: map[string]any{"previous_streak": previous},
	})
	return err
}
