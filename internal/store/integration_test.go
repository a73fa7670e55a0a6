package store_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/attainment"
	"github.com/mind-engage/mindengage-obe/internal/db"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
	"github.com/mind-engage/mindengage-obe/internal/risk"
	"github.com/mind-engage/mindengage-obe/internal/store"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

const t0 = int64(1700000000)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "obe.db") + "?_pragma=busy_timeout(5000)"
	d, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	st := store.New(d, db.DriverSQLite, "test")
	st.Events.Now = func() time.Time { return time.Unix(t0, 0) }
	return st
}

// seed creates one program with one course, its staff, two students and a
// CLO→PLO→ILO chain.
func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []store.User{
		{ID: "a1", Username: "admin", Role: "admin"},
		{ID: "co1", Username: "coord", Role: "coordinator"},
		{ID: "t1", Username: "teacher", Role: "teacher"},
		{ID: "s1", Username: "alice", Role: "student", DisplayName: "Alice"},
		{ID: "s2", Username: "bob", Role: "student", DisplayName: "Bob"},
	} {
		u.CreatedAt = t0
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	if err := st.CreateProgram(ctx, store.Program{ID: "p1", Name: "BSc CS", CoordinatorID: "co1"}); err != nil {
		t.Fatalf("seed program: %v", err)
	}
	if err := st.CreateCourse(ctx, store.Course{ID: "c1", ProgramID: "p1", Title: "Algorithms", TeacherID: "t1"}); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	for _, s := range []string{"s1", "s2"} {
		if err := st.Enroll(ctx, s, "c1", t0); err != nil {
			t.Fatalf("enroll %s: %v", s, err)
		}
	}
	svc := outcome.NewService(st, logger.Nop(), func() time.Time { return time.Unix(t0, 0) })
	for _, o := range []outcome.Outcome{
		{ID: "clo-1", Title: "Analyse algorithms", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsAnalyze, CourseID: "c1"},
		{ID: "clo-2", Title: "Design algorithms", Type: outcome.TypeCLO, BloomsLevel: outcome.BloomsCreate, CourseID: "c1"},
		{ID: "plo-1", Title: "Problem solving", Type: outcome.TypePLO, BloomsLevel: outcome.BloomsApply, ProgramID: "p1"},
		{ID: "ilo-1", Title: "Critical thinking", Type: outcome.TypeILO, BloomsLevel: outcome.BloomsEvaluate},
	} {
		if _, err := svc.CreateOutcome(ctx, o); err != nil {
			t.Fatalf("seed outcome %s: %v", o.ID, err)
		}
	}
	for _, m := range []outcome.Mapping{
		{SourceID: "clo-1", TargetID: "plo-1", Weight: 0.6},
		{SourceID: "clo-2", TargetID: "plo-1", Weight: 0.4},
		{SourceID: "plo-1", TargetID: "ilo-1", Weight: 1},
	} {
		if err := st.UpsertMapping(ctx, m, t0); err != nil {
			t.Fatalf("seed mapping: %v", err)
		}
	}
}

func levels(points ...float64) []grading.Level {
	labels := []string{"Beginning", "Developing", "Proficient", "Exemplary"}
	out := make([]grading.Level, len(points))
	for i, p := range points {
		out[i] = grading.Level{Label: labels[i], Points: p}
	}
	return out
}

func newGrading(st *store.Store) (*grading.Service, *attainment.Service) {
	now := func() time.Time { return time.Unix(t0+3600, 0) }
	att := attainment.NewService(st, logger.Nop(), now)
	svc := grading.NewService(st, st, att, logger.Nop())
	svc.Now = now
	svc.Spawn = func(f func()) { f() }
	return svc, att
}

func createAssignment(t *testing.T, svc *grading.Service, id string, dueAt int64) grading.Assignment {
	t.Helper()
	a, err := svc.CreateAssignment(context.Background(), grading.Assignment{
		ID: id, CourseID: "c1", TeacherID: "t1", Title: "Lab " + id, PublishedAt: t0, DueAt: dueAt,
		Rubric: grading.Rubric{Criteria: []grading.Criterion{
			{ID: "k1", Description: "Analysis", OutcomeID: "clo-1", MaxPoints: 10, Levels: levels(0, 4, 7, 10)},
			{ID: "k2", Description: "Design", OutcomeID: "clo-2", MaxPoints: 20, Levels: levels(0, 8, 15, 20)},
		}},
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return a
}

func attainmentOf(rep attainment.Report, id string) *float64 {
	for _, o := range rep.Outcomes {
		if o.OutcomeID == id {
			return o.Attainment
		}
	}
	return nil
}

func approx(p *float64, want float64) bool {
	return p != nil && math.Abs(*p-want) < 1e-9
}

func TestGradeOnceAndAttainmentRoundTrip(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	ctx := context.Background()
	svc, att := newGrading(st)

	a := createAssignment(t, svc, "as-1", t0+86400)
	got, err := st.GetAssignment(ctx, a.ID)
	if err != nil || len(got.Rubric.Criteria) != 2 || got.TotalPoints != 30 {
		t.Fatalf("assignment round trip: %+v err=%v", got, err)
	}
	sub, err := svc.Submit(ctx, a.ID, "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Submit(ctx, a.ID, "s1"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected duplicate submission conflict, got %v", err)
	}

	g, err := svc.SubmitGrade(ctx, sub.ID, grading.Selection{"k1": 2, "k2": 1}, "t1", "solid analysis")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if _, err := svc.SubmitGrade(ctx, sub.ID, grading.Selection{"k1": 3, "k2": 3}, "t1", ""); !errors.Is(err, apperr.ErrAlreadyGraded) {
		t.Fatalf("expected already graded, got %v", err)
	}
	// The store itself rejects a second grade even when the caller skips the check.
	dup := g
	dup.ID = "other"
	if err := st.CreateGrade(ctx, dup); !errors.Is(err, apperr.ErrAlreadyGraded) {
		t.Fatalf("store: expected already graded, got %v", err)
	}
	stored, err := st.GetSubmission(ctx, sub.ID)
	if err != nil || stored.TotalScore == nil || *stored.TotalScore != 15 || stored.GradedBy != "t1" {
		t.Fatalf("submission after grade: %+v err=%v", stored, err)
	}

	rep, err := att.Query(ctx, attainment.Scope{Kind: attainment.ScopeStudentCourse, StudentID: "s1", CourseID: "c1"}, "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for id, want := range map[string]float64{"clo-1": 70, "clo-2": 40, "plo-1": 58, "ilo-1": 58} {
		if p := attainmentOf(rep, id); !approx(p, want) {
			t.Fatalf("%s attainment = %v, want %v", id, p, want)
		}
	}
	perf, err := st.ListPerformance(ctx, "s1")
	if err != nil || len(perf) != 4 {
		t.Fatalf("cached performance: %+v err=%v", perf, err)
	}

	if _, err := svc.AmendGrade(ctx, g.ID, grading.Selection{"k1": 3, "k2": 3}, "t1", "regrade"); err != nil {
		t.Fatalf("amend: %v", err)
	}
	rep, _ = att.Query(ctx, attainment.Scope{Kind: attainment.ScopeStudentCourse, StudentID: "s1", CourseID: "c1"}, "plo-1")
	if len(rep.Outcomes) != 1 || !approx(rep.Outcomes[0].Attainment, 100) {
		t.Fatalf("amended plo-1 = %+v", rep.Outcomes)
	}
	orig, _ := st.GetGrade(ctx, g.ID)
	if orig.TotalScore != 15 {
		t.Fatalf("original grade must be immutable, got %v", orig.TotalScore)
	}
	facts, err := st.LoadFacts(ctx, "s1")
	if err != nil || facts.PerfectScores != 1 {
		t.Fatalf("perfect scores after amendment: %+v err=%v", facts, err)
	}

	events, err := st.Events.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 || events[0].Type != syncx.TypeGradeCreated || events[1].Type != syncx.TypeGradeAmended {
		t.Fatalf("event log = %+v", events)
	}
}

func TestAwardBadgeOnlyOnce(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	ctx := context.Background()
	eng := gamification.NewEngine(st, nil, logger.Nop(), nil)
	if err := eng.EnsureTemplates(ctx); err != nil {
		t.Fatalf("templates: %v", err)
	}
	// Re-running is an upsert.
	if err := eng.EnsureTemplates(ctx); err != nil {
		t.Fatalf("templates again: %v", err)
	}

	for i, want := range []bool{true, false} {
		created, err := st.AwardBadge(ctx, "s1", "streak_7", 50, t0)
		if err != nil || created != want {
			t.Fatalf("award %d: created=%v err=%v, want %v", i, created, err, want)
		}
	}
	p, err := st.GetProgress(ctx, "s1")
	if err != nil || p.XP != 50 || p.TotalBadges != 1 || p.Level != 1 {
		t.Fatalf("progress after duplicate award: %+v err=%v", p, err)
	}
	awards, _ := st.ListAwards(ctx, "s1")
	if len(awards) != 1 || awards[0].Name != "7-Day Streak" {
		t.Fatalf("awards = %+v", awards)
	}

	p, err = st.AddXP(ctx, "s1", 450, t0)
	if err != nil || p.XP != 500 || p.Level != 3 {
		t.Fatalf("add xp: %+v err=%v", p, err)
	}
	p.CurrentStreak, p.LongestStreak, p.LastActivityDate = 3, 5, "2023-11-14"
	if err := st.SaveStreak(ctx, p); err != nil {
		t.Fatalf("save streak: %v", err)
	}
	p, _ = st.GetProgress(ctx, "s1")
	if p.XP != 500 || p.CurrentStreak != 3 || p.LongestStreak != 5 {
		t.Fatalf("streak save must not touch xp: %+v", p)
	}
}

func TestLoadFactsCourseCLOs(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	ctx := context.Background()
	svc, _ := newGrading(st)
	a := createAssignment(t, svc, "as-1", 0)
	sub, _ := svc.Submit(ctx, a.ID, "s1")
	if _, err := svc.SubmitGrade(ctx, sub.ID, grading.Selection{"k1": 3, "k2": 2}, "t1", ""); err != nil {
		t.Fatalf("grade: %v", err)
	}

	f, err := st.LoadFacts(ctx, "s1")
	if err != nil {
		t.Fatalf("facts: %v", err)
	}
	clos := f.CourseCLOs["c1"]
	if len(clos) != 2 || !approx(clos["clo-1"], 100) || !approx(clos["clo-2"], 75) {
		t.Fatalf("course clos = %+v", clos)
	}
	if len(f.Submissions) != 1 || f.Submissions[0].PublishedAt != t0 {
		t.Fatalf("submissions = %+v", f.Submissions)
	}
	f2, _ := st.LoadFacts(ctx, "s2")
	if m, ok := f2.CourseCLOs["c1"]; !ok || len(m) != 2 || m["clo-1"] != nil {
		t.Fatalf("s2 should see the course CLOs without data: %+v", f2.CourseCLOs)
	}
}

func TestAlertDedupAndLifecycle(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	ctx := context.Background()
	now := time.Unix(t0, 0)
	svc := alerts.NewService(st, nil, 24*time.Hour, logger.Nop())
	svc.Now = func() time.Time { return now }

	raise := func() (alerts.Alert, bool) {
		a, created, err := svc.Raise(ctx, alerts.Alert{
			StudentID: "s1", Type: alerts.TypeInactivity, Priority: alerts.PriorityMedium,
			Title: "Student inactive", Context: map[string]any{"days_since_last_login": 8},
		})
		if err != nil {
			t.Fatalf("raise: %v", err)
		}
		return a, created
	}
	first, created := raise()
	if !created || first.AssignedTo != "t1" {
		t.Fatalf("first alert: %+v created=%v", first, created)
	}
	now = now.Add(23 * time.Hour)
	if again, created := raise(); created || again.ID != first.ID {
		t.Fatalf("duplicate inside window must be skipped: %+v created=%v", again, created)
	}

	ns, err := st.ListNotifications(ctx, "t1", true)
	if err != nil || len(ns) != 1 || ns[0].AlertID != first.ID {
		t.Fatalf("teacher notifications: %+v err=%v", ns, err)
	}
	if ns, _ := st.ListNotifications(ctx, "co1", false); len(ns) != 0 {
		t.Fatalf("medium priority must not reach the coordinator: %+v", ns)
	}
	if err := svc.MarkRead(ctx, first.ID, "t1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, first.ID, "co1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("mark read without notification: %v", err)
	}
	if ns, _ := st.ListNotifications(ctx, "t1", true); len(ns) != 0 {
		t.Fatalf("unread after mark read: %+v", ns)
	}

	ack, err := svc.Acknowledge(ctx, first.ID, "t1")
	if err != nil || ack.Status != alerts.StatusAcknowledged {
		t.Fatalf("acknowledge: %+v err=%v", ack, err)
	}
	if _, err := svc.Acknowledge(ctx, first.ID, "t1"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second acknowledge: %v", err)
	}
	if _, err := svc.Dismiss(ctx, first.ID, "t1"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	reloaded, _ := st.GetAlert(ctx, first.ID)
	if reloaded.Status != alerts.StatusDismissed || reloaded.AcknowledgedBy != "t1" || reloaded.Context["days_since_last_login"] != float64(8) {
		t.Fatalf("reloaded alert = %+v", reloaded)
	}
	if _, created := raise(); !created {
		t.Fatalf("a dismissed alert must not block a new one")
	}
	list, err := svc.List(ctx, alerts.Filter{StudentID: "s1", Type: alerts.TypeInactivity})
	if err != nil || len(list) != 2 {
		t.Fatalf("list alerts: %d err=%v", len(list), err)
	}
}

func TestAlertFactsAndRiskSignals(t *testing.T) {
	st := openStore(t)
	seed(t, st)
	ctx := context.Background()
	svc, _ := newGrading(st)
	due := t0 + 1800
	a := createAssignment(t, svc, "as-1", due)
	if _, err := svc.Submit(ctx, a.ID, "s1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := st.TouchLogin(ctx, "s1", t0+86400); err != nil {
		t.Fatalf("touch login: %v", err)
	}

	f1, err := st.StudentAlertFacts(ctx, "s1", due+1)
	if err != nil || len(f1.MissedAssignments) != 0 || f1.LastLoginAt != t0+86400 {
		t.Fatalf("s1 facts: %+v err=%v", f1, err)
	}
	f2, err := st.StudentAlertFacts(ctx, "s2", due+1)
	if err != nil || len(f2.MissedAssignments) != 1 || f2.LastLoginAt != t0 {
		t.Fatalf("s2 facts: %+v err=%v", f2, err)
	}
	if f, _ := st.StudentAlertFacts(ctx, "s2", due-1); len(f.MissedAssignments) != 0 {
		t.Fatalf("not yet due: %+v", f.MissedAssignments)
	}
	if _, err := st.StudentAlertFacts(ctx, "ghost", due); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown student: %v", err)
	}

	if err := st.SavePerformance(ctx, "s2", []attainment.Performance{
		{OutcomeID: "clo-1", AverageScore: 30, TotalSubmissions: 1, LastUpdated: t0},
		{OutcomeID: "clo-2", AverageScore: 45, TotalSubmissions: 1, LastUpdated: t0},
		{OutcomeID: "plo-1", AverageScore: 36, TotalSubmissions: 1, LastUpdated: t0},
	}, nil); err != nil {
		t.Fatalf("save performance: %v", err)
	}
	signals, err := st.ListRiskSignals(ctx, risk.Filter{CourseID: "c1"})
	if err != nil || len(signals) != 2 {
		t.Fatalf("risk signals: %+v err=%v", signals, err)
	}
	if s := signals[1]; s.StudentID != "s2" || len(s.CLOAttainment) != 2 || s.CLOAttainment["clo-1"] != 30 {
		t.Fatalf("s2 signals = %+v", s)
	}
	ids, _ := st.ListStudentIDs(ctx)
	if len(ids) != 2 || ids[0] != "s1" {
		t.Fatalf("student ids = %v", ids)
	}
	cands, err := st.Candidates(ctx, "s2")
	if err != nil || len(cands) != 3 || cands[0].Role != alerts.RoleTeacher || cands[2].UserID != "a1" {
		t.Fatalf("candidates = %+v err=%v", cands, err)
	}
}
