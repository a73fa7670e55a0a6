package grading_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/logger/loggertest"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

/* ---------------- in-memory fakes ---------------- */

type fakeStore struct {
	mu          sync.Mutex
	assignments map[string]grading.Assignment
	submissions map[string]grading.Submission
	grades      map[string]grading.Grade
	amendments  []grading.Amendment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assignments: map[string]grading.Assignment{},
		submissions: map[string]grading.Submission{},
		grades:      map[string]grading.Grade{},
	}
}

func (s *fakeStore) CreateAssignment(_ context.Context, a grading.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID] = a
	return nil
}

func (s *fakeStore) GetAssignment(_ context.Context, id string) (grading.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return grading.Assignment{}, apperr.NotFound("assignment", id)
	}
	return a, nil
}

func (s *fakeStore) CreateSubmission(_ context.Context, sub grading.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.submissions {
		if x.AssignmentID == sub.AssignmentID && x.StudentID == sub.StudentID {
			return apperr.ErrConflict
		}
	}
	s.submissions[sub.ID] = sub
	return nil
}

func (s *fakeStore) GetSubmission(_ context.Context, id string) (grading.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return grading.Submission{}, apperr.NotFound("submission", id)
	}
	return sub, nil
}

func (s *fakeStore) CreateGrade(_ context.Context, g grading.Grade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.grades {
		if x.SubmissionID == g.SubmissionID {
			return apperr.ErrAlreadyGraded
		}
	}
	s.grades[g.ID] = g
	sub := s.submissions[g.SubmissionID]
	total := g.TotalScore
	sub.TotalScore = &total
	at := g.GradedAt
	sub.GradedAt = &at
	sub.GradedBy = g.GradedBy
	s.submissions[sub.ID] = sub
	return nil
}

func (s *fakeStore) GetGrade(_ context.Context, id string) (grading.Grade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grades[id]
	if !ok {
		return grading.Grade{}, apperr.NotFound("grade", id)
	}
	return g, nil
}

func (s *fakeStore) CreateAmendment(_ context.Context, a grading.Amendment, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amendments = append(s.amendments, a)
	return nil
}

type fakeOutcomes map[string]outcome.Outcome

func (f fakeOutcomes) GetOutcome(_ context.Context, id string) (outcome.Outcome, error) {
	o, ok := f[id]
	if !ok {
		return outcome.Outcome{}, apperr.NotFound("outcome", id)
	}
	return o, nil
}

type recordingRecomputer struct {
	calls []string
	err   error
}

func (r *recordingRecomputer) Recompute(_ context.Context, studentID, assignmentID string) error {
	r.calls = append(r.calls, studentID+"|"+assignmentID)
	return r.err
}

func courseOutcomes() fakeOutcomes {
	return fakeOutcomes{
		"clo-a":   {ID: "clo-a", Type: outcome.TypeCLO, CourseID: "course-1", IsActive: true},
		"clo-b":   {ID: "clo-b", Type: outcome.TypeCLO, CourseID: "course-1", IsActive: true},
		"clo-old": {ID: "clo-old", Type: outcome.TypeCLO, CourseID: "course-1", IsActive: false},
		"clo-x":   {ID: "clo-x", Type: outcome.TypeCLO, CourseID: "course-2", IsActive: true},
		"plo-1":   {ID: "plo-1", Type: outcome.TypePLO, ProgramID: "p1", IsActive: true},
	}
}

func newTestService(st *fakeStore, rc grading.Recomputer) *grading.Service {
	svc := grading.NewService(st, courseOutcomes(), rc, logger.Nop())
	svc.Now = func() time.Time { return time.Unix(1700000000, 0) }
	svc.Spawn = func(f func()) { f() }
	return svc
}

func seedSubmission(t *testing.T, svc *grading.Service) (grading.Assignment, grading.Submission) {
	t.Helper()
	a, err := svc.CreateAssignment(context.Background(), grading.Assignment{
		ID: "as-1", CourseID: "course-1", TeacherID: "t1", Title: "Lab 1",
		Rubric: grading.Rubric{Criteria: twoCriteria()},
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	sub, err := svc.Submit(context.Background(), a.ID, "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return a, sub
}

/* ---------------- tests ---------------- */

func TestCreateAssignment_DerivesTotalPoints(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	a, _ := seedSubmission(t, svc)
	if a.TotalPoints != 30 {
		t.Fatalf("total points = %v, want 30", a.TotalPoints)
	}
	if a.PublishedAt != 1700000000 {
		t.Fatalf("published_at should default to now, got %d", a.PublishedAt)
	}
}

func TestCreateAssignment_CriterionOutcomeMustBeActiveCourseCLO(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	for _, oid := range []string{"clo-old", "clo-x", "plo-1", "missing"} {
		criteria := twoCriteria()
		criteria[1].OutcomeID = oid
		_, err := svc.CreateAssignment(context.Background(), grading.Assignment{
			CourseID: "course-1", Title: "Lab", Rubric: grading.Rubric{Criteria: criteria},
		})
		if !apperr.IsValidation(err) {
			t.Fatalf("outcome %s: expected validation error, got %v", oid, err)
		}
	}
}

func TestSubmit_SecondSubmissionConflicts(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	a, _ := seedSubmission(t, svc)
	if _, err := svc.Submit(context.Background(), a.ID, "s1"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSubmitGrade_SecondGradeRejected(t *testing.T) {
	st := newFakeStore()
	rc := &recordingRecomputer{}
	svc := newTestService(st, rc)
	_, sub := seedSubmission(t, svc)

	g, err := svc.SubmitGrade(context.Background(), sub.ID, grading.Selection{"c1": 2, "c2": 2}, "t1", "good")
	if err != nil {
		t.Fatalf("first grade: %v", err)
	}
	if g.ScorePercent != 73 {
		t.Fatalf("score percent = %d, want 73", g.ScorePercent)
	}
	if _, err := svc.SubmitGrade(context.Background(), sub.ID, grading.Selection{"c1": 3, "c2": 3}, "t2", ""); !errors.Is(err, apperr.ErrAlreadyGraded) {
		t.Fatalf("expected already graded, got %v", err)
	}
	stored := st.grades[g.ID]
	if stored.TotalScore != 22 || stored.GradedBy != "t1" || len(st.grades) != 1 {
		t.Fatalf("original grade changed: %+v", stored)
	}
	if len(rc.calls) != 1 || rc.calls[0] != "s1|as-1" {
		t.Fatalf("recompute calls = %v", rc.calls)
	}
}

func TestSubmitGrade_StoreRaceMapsToAlreadyGraded(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, nil)
	_, sub := seedSubmission(t, svc)
	// A concurrent grader won between our read and our insert.
	st.grades["other"] = grading.Grade{ID: "other", SubmissionID: sub.ID}

	if _, err := svc.SubmitGrade(context.Background(), sub.ID, grading.Selection{"c1": 0, "c2": 0}, "t1", ""); !errors.Is(err, apperr.ErrAlreadyGraded) {
		t.Fatalf("expected already graded, got %v", err)
	}
}

func TestSubmitGrade_ListenerFailuresDoNotFailGrading(t *testing.T) {
	st := newFakeStore()
	rc := &recordingRecomputer{err: errors.New("db down")}
	svc := newTestService(st, rc)
	log, logs := loggertest.Observed()
	svc.Log = log

	var got []grading.GradeEvent
	svc.GradeListeners = []grading.GradeListener{
		grading.GradeListenerFunc(func(_ context.Context, ev grading.GradeEvent) error {
			got = append(got, ev)
			return errors.New("badge engine unavailable")
		}),
		grading.GradeListenerFunc(func(context.Context, grading.GradeEvent) error {
			panic("boom")
		}),
	}
	_, sub := seedSubmission(t, svc)

	if _, err := svc.SubmitGrade(context.Background(), sub.ID, grading.Selection{"c1": 3, "c2": 3}, "t1", ""); err != nil {
		t.Fatalf("grading must succeed despite listener errors: %v", err)
	}
	if len(got) != 1 || got[0].StudentID != "s1" || got[0].CourseID != "course-1" || got[0].ScorePercent != 100 {
		t.Fatalf("listener events = %+v", got)
	}
	if n := logs.FilterMessage("side effect failed").Len(); n != 1 {
		t.Fatalf("expected 1 logged listener failure, got %d", n)
	}
	if n := logs.FilterMessage("side effect panicked").Len(); n != 1 {
		t.Fatalf("expected 1 logged panic, got %d", n)
	}
	if n := logs.FilterMessage("attainment recompute failed").Len(); n != 1 {
		t.Fatalf("expected recompute failure to be logged, got %d", n)
	}
}

func TestSubmit_FiresSubmissionListeners(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	var evs []grading.SubmissionEvent
	svc.SubmissionListeners = []grading.SubmissionListener{
		grading.SubmissionListenerFunc(func(_ context.Context, ev grading.SubmissionEvent) error {
			evs = append(evs, ev)
			return nil
		}),
	}
	seedSubmission(t, svc)
	if len(evs) != 1 || evs[0].PublishedAt != 1700000000 || evs[0].AssignmentID != "as-1" {
		t.Fatalf("submission events = %+v", evs)
	}
}

func TestAmendGrade(t *testing.T) {
	st := newFakeStore()
	rc := &recordingRecomputer{}
	svc := newTestService(st, rc)
	_, sub := seedSubmission(t, svc)
	g, err := svc.SubmitGrade(context.Background(), sub.ID, grading.Selection{"c1": 1, "c2": 1}, "t1", "")
	if err != nil {
		t.Fatalf("grade: %v", err)
	}

	if _, err := svc.AmendGrade(context.Background(), g.ID, grading.Selection{"c1": 3, "c2": 3}, "t1", " "); !apperr.IsValidation(err) {
		t.Fatalf("expected reason to be required, got %v", err)
	}
	am, err := svc.AmendGrade(context.Background(), g.ID, grading.Selection{"c1": 3, "c2": 3}, "t1", "regrade request")
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if am.ScorePercent != 100 || len(st.amendments) != 1 {
		t.Fatalf("amendment = %+v", am)
	}
	if st.grades[g.ID].TotalScore != 12 {
		t.Fatalf("original grade must stay untouched, got %+v", st.grades[g.ID])
	}
	if len(rc.calls) != 2 {
		t.Fatalf("amendment should trigger recompute, calls=%v", rc.calls)
	}
}
