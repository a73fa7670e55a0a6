package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

type Assignment struct {
	ID          string  `json:"id"`
	CourseID    string  `json:"course_id"`
	TeacherID   string  `json:"teacher_id"`
	Title       string  `json:"title"`
	TotalPoints float64 `json:"total_points"`
	PublishedAt int64   `json:"published_at"`
	DueAt       int64   `json:"due_at"`
	Rubric      Rubric  `json:"rubric"`
	CreatedAt   int64   `json:"created_at,omitempty"`
}

// Submission is one student's hand-in for an assignment; at most one per pair.
type Submission struct {
	ID           string   `json:"id"`
	AssignmentID string   `json:"assignment_id"`
	StudentID    string   `json:"student_id"`
	SubmittedAt  int64    `json:"submitted_at"`
	TotalScore   *float64 `json:"total_score,omitempty"`
	Feedback     string   `json:"feedback,omitempty"` // grader's
	GradedAt     *int64   `json:"graded_at,omitempty"`
	GradedBy     string   `json:"graded_by,omitempty"`
}

// Grade is immutable once stored; corrections are Amendments.
type Grade struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	AssignmentID string `json:"assignment_id"`
	StudentID    string `json:"student_id"`
	Result
	Feedback string `json:"feedback,omitempty"`
	GradedBy string `json:"graded_by"`
	GradedAt int64  `json:"graded_at"`
}

type Amendment struct {
	ID      string `json:"id"`
	GradeID string `json:"grade_id"`
	Result
	Reason    string `json:"reason"`
	AmendedBy string `json:"amended_by"`
	AmendedAt int64  `json:"amended_at"`
}

type Store interface {
	CreateAssignment(ctx context.Context, a Assignment) error
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	CreateSubmission(ctx context.Context, s Submission) error // apperr.ErrConflict on a second (assignment, student)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	CreateGrade(ctx context.Context, g Grade) error // apperr.ErrAlreadyGraded when the submission has a grade
	GetGrade(ctx context.Context, id string) (Grade, error)
	CreateAmendment(ctx context.Context, a Amendment, studentID string) error
}

// OutcomeLookup resolves rubric criterion outcomes.
type OutcomeLookup interface {
	GetOutcome(ctx context.Context, id string) (outcome.Outcome, error)
}

// Recomputer rebuilds cached attainment for the outcomes an assignment touches.
type Recomputer interface {
	Recompute(ctx context.Context, studentID, assignmentID string) error
}

type GradeEvent struct {
	GradeID      string
	SubmissionID string
	AssignmentID string
	CourseID     string
	StudentID    string
	ScorePercent int
	Amended      bool
}

type SubmissionEvent struct {
	SubmissionID string
	AssignmentID string
	CourseID     string
	StudentID    string
	SubmittedAt  int64
	PublishedAt  int64
	DueAt        int64
}

type GradeListener interface {
	OnGrade(ctx context.Context, ev GradeEvent) error
}

type SubmissionListener interface {
	OnSubmission(ctx context.Context, ev SubmissionEvent) error
}

type GradeListenerFunc func(ctx context.Context, ev GradeEvent) error

func (f GradeListenerFunc) OnGrade(ctx context.Context, ev GradeEvent) error { return f(ctx, ev) }

type SubmissionListenerFunc func(ctx context.Context, ev SubmissionEvent) error

func (f SubmissionListenerFunc) OnSubmission(ctx context.Context, ev SubmissionEvent) error {
	return f(ctx, ev)
}

type Service struct {
	Store      Store
	Outcomes   OutcomeLookup
	Recomputer Recomputer

	GradeListeners      []GradeListener
	SubmissionListeners []SubmissionListener

	Log *logger.Logger
	Now func() time.Time
	// Spawn runs fire-and-forget side effects; defaults to a goroutine.
	Spawn func(func())
	// SideEffectTimeout bounds each detached side effect.
	SideEffectTimeout time.Duration
}

func NewService(st Store, outcomes OutcomeLookup, rc Recomputer, log *logger.Logger) *Service {
	return &Service{
		Store:             st,
		Outcomes:          outcomes,
		Recomputer:        rc,
		Log:               log.With("service", "GradingService"),
		Now:               time.Now,
		Spawn:             func(f func()) { go f() },
		SideEffectTimeout: 30 * time.Second,
	}
}

// CreateAssignment validates the rubric and that every criterion targets an
// active CLO of the assignment's course. TotalPoints is derived from the rubric.
func (s *Service) CreateAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	ve := apperr.Validation("invalid assignment")
	if strings.TrimSpace(a.Title) == "" {
		ve.WithField("title", "required")
	}
	if strings.TrimSpace(a.CourseID) == "" {
		ve.WithField("course_id", "required")
	}
	if a.DueAt != 0 && a.PublishedAt != 0 && a.DueAt < a.PublishedAt {
		ve.WithField("due_at", "must not be before published_at")
	}
	if len(ve.Fields) > 0 {
		return Assignment{}, ve
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r, err := NewRubric(a.ID, a.Rubric.Criteria)
	if err != nil {
		return Assignment{}, err
	}
	for _, c := range r.Criteria {
		o, err := s.Outcomes.GetOutcome(ctx, c.OutcomeID)
		if errors.Is(err, apperr.ErrNotFound) {
			return Assignment{}, apperr.Validation("criterion %s references unknown outcome %s", c.ID, c.OutcomeID)
		}
		if err != nil {
			return Assignment{}, err
		}
		if o.Type != outcome.TypeCLO || !o.IsActive || o.CourseID != a.CourseID {
			return Assignment{}, apperr.Validation("criterion %s must map to an active CLO of course %s", c.ID, a.CourseID)
		}
	}
	now := s.Now().Unix()
	if a.PublishedAt == 0 {
		a.PublishedAt = now
	}
	a.Rubric = r
	a.TotalPoints = r.MaxScore()
	a.CreatedAt = now
	if err := s.Store.CreateAssignment(ctx, a); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Submit records a student's submission. A second submission for the same
// assignment is a conflict.
func (s *Service) Submit(ctx context.Context, assignmentID, studentID string) (Submission, error) {
	if strings.TrimSpace(studentID) == "" {
		return Submission{}, apperr.Validation("student id required")
	}
	a, err := s.Store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		StudentID:    studentID,
		SubmittedAt:  s.Now().Unix(),
	}
	if err := s.Store.CreateSubmission(ctx, sub); err != nil {
		return Submission{}, err
	}
	ev := SubmissionEvent{
		SubmissionID: sub.ID, AssignmentID: a.ID, CourseID: a.CourseID, StudentID: studentID,
		SubmittedAt: sub.SubmittedAt, PublishedAt: a.PublishedAt, DueAt: a.DueAt,
	}
	for _, l := range s.SubmissionListeners {
		l := l
		s.fireAndForget("submission listener", func(ctx context.Context) error { return l.OnSubmission(ctx, ev) })
	}
	return sub, nil
}

// SubmitGrade scores a complete selection and stores exactly one grade for the
// submission. Attainment is recomputed before returning; listener side effects
// are detached and never affect the result.
func (s *Service) SubmitGrade(ctx context.Context, submissionID string, sel Selection, gradedBy, feedback string) (Grade, error) {
	sub, err := s.Store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Grade{}, err
	}
	if sub.GradedAt != nil {
		return Grade{}, fmt.Errorf("submission %s: %w", submissionID, apperr.ErrAlreadyGraded)
	}
	a, err := s.Store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return Grade{}, err
	}
	res, err := Score(a.Rubric, sel)
	if err != nil {
		return Grade{}, err
	}
	g := Grade{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		AssignmentID: a.ID,
		StudentID:    sub.StudentID,
		Result:       res,
		Feedback:     feedback,
		GradedBy:     gradedBy,
		GradedAt:     s.Now().Unix(),
	}
	if err := s.Store.CreateGrade(ctx, g); err != nil {
		return Grade{}, err
	}
	s.afterGrade(ctx, GradeEvent{
		GradeID: g.ID, SubmissionID: sub.ID, AssignmentID: a.ID, CourseID: a.CourseID,
		StudentID: sub.StudentID, ScorePercent: res.ScorePercent,
	})
	return g, nil
}

// AmendGrade appends a correction to an existing grade. The original grade row
// is left untouched; the newest amendment becomes the effective score.
func (s *Service) AmendGrade(ctx context.Context, gradeID string, sel Selection, amendedBy, reason string) (Amendment, error) {
	if strings.TrimSpace(reason) == "" {
		return Amendment{}, apperr.Validation("amendment reason required").WithField("reason", "required")
	}
	g, err := s.Store.GetGrade(ctx, gradeID)
	if err != nil {
		return Amendment{}, err
	}
	a, err := s.Store.GetAssignment(ctx, g.AssignmentID)
	if err != nil {
		return Amendment{}, err
	}
	res, err := Score(a.Rubric, sel)
	if err != nil {
		return Amendment{}, err
	}
	am := Amendment{
		ID:        uuid.NewString(),
		GradeID:   g.ID,
		Result:    res,
		Reason:    reason,
		AmendedBy: amendedBy,
		AmendedAt: s.Now().Unix(),
	}
	if err := s.Store.CreateAmendment(ctx, am, g.StudentID); err != nil {
		return Amendment{}, err
	}
	s.afterGrade(ctx, GradeEvent{
		GradeID: g.ID, SubmissionID: g.SubmissionID, AssignmentID: a.ID, CourseID: a.CourseID,
		StudentID: g.StudentID, ScorePercent: res.ScorePercent, Amended: true,
	})
	return am, nil
}

func (s *Service) afterGrade(ctx context.Context, ev GradeEvent) {
	if s.Recomputer != nil {
		if err := s.Recomputer.Recompute(ctx, ev.StudentID, ev.AssignmentID); err != nil {
			s.Log.Error("attainment recompute failed", "student_id", ev.StudentID, "assignment_id", ev.AssignmentID, "error", err)
		}
	}
	for _, l := range s.GradeListeners {
		l := l
		s.fireAndForget("grade listener", func(ctx context.Context) error { return l.OnGrade(ctx, ev) })
	}
}

func (s *Service) fireAndForget(name string, fn func(ctx context.Context) error) {
	spawn := s.Spawn
	if spawn == nil {
		spawn = func(f func()) { go f() }
	}
	timeout := s.SideEffectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	spawn(func() {
		defer func() {
			if p := recover(); p != nil {
				s.Log.Error("side effect panicked", "listener", name, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.Log.Warn("side effect failed", "listener", name, "error", err)
		}
	})
}

// SubmissionCourse returns the course a submission belongs to.
func (s *Service) SubmissionCourse(ctx context.Context, submissionID string) (string, error) {
	sub, err := s.Store.GetSubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}
	a, err := s.Store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return "", err
	}
	return a.CourseID, nil
}

// GradeCourse returns the course a grade belongs to.
func (s *Service) GradeCourse(ctx context.Context, gradeID string) (string, error) {
	g, err := s.Store.GetGrade(ctx, gradeID)
	if err != nil {
		return "", err
	}
	a, err := s.Store.GetAssignment(ctx, g.AssignmentID)
	if err != nil {
		return "", err
	}
	return a.CourseID, nil
}
