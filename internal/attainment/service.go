package attainment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

type ScopeKind string

const (
	ScopeStudentCourse ScopeKind = "student_course"
	ScopeCourse        ScopeKind = "course"  // cohort of one course
	ScopeProgram       ScopeKind = "program" // cohort of every course in a program
)

type Scope struct {
	Kind      ScopeKind `json:"kind"`
	StudentID string    `json:"student_id,omitempty"`
	CourseID  string    `json:"course_id,omitempty"`
	ProgramID string    `json:"program_id,omitempty"`
}

func (s Scope) Validate() error {
	ve := apperr.Validation("invalid attainment scope")
	switch s.Kind {
	case ScopeStudentCourse:
		if s.StudentID == "" {
			ve.WithField("student_id", "required for student_course scope")
		}
		if s.CourseID == "" {
			ve.WithField("course_id", "required for student_course scope")
		}
	case ScopeCourse:
		if s.CourseID == "" {
			ve.WithField("course_id", "required for course scope")
		}
	case ScopeProgram:
		if s.ProgramID == "" {
			ve.WithField("program_id", "required for program scope")
		}
	default:
		ve.WithField("kind", fmt.Sprintf("unknown scope %q", s.Kind))
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// WorkFilter restricts graded work. Empty fields match everything.
type WorkFilter struct {
	StudentID string
	CourseIDs []string
}

// Performance is one cached (student, outcome) attainment row.
type Performance struct {
	StudentID        string  `json:"student_id"`
	OutcomeID        string  `json:"outcome_id"`
	AverageScore     float64 `json:"average_score"`
	TotalSubmissions int     `json:"total_submissions"`
	LastUpdated      int64   `json:"last_updated"`
}

type Store interface {
	outcome.GraphSource
	ListGradedWork(ctx context.Context, f WorkFilter) ([]GradedWork, error)
	ListProgramCourses(ctx context.Context, programID string) ([]string, error)
	AssignmentOutcomes(ctx context.Context, assignmentID string) ([]string, error)
	// SavePerformance upserts rows and deletes the (student, outcome) rows
	// listed in clear, in one transaction.
	SavePerformance(ctx context.Context, studentID string, rows []Performance, clear []string) error
}

// OutcomeAttainment is one line of an attainment report.
type OutcomeAttainment struct {
	OutcomeID string       `json:"outcome_id"`
	Type      outcome.Type `json:"type"`
	Title     string       `json:"title"`
	Value
}

type Report struct {
	Scope    Scope               `json:"scope"`
	Outcomes []OutcomeAttainment `json:"outcomes"`
}

type Service struct {
	Store Store
	Log   *logger.Logger
	Now   func() time.Time
}

func NewService(st Store, log *logger.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{Store: st, Log: log.With("service", "AttainmentService"), Now: now}
}

// Query computes attainment from source data for the scope. When outcomeID is
// set the report holds just that outcome, possibly undefined.
func (s *Service) Query(ctx context.Context, sc Scope, outcomeID string) (Report, error) {
	if err := sc.Validate(); err != nil {
		return Report{}, err
	}
	g, err := outcome.LoadGraph(ctx, s.Store, true)
	if err != nil {
		return Report{}, err
	}

	var courses []string
	switch sc.Kind {
	case ScopeStudentCourse, ScopeCourse:
		courses = []string{sc.CourseID}
	case ScopeProgram:
		if courses, err = s.Store.ListProgramCourses(ctx, sc.ProgramID); err != nil {
			return Report{}, fmt.Errorf("program courses: %w", err)
		}
	}

	values := map[string]Value{}
	if len(courses) > 0 {
		work, err := s.Store.ListGradedWork(ctx, WorkFilter{StudentID: sc.StudentID, CourseIDs: courses})
		if err != nil {
			return Report{}, fmt.Errorf("graded work: %w", err)
		}
		if sc.Kind == ScopeStudentCourse {
			values = Propagate(g, Leaves(work))
		} else {
			values = Cohort(perStudent(g, work))
		}
	}

	ids := relevant(g, sc, courses)
	if outcomeID != "" {
		if _, ok := g.Outcome(outcomeID); !ok {
			return Report{}, apperr.NotFound("outcome", outcomeID)
		}
		ids = []string{outcomeID}
	}
	rep := Report{Scope: sc, Outcomes: make([]OutcomeAttainment, 0, len(ids))}
	for _, id := range ids {
		o, _ := g.Outcome(id)
		rep.Outcomes = append(rep.Outcomes, OutcomeAttainment{OutcomeID: id, Type: o.Type, Title: o.Title, Value: values[id]})
	}
	return rep, nil
}

// Recompute rebuilds the student's cached attainment for the CLOs on the
// assignment's rubric and every outcome above them.
func (s *Service) Recompute(ctx context.Context, studentID, assignmentID string) error {
	g, err := outcome.LoadGraph(ctx, s.Store, true)
	if err != nil {
		return err
	}
	clos, err := s.Store.AssignmentOutcomes(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("assignment outcomes: %w", err)
	}
	affected := append(append([]string(nil), clos...), g.Ancestors(clos...)...)
	return s.rebuild(ctx, g, studentID, affected)
}

// RecomputeStudent rebuilds every cached outcome for the student from scratch.
func (s *Service) RecomputeStudent(ctx context.Context, studentID string) error {
	g, err := outcome.LoadGraph(ctx, s.Store, false)
	if err != nil {
		return err
	}
	var all []string
	for _, t := range []outcome.Type{outcome.TypeCLO, outcome.TypePLO, outcome.TypeILO} {
		for _, o := range g.Outcomes(t) {
			all = append(all, o.ID)
		}
	}
	active, err := outcome.LoadGraph(ctx, s.Store, true)
	if err != nil {
		return err
	}
	return s.rebuild(ctx, active, studentID, all)
}

func (s *Service) rebuild(ctx context.Context, g *outcome.Graph, studentID string, affected []string) error {
	work, err := s.Store.ListGradedWork(ctx, WorkFilter{StudentID: studentID})
	if err != nil {
		return fmt.Errorf("graded work: %w", err)
	}
	values := Propagate(g, Leaves(work))
	now := s.Now().Unix()

	var rows []Performance
	var clear []string
	for _, id := range affected {
		v, ok := values[id]
		if !ok || !v.Defined() {
			clear = append(clear, id)
			continue
		}
		rows = append(rows, Performance{
			StudentID: studentID, OutcomeID: id,
			AverageScore: *v.Attainment, TotalSubmissions: v.SampleSize, LastUpdated: now,
		})
	}
	if err := s.Store.SavePerformance(ctx, studentID, rows, clear); err != nil {
		return fmt.Errorf("save performance: %w", err)
	}
	s.Log.Debug("attainment recomputed", "student_id", studentID, "updated", len(rows), "cleared", len(clear))
	return nil
}

func perStudent(g *outcome.Graph, work []GradedWork) []map[string]Value {
	byStudent := map[string][]GradedWork{}
	for _, w := range work {
		byStudent[w.StudentID] = append(byStudent[w.StudentID], w)
	}
	out := make([]map[string]Value, 0, len(byStudent))
	for _, ws := range byStudent {
		out = append(out, Propagate(g, Leaves(ws)))
	}
	return out
}

// relevant lists the outcomes a scope reports on, bottom-up.
func relevant(g *outcome.Graph, sc Scope, courses []string) []string {
	inCourse := map[string]bool{}
	for _, c := range courses {
		inCourse[c] = true
	}
	set := map[string]bool{}
	var clos []string
	for _, o := range g.Outcomes(outcome.TypeCLO) {
		if inCourse[o.CourseID] {
			set[o.ID] = true
			clos = append(clos, o.ID)
		}
	}
	for _, id := range g.Ancestors(clos...) {
		set[id] = true
	}
	if sc.Kind == ScopeProgram {
		for _, o := range g.Outcomes(outcome.TypePLO) {
			if o.ProgramID == sc.ProgramID {
				set[o.ID] = true
				for _, id := range g.Ancestors(o.ID) {
					set[id] = true
				}
			}
		}
	}
	ids := sortedKeys(set)
	sort.SliceStable(ids, func(i, j int) bool {
		oi, _ := g.Outcome(ids[i])
		oj, _ := g.Outcome(ids[j])
		return oi.Type.Rank() < oj.Type.Rank()
	})
	return ids
}
