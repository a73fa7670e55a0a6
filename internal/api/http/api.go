package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/attainment"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
	"github.com/mind-engage/mindengage-obe/internal/risk"
	"github.com/mind-engage/mindengage-obe/internal/store"
	"github.com/mind-engage/mindengage-obe/internal/sweep"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

// Directory is the people/course side the handlers need.
type Directory interface {
	CreateUser(ctx context.Context, u store.User) error
	ListUsers(ctx context.Context, role string) ([]store.User, error)
	CreateProgram(ctx context.Context, p store.Program) error
	CreateCourse(ctx context.Context, c store.Course) error
	Enroll(ctx context.Context, studentID, courseID string, at int64) error
	TeacherStudentIDs(ctx context.Context, teacherID string) ([]string, error)
	ListStudentIDs(ctx context.Context) ([]string, error)
	CourseTeacher(ctx context.Context, courseID string) (string, error)
}

// PerformanceLister reads the cached attainment rows kept by recompute.
type PerformanceLister interface {
	ListPerformance(ctx context.Context, studentID string) ([]attainment.Performance, error)
}

type EventLister interface {
	List(ctx context.Context, afterSeq int64, limit int) ([]syncx.Event, error)
}

// API holds the services behind the protected routes.
type API struct {
	Outcomes    *outcome.Service
	Grading     *grading.Service
	Attainment  *attainment.Service
	Badges      *gamification.Engine
	Alerts      *alerts.Service
	Generator   *alerts.Generator
	Risk        *risk.Detector
	Sweep       *sweep.Scheduler
	Directory   Directory
	Performance PerformanceLister
	Events      EventLister
	Log         *logger.Logger
}

// Routes mounts every protected route. Callers put JWT and role middleware in front.
func (a *API) Routes(r chi.Router) {
	r.With(rbac.Require("outcomes:manage")).Post("/outcomes", a.CreateOutcome)
	r.With(rbac.Require("outcomes:view")).Get("/outcomes", a.ListOutcomes)
	r.With(rbac.Require("outcomes:manage")).Put("/outcomes/{id}", a.ReviseOutcome)
	r.With(rbac.Require("outcomes:manage")).Delete("/outcomes/{id}", a.DeactivateOutcome)
	r.With(rbac.Require("outcomes:view")).Get("/outcomes/{id}/weights", a.OutcomeWeights)
	r.With(rbac.Require("mappings:manage")).Put("/outcome-mappings", a.UpsertMapping)

	r.With(rbac.Require("assignments:create")).Post("/assignments", a.CreateAssignment)
	r.With(rbac.Require("submissions:create")).Post("/submissions", a.CreateSubmission)
	r.With(rbac.Require("grades:submit")).Post("/submissions/{id}/grade", a.SubmitGrade)
	r.With(rbac.Require("grades:amend")).Post("/grades/{id}/amendments", a.AmendGrade)

	r.With(rbac.RequireAny("attainment:view", "attainment:view-own")).Get("/attainment", a.QueryAttainment)
	r.With(rbac.Require("attainment:recompute")).Post("/attainment/recompute", a.RecomputeAttainment)

	r.Route("/students/{id}", func(sr chi.Router) {
		sr.With(rbac.RequireOwnerOr("attainment:view", ownStudent)).Get("/performance", a.StudentPerformance)
		sr.With(rbac.RequireOwnerOr("badges:view", ownStudent)).Get("/badges", a.StudentBadges)
		sr.With(rbac.Require("badges:check")).Post("/badges/check", a.CheckBadges)
		sr.With(rbac.RequireOwnerOr("activity:record", ownStudent)).Post("/activity", a.RecordActivity)
		sr.With(rbac.RequireOwnerOr("journal:write", ownStudent)).Post("/journal", a.AddJournalEntry)
		sr.With(rbac.Require("xp:award")).Post("/xp", a.AwardXP)
		sr.With(rbac.Require("alerts:manage")).Post("/alerts/check", a.CheckStudentAlerts)
	})

	r.With(rbac.Require("alerts:view")).Get("/alerts", a.ListAlerts)
	r.With(rbac.Require("alerts:help")).Post("/alerts/help", a.RequestHelp)
	r.With(rbac.Require("alerts:manage")).Post("/alerts/{id}/{action:acknowledge|resolve|dismiss}", a.TransitionAlert)
	r.With(rbac.Require("alerts:view")).Post("/alerts/{id}/read", a.MarkAlertRead)
	r.With(rbac.Require("alerts:view")).Get("/notifications", a.ListNotifications)

	r.With(rbac.Require("risk:view")).Get("/at-risk", a.AtRisk)
	r.With(rbac.Require("sweep:run")).Post("/sweep/run", a.RunSweep)
	r.With(rbac.Require("events:view")).Get("/events", a.ListEvents)

	r.With(rbac.Require("users:manage")).Post("/users", a.CreateUser)
	r.With(rbac.Require("users:manage")).Get("/users", a.ListUsers)
	r.With(rbac.Require("courses:manage")).Post("/programs", a.CreateProgram)
	r.With(rbac.Require("courses:manage")).Post("/courses", a.CreateCourse)
	r.With(rbac.Require("courses:manage")).Post("/courses/{id}/enrollments", a.Enroll)
}

func subject(r *http.Request) string { return rbac.SubjectFromContext(r.Context()) }

func role(r *http.Request) string { return rbac.RoleFromContext(r.Context()) }

// teachesCourse lets coordinators and admins through; a teacher must be the
// course's assigned teacher.
func (a *API) teachesCourse(r *http.Request, courseID string) (bool, error) {
	if role(r) != rbac.RoleTeacher {
		return true, nil
	}
	t, err := a.Directory.CourseTeacher(r.Context(), courseID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t != "" && t == subject(r), nil
}

// requireCourse writes 403 or the lookup error and reports false when the
// caller may not act on courseID.
func (a *API) requireCourse(w http.ResponseWriter, r *http.Request, courseID string) bool {
	ok, err := a.teachesCourse(r, courseID)
	if err != nil {
		writeError(w, a.Log, err)
		return false
	}
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func ownStudent(r *http.Request) bool {
	sub := subject(r)
	return sub != "" && sub == chi.URLParam(r, "id")
}
