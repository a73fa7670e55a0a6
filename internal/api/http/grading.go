package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
)

type levelReq struct {
	Label       string  `json:"label" validate:"notblank"`
	Description string  `json:"description"`
	Points      float64 `json:"points" validate:"gte=0"`
}

type criterionReq struct {
	ID          string     `json:"id" validate:"notblank"`
	Description string     `json:"description"`
	OutcomeID   string     `json:"outcome_id" validate:"required"`
	MaxPoints   float64    `json:"max_points" validate:"gt=0"`
	Weight      float64    `json:"weight" validate:"gte=0"`
	Levels      []levelReq `json:"levels" validate:"required,min=1,dive"`
}

type createAssignmentReq struct {
	ID          string         `json:"id"`
	CourseID    string         `json:"course_id" validate:"required"`
	Title       string         `json:"title" validate:"notblank,max=300"`
	PublishedAt int64          `json:"published_at" validate:"gte=0"`
	DueAt       int64          `json:"due_at" validate:"gte=0"`
	Criteria    []criterionReq `json:"criteria" validate:"required,min=1,dive"`
}

// CreateAssignment stores an assignment with its rubric; the caller becomes its
// teacher. Teachers may only create assignments in courses they teach.
func (a *API) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if !a.requireCourse(w, r, req.CourseID) {
		return
	}
	criteria := make([]grading.Criterion, 0, len(req.Criteria))
	for _, c := range req.Criteria {
		levels := make([]grading.Level, 0, len(c.Levels))
		for _, l := range c.Levels {
			levels = append(levels, grading.Level{Label: l.Label, Description: l.Description, Points: l.Points})
		}
		criteria = append(criteria, grading.Criterion{
			ID: c.ID, Description: c.Description, OutcomeID: c.OutcomeID,
			MaxPoints: c.MaxPoints, Weight: c.Weight, Levels: levels,
		})
	}
	out, err := a.Grading.CreateAssignment(r.Context(), grading.Assignment{
		ID:          req.ID,
		CourseID:    req.CourseID,
		TeacherID:   subject(r),
		Title:       req.Title,
		PublishedAt: req.PublishedAt,
		DueAt:       req.DueAt,
		Rubric:      grading.Rubric{Criteria: criteria},
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type submitReq struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	StudentID    string `json:"student_id"`
}

// CreateSubmission records a submission. Students always submit as themselves.
func (a *API) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	studentID := req.StudentID
	if role(r) == rbac.RoleStudent || studentID == "" {
		studentID = subject(r)
	}
	sub, err := a.Grading.Submit(r.Context(), req.AssignmentID, studentID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type gradeReq struct {
	Selections grading.Selection `json:"selections" validate:"required"`
	Feedback   string            `json:"feedback" validate:"max=10000"`
}

func (a *API) SubmitGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	course, err := a.Grading.SubmissionCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if !a.requireCourse(w, r, course) {
		return
	}
	g, err := a.Grading.SubmitGrade(r.Context(), chi.URLParam(r, "id"), req.Selections, subject(r), req.Feedback)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type amendReq struct {
	Selections grading.Selection `json:"selections" validate:"required"`
	Reason     string            `json:"reason" validate:"notblank,max=2000"`
}

func (a *API) AmendGrade(w http.ResponseWriter, r *http.Request) {
	var req amendReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	course, err := a.Grading.GradeCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if !a.requireCourse(w, r, course) {
		return
	}
	am, err := a.Grading.AmendGrade(r.Context(), chi.URLParam(r, "id"), req.Selections, subject(r), req.Reason)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, am)
}
