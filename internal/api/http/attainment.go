package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-obe/internal/attainment"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
)

// QueryAttainment computes attainment for ?kind=student_course|course|program.
// Callers without attainment:view only see their own student_course numbers;
// teachers are limited to courses they teach.
func (a *API) QueryAttainment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sc := attainment.Scope{
		Kind:      attainment.ScopeKind(q.Get("kind")),
		StudentID: q.Get("student_id"),
		CourseID:  q.Get("course_id"),
		ProgramID: q.Get("program_id"),
	}
	if sc.Kind == "" {
		sc.Kind = attainment.ScopeStudentCourse
	}
	if !rbac.Can(role(r), "attainment:view") {
		if sc.Kind != attainment.ScopeStudentCourse {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		sc.StudentID = subject(r)
	}
	if role(r) == rbac.RoleTeacher {
		switch {
		case sc.Kind == attainment.ScopeProgram:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		case sc.CourseID != "" && !a.requireCourse(w, r, sc.CourseID):
			return
		}
	}
	rep, err := a.Attainment.Query(r.Context(), sc, q.Get("outcome_id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type recomputeReq struct {
	StudentIDs []string `json:"student_ids" validate:"omitempty,dive,required"`
}

// RecomputeAttainment rebuilds cached attainment for the listed students, or
// for every student when the list is empty.
func (a *API) RecomputeAttainment(w http.ResponseWriter, r *http.Request) {
	var req recomputeReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	ids := req.StudentIDs
	if len(ids) == 0 {
		var err error
		if ids, err = a.Directory.ListStudentIDs(r.Context()); err != nil {
			writeError(w, a.Log, err)
			return
		}
	}
	for _, id := range ids {
		if err := a.Attainment.RecomputeStudent(r.Context(), id); err != nil {
			writeError(w, a.Log, err)
			return
		}
	}
	a.Log.Info("attainment recomputed", "students", len(ids), "by", subject(r))
	writeJSON(w, http.StatusOK, map[string]any{"recomputed": len(ids)})
}

// StudentPerformance returns the cached per-outcome rows, which is what the
// risk detector and badge rules read.
func (a *API) StudentPerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := a.Performance.ListPerformance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if rows == nil {
		rows = []attainment.Performance{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": chi.URLParam(r, "id"), "performance": rows})
}
