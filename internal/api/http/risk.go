package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-obe/internal/rbac"
	"github.com/mind-engage/mindengage-obe/internal/risk"
	syncx "github.com/mind-engage/mindengage-obe/internal/sync"
)

// AtRisk lists flagged students. Teachers only see students in their courses.
func (a *API) AtRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := risk.Filter{CourseID: q.Get("course_id"), ProgramID: q.Get("program_id")}
	if role(r) == rbac.RoleTeacher {
		ids, err := a.Directory.TeacherStudentIDs(r.Context(), subject(r))
		if err != nil {
			writeError(w, a.Log, err)
			return
		}
		if len(ids) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"students": []risk.Assessment{}})
			return
		}
		f.StudentIDs = ids
	}
	out, err := a.Risk.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out})
}

// RunSweep runs one badge and alert sweep synchronously. It outlives a client
// disconnect so a run is never cut short halfway.
func (a *API) RunSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Sweep.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListEvents pages through the local change log with ?after=<seq>&limit=<n>.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, _ := strconv.ParseInt(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	evs, err := a.Events.List(r.Context(), after, limit)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if evs == nil {
		evs = []syncx.Event{}
	}
	next := after
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs, "next": next})
}
