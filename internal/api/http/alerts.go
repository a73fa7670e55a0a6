package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
)

// ListAlerts narrows the filter by the caller's alert view before querying.
func (a *API) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alerts.Filter{
		StudentID: q.Get("student_id"),
		Status:    alerts.Status(q.Get("status")),
		Type:      alerts.Type(q.Get("type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	switch rbac.AlertViewFor(role(r)) {
	case rbac.AlertViewOwn:
		f.StudentID = subject(r)
	case rbac.AlertViewStudents:
		ids, err := a.Directory.TeacherStudentIDs(r.Context(), subject(r))
		if err != nil {
			writeError(w, a.Log, err)
			return
		}
		if f.StudentID != "" && !contains(ids, f.StudentID) {
			ids = nil
		}
		f.StudentIDs = ids
		f.AssignedTo = subject(r)
	case rbac.AlertViewAll:
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	out, err := a.Alerts.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

type helpReq struct {
	Message  string `json:"message" validate:"notblank,max=2000"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
}

// RequestHelp raises a help request for the calling student.
func (a *API) RequestHelp(w http.ResponseWriter, r *http.Request) {
	var req helpReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	al, created, err := a.Generator.RequestHelp(r.Context(), subject(r), req.Message, alerts.Priority(req.Priority))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"alert": al, "created": created})
}

func (a *API) TransitionAlert(w http.ResponseWriter, r *http.Request) {
	id, by := chi.URLParam(r, "id"), subject(r)
	var (
		al  alerts.Alert
		err error
	)
	switch chi.URLParam(r, "action") {
	case "acknowledge":
		al, err = a.Alerts.Acknowledge(r.Context(), id, by)
	case "resolve":
		al, err = a.Alerts.Resolve(r.Context(), id, by)
	case "dismiss":
		al, err = a.Alerts.Dismiss(r.Context(), id, by)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, al)
}

func (a *API) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := a.Alerts.MarkRead(r.Context(), chi.URLParam(r, "id"), subject(r)); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := a.Alerts.Notifications(r.Context(), subject(r), r.URL.Query().Get("unread") == "true")
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// CheckStudentAlerts evaluates the threshold rules for one student now.
// Rule failures are logged by the generator; created alerts are still returned.
func (a *API) CheckStudentAlerts(w http.ResponseWriter, r *http.Request) {
	created, err := a.Generator.CheckStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil && created == nil {
		writeError(w, a.Log, err)
		return
	}
	if created == nil {
		created = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
