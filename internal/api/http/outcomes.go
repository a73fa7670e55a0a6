package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-obe/internal/outcome"
)

type createOutcomeReq struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"notblank,max=300"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"required,oneof=ILO PLO CLO"`
	BloomsLevel string `json:"blooms_level"`
	ProgramID   string `json:"program_id"`
	CourseID    string `json:"course_id"`
}

func (a *API) CreateOutcome(w http.ResponseWriter, r *http.Request) {
	var req createOutcomeReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	o, err := a.Outcomes.CreateOutcome(r.Context(), outcome.Outcome{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Type:        outcome.Type(req.Type),
		BloomsLevel: outcome.BloomsLevel(req.BloomsLevel),
		ProgramID:   req.ProgramID,
		CourseID:    req.CourseID,
		CreatedBy:   subject(r),
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (a *API) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := outcome.ListFilter{
		Type:       outcome.Type(q.Get("type")),
		ProgramID:  q.Get("program_id"),
		CourseID:   q.Get("course_id"),
		ActiveOnly: q.Get("include_inactive") != "true",
	}
	out, err := a.Outcomes.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": out})
}

type reviseOutcomeReq struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=300"`
	Description *string `json:"description"`
	BloomsLevel *string `json:"blooms_level"`
}

func (a *API) ReviseOutcome(w http.ResponseWriter, r *http.Request) {
	var req reviseOutcomeReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	rev := outcome.Revision{Title: req.Title, Description: req.Description}
	if req.BloomsLevel != nil {
		b := outcome.BloomsLevel(*req.BloomsLevel)
		rev.BloomsLevel = &b
	}
	o, err := a.Outcomes.ReviseOutcome(r.Context(), chi.URLParam(r, "id"), rev)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) DeactivateOutcome(w http.ResponseWriter, r *http.Request) {
	o, err := a.Outcomes.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type mappingReq struct {
	SourceID string  `json:"source_outcome_id" validate:"required"`
	TargetID string  `json:"target_outcome_id" validate:"required,nefield=SourceID"`
	Weight   float64 `json:"weight" validate:"gte=0,lte=1"`
}

// UpsertMapping returns the source's outgoing weight report so clients can
// surface a total that drifted away from 1.0.
func (a *API) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	rep, err := a.Outcomes.UpsertMapping(r.Context(), outcome.Mapping{
		SourceID: req.SourceID, TargetID: req.TargetID, Weight: req.Weight, CreatedBy: subject(r),
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) OutcomeWeights(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Outcomes.Weights(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
