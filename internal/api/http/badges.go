package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-obe/internal/apperr"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/rbac"
)

func (a *API) StudentBadges(w http.ResponseWriter, r *http.Request) {
	s, err := a.Badges.Badges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type checkReq struct {
	Trigger string `json:"trigger"`
}

// CheckBadges runs the badge rules for one trigger. No trigger means all rules.
func (a *API) CheckBadges(w http.ResponseWriter, r *http.Request) {
	var req checkReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	trigger := gamification.TriggerAll
	if req.Trigger != "" {
		t, ok := gamification.ParseTrigger(req.Trigger)
		if !ok {
			writeError(w, a.Log, apperr.Validation("unknown trigger").WithField("trigger", req.Trigger))
			return
		}
		trigger = t
	}
	res, err := a.Badges.Check(r.Context(), chi.URLParam(r, "id"), trigger)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type activityReq struct {
	At int64 `json:"at" validate:"gte=0"`
}

// RecordActivity counts a day of activity toward the streak. "at" defaults to now.
func (a *API) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	// Students record activity as it happens; only staff may backfill, and
	// never into the future.
	now := time.Now()
	at := now
	if req.At > 0 && rbac.IsStaff(role(r)) {
		at = time.Unix(req.At, 0)
		if at.After(now) {
			writeError(w, a.Log, apperr.Validation("activity time is in the future").WithField("at", "must not be after now"))
			return
		}
	}
	p, err := a.Badges.RecordActivity(r.Context(), chi.URLParam(r, "id"), at)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type journalReq struct {
	Body string `json:"body" validate:"notblank,max=20000"`
}

func (a *API) AddJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req journalReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	je, err := a.Badges.AddJournalEntry(r.Context(), chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, je)
}

type xpReq struct {
	XP int `json:"xp" validate:"gt=0,lte=10000"`
}

func (a *API) AwardXP(w http.ResponseWriter, r *http.Request) {
	var req xpReq
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p, err := a.Badges.AwardXP(r.Context(), chi.URLParam(r, "id"), req.XP)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
