package handler

import (
	"net/http"

	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/service"
)

// LeagueHandler serves /leagues/me.
type LeagueHandler struct {
	leagues *service.LeagueService
}

// NewLeagueHandler creates a new LeagueHandler.
func NewLeagueHandler(leagues *service.LeagueService) *LeagueHandler {
	return &LeagueHandler{leagues: leagues}
}

// GetMine handles GET /leagues/me.
func (h *LeagueHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	l, err := h.leagues.Mine(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, l)
}

// UpdateMine handles PUT /leagues/me.
func (h *LeagueHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var u domain.LeagueUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	l, err := h.leagues.UpdateMine(r.Context(), p.UserID, u)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, l)
}

// ListFields handles GET /leagues/me/fields.
func (h *LeagueHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	fields, err := h.leagues.ListFields(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, fields)
}

// AddField handles POST /leagues/me/fields.
func (h *LeagueHandler) AddField(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.FieldInput
	if !decodeBody(w, r, &in) {
		return
	}
	f, err := h.leagues.AddField(r.Context(), p.UserID, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, f)
}
