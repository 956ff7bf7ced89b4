package handler

import (
	"net/http"

	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/search"
	"github.com/refnexus/platform/internal/service"
)

// RefereeHandler serves /refs: profiles, stats, ratings, notes,
// availability, search and the referee side of assignments.
type RefereeHandler struct {
	refs        *service.RefereeService
	assignments *service.AssignmentService
}

// NewRefereeHandler creates a new RefereeHandler.
func NewRefereeHandler(refs *service.RefereeService, assignments *service.AssignmentService) *RefereeHandler {
	return &RefereeHandler{refs: refs, assignments: assignments}
}

// GetMine handles GET /refs/me.
func (h *RefereeHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := h.refs.Mine(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

// UpdateMine handles PUT /refs/me.
func (h *RefereeHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var u domain.RefereeProfileUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	profile, err := h.refs.UpdateMine(r.Context(), p.UserID, u)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

// Search handles GET /refs/search.
func (h *RefereeHandler) Search(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q, err := parseSearchQuery(r)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	results, err := h.refs.Search(r.Context(), p, q)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, results)
}

func parseSearchQuery(r *http.Request) (search.Query, error) {
	qp := newQueryParser(r)
	q := search.Query{
		Location:         qp.Text("location"),
		RadiusKm:         qp.Float("radius_km"),
		MinRating:        qp.Float("min_rating"),
		AgeGroup:         qp.Text("age_group"),
		CompetitionLevel: qp.Text("competition_level"),
		AvailableStart:   qp.Time("available_start"),
		AvailableEnd:     qp.Time("available_end"),
	}
	lat, lon := qp.Float("lat"), qp.Float("lon")
	if err := qp.Err(); err != nil {
		return q, err
	}
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return q, domain.ErrValidationField("lat", err.Error())
	}
	if lat != nil {
		q.Origin = &search.Point{Lat: *lat, Lon: *lon}
	}
	sort, ok := search.ParseSortOrder(qp.Text("sort"))
	if !ok {
		return q, domain.ErrValidationField("sort", "sort must be one of rating, distance, experience, name")
	}
	q.Sort = sort
	return q, nil
}

// Get handles GET /refs/{id}.
func (h *RefereeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ref, err := h.refs.Get(r.Context(), p, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, ref)
}

// Stats handles GET /refs/{id}/stats.
func (h *RefereeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	stats, err := h.refs.Stats(r.Context(), p, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, stats)
}

// ListRatings handles GET /refs/{id}/ratings.
func (h *RefereeHandler) ListRatings(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ratings, err := h.refs.ListRatings(r.Context(), id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, ratings)
}

// Rate handles POST /refs/{id}/ratings.
func (h *RefereeHandler) Rate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in service.RatingInput
	if !decodeBody(w, r, &in) {
		return
	}
	rating, err := h.refs.Rate(r.Context(), p.UserID, id, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, rating)
}

// ListNotes handles GET /refs/{id}/notes.
func (h *RefereeHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	notes, err := h.refs.ListNotes(r.Context(), p, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, notes)
}

// AddNote handles POST /refs/{id}/notes.
func (h *RefereeHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in service.NoteInput
	if !decodeBody(w, r, &in) {
		return
	}
	note, err := h.refs.AddNote(r.Context(), p.UserID, id, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, note)
}

// ListAvailability handles GET /refs/me/availability.
func (h *RefereeHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	slots, err := h.refs.ListAvailability(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, slots)
}

// AddAvailability handles POST /refs/me/availability.
func (h *RefereeHandler) AddAvailability(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.AvailabilityInput
	if !decodeBody(w, r, &in) {
		return
	}
	slot, err := h.refs.AddAvailability(r.Context(), p.UserID, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, slot)
}

// DeleteAvailability handles DELETE /refs/me/availability/{id}.
func (h *RefereeHandler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.refs.DeleteAvailability(r.Context(), p.UserID, id); err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// MyAssignments handles GET /refs/me/assignments.
func (h *RefereeHandler) MyAssignments(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var status *domain.AssignmentStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.AssignmentStatus(s)
		status = &st
	}
	out, err := h.assignments.ListMine(r.Context(), p.UserID, status)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// Respond handles POST /refs/assignments/{id}/respond.
func (h *RefereeHandler) Respond(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in service.RespondInput
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := h.assignments.Respond(r.Context(), p.UserID, id, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}
