package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/refnexus/platform/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GameHandler serves /games and the league side of assignments.
type GameHandler struct {
	games       *service.GameService
	assignments *service.AssignmentService
	exporter    *service.ScheduleExporter
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(games *service.GameService, assignments *service.AssignmentService, exporter *service.ScheduleExporter) *GameHandler {
	return &GameHandler{games: games, assignments: assignments, exporter: exporter}
}

// List handles GET /games.
func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	qp := newQueryParser(r)
	f := gameFilter(qp)
	if err := qp.Err(); err != nil {
		RespondError(w, r, err)
		return
	}
	games, err := h.games.List(r.Context(), p, f)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, games)
}

// Create handles POST /games.
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.GameInput
	if !decodeBody(w, r, &in) {
		return
	}
	g, err := h.games.Create(r.Context(), p.UserID, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, g)
}

// Get handles GET /games/{id}.
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	g, err := h.games.Get(r.Context(), p, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// Update handles PATCH /games/{id}.
func (h *GameHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var u service.GameUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	g, err := h.games.Update(r.Context(), p.UserID, id, u)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// Complete handles POST /games/{id}/complete.
func (h *GameHandler) Complete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	g, err := h.games.Complete(r.Context(), p.UserID, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// Export handles GET /games/export and streams an XLSX workbook.
func (h *GameHandler) Export(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	qp := newQueryParser(r)
	f := gameFilter(qp)
	if err := qp.Err(); err != nil {
		RespondError(w, r, err)
		return
	}
	data, err := h.exporter.Export(r.Context(), p.UserID, f)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	name := fmt.Sprintf("schedule-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListAssignments handles GET /games/{id}/assignments.
func (h *GameHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	out, err := h.assignments.ListByGame(r.Context(), id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// CreateAssignment handles POST /games/{id}/assignments.
func (h *GameHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in service.AssignmentInput
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := h.assignments.Create(r.Context(), p.UserID, id, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, a)
}

// CancelAssignment handles POST /games/{id}/assignments/{assignmentID}/cancel.
func (h *GameHandler) CancelAssignment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	gameID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	assignmentID, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}
	a, err := h.assignments.Cancel(r.Context(), p.UserID, gameID, assignmentID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, a)
}
