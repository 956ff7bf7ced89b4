package handler

import (
	"net/http"

	"github.com/refnexus/platform/internal/service"
)

// AIHandler serves the natural-language referee finder and the chat assistant.
type AIHandler struct {
	match     *service.MatchService
	assistant *service.AssistantService
}

// NewAIHandler creates a new AIHandler.
func NewAIHandler(match *service.MatchService, assistant *service.AssistantService) *AIHandler {
	return &AIHandler{match: match, assistant: assistant}
}

// FindRef handles POST /ai/find-ref.
func (h *AIHandler) FindRef(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.MatchInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := h.match.FindReferees(r.Context(), p, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}

// Chat handles POST /messages/ai-chat.
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.ChatInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := h.assistant.Chat(r.Context(), p, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
