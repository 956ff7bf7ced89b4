package handler

import (
	"net/http"

	"github.com/refnexus/platform/internal/service"
)

// MessageHandler serves /messages.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Send handles POST /messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in service.SendInput
	if !decodeBody(w, r, &in) {
		return
	}
	m, err := h.messages.Send(r.Context(), p.UserID, in)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, m)
}

// Conversations handles GET /messages/conversations.
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	convs, err := h.messages.Conversations(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, convs)
}

// History handles GET /messages/conversations/{userID}.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	other, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	qp := newQueryParser(r)
	skip := qp.Int("skip", 0)
	limit := qp.Int("limit", 0)
	if err := qp.Err(); err != nil {
		RespondError(w, r, err)
		return
	}
	msgs, err := h.messages.History(r.Context(), p.UserID, other, skip, limit)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, msgs)
}

// MarkConversationRead handles POST /messages/conversations/{userID}/read.
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	other, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	n, err := h.messages.MarkConversationRead(r.Context(), p.UserID, other)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int64{"marked_read": n})
}

// MarkRead handles POST /messages/{id}/read.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	m, err := h.messages.MarkRead(r.Context(), p.UserID, id)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, m)
}

// UnreadCount handles GET /messages/unread-count.
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.messages.UnreadCount(r.Context(), p.UserID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}
