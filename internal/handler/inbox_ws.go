package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/infra"
)

// UnreadCounter reports a user's unread message count.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

// InboxSocket upgrades GET /messages/ws/inbox and streams unread-count events.
type InboxSocket struct {
	jwtMgr   *auth.JWTManager
	hub      *infra.WSHub
	unread   UnreadCounter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewInboxSocket creates a new InboxSocket. allowedOrigins may contain "*".
func NewInboxSocket(jwtMgr *auth.JWTManager, hub *infra.WSHub, unread UnreadCounter, allowedOrigins []string, logger *slog.Logger) *InboxSocket {
	return &InboxSocket{
		jwtMgr: jwtMgr,
		hub:    hub,
		unread: unread,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP authenticates from ?token= (or the Authorization header). A bad
// token still completes the upgrade and is then closed with policy violation,
// since browsers cannot read the status of a refused upgrade.
func (s *InboxSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	token, err := auth.QueryOrBearerToken(r)
	if err == nil {
		claims, err = s.jwtMgr.ValidateToken(token)
	}

	ws, upErr := s.upgrader.Upgrade(w, r, nil)
	if upErr != nil {
		s.logger.Debug("ws upgrade failed", "error", upErr)
		return
	}

	var userID uuid.UUID
	if err == nil {
		userID, err = claims.UserID()
	}
	if err != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"), deadline)
		ws.Close()
		return
	}

	conn := infra.NewWSConn(uuid.New().String(), userID.String())
	n, err := s.unread.UnreadCount(r.Context(), userID)
	if err != nil {
		s.logger.Warn("initial unread count failed", "user_id", userID, "error", err)
	} else {
		payload, _ := json.Marshal(domain.NewUnreadEvent(n))
		conn.Send <- payload
	}

	s.hub.Serve(ws, infra.UserRoom(userID.String()), conn)
}
