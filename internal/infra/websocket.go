package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
	wsSendBuffer     = 16
)

// WSHub manages WebSocket connections and room-based message delivery.
// Delivery is best effort: a connection whose send buffer is full misses the
// message and is expected to re-fetch state.
type WSHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*WSConn // room -> connID -> conn
	logger *slog.Logger
}

// WSConn is one client connection registered in a room.
type WSConn struct {
	ID     string
	UserID string
	Send   chan []byte
}

// NewWSConn creates a connection with a buffered send channel.
func NewWSConn(id, userID string) *WSConn {
	return &WSConn{ID: id, UserID: userID, Send: make(chan []byte, wsSendBuffer)}
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		rooms:  make(map[string]map[string]*WSConn),
		logger: logger,
	}
}

// UserRoom is the room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Join adds a connection to a room.
func (h *WSHub) Join(room string, conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSConn)
	}
	h.rooms[room][conn.ID] = conn
}

// Leave removes a connection from a room and closes its send channel.
func (h *WSHub) Leave(room string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[room]
	if !ok {
		return
	}
	if conn, ok := conns[connID]; ok {
		close(conn.Send)
		delete(conns, connID)
	}
	if len(conns) == 0 {
		delete(h.rooms, room)
	}
}

// Publish sends v, JSON encoded, to all connections in a room.
func (h *WSHub) Publish(room string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.rooms[room] {
		select {
		case conn.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "conn_id", conn.ID, "room", room)
		}
	}
}

// PublishToUser is a convenience method to publish to a user-scoped room.
func (h *WSHub) PublishToUser(userID string, v interface{}) {
	h.Publish(UserRoom(userID), v)
}

// ConnectionCount returns the total number of active connections.
func (h *WSHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *WSHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes all connections gracefully.
func (h *WSHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, conns := range h.rooms {
		for _, conn := range conns {
			close(conn.Send)
		}
		delete(h.rooms, room)
	}
}

// Serve registers conn in room and pumps messages over ws until either side
// goes away. It blocks until the client disconnects.
func (h *WSHub) Serve(ws *websocket.Conn, room string, conn *WSConn) {
	h.Join(room, conn)
	go h.writePump(ws, conn)
	h.readPump(ws, conn)
	h.Leave(room, conn.ID)
}

// readPump discards client frames; it only exists to process pongs and
// notice disconnects.
func (h *WSHub) readPump(ws *websocket.Conn, conn *WSConn) {
	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read error", "conn_id", conn.ID, "error", err)
			}
			return
		}
	}
}

func (h *WSHub) writePump(ws *websocket.Conn, conn *WSConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("ws write error", "conn_id", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
