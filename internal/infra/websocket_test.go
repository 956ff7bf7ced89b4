package infra

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWSHub_JoinLeave(t *testing.T) {
	hub := NewWSHub(testLogger())
	a := NewWSConn("a", "u1")
	b := NewWSConn("b", "u1")

	hub.Join(UserRoom("u1"), a)
	hub.Join(UserRoom("u1"), b)
	assert.Equal(t, 2, hub.ConnectionCount())
	assert.Equal(t, 1, hub.RoomCount())

	hub.Leave(UserRoom("u1"), "a")
	_, open := <-a.Send
	assert.False(t, open, "leave closes the send channel")
	assert.Equal(t, 1, hub.ConnectionCount())

	hub.Leave(UserRoom("u1"), "b")
	assert.Equal(t, 0, hub.RoomCount())

	hub.Leave(UserRoom("u1"), "b")
}

func TestWSHub_PublishToUser(t *testing.T) {
	hub := NewWSHub(testLogger())
	mine := NewWSConn("c1", "u1")
	other := NewWSConn("c2", "u2")
	hub.Join(UserRoom("u1"), mine)
	hub.Join(UserRoom("u2"), other)

	hub.PublishToUser("u1", map[string]interface{}{"type": "unread", "unread_count": 3})

	select {
	case msg := <-mine.Send:
		assert.JSONEq(t, `{"type":"unread","unread_count":3}`, string(msg))
	default:
		t.Fatal("expected message for u1")
	}
	assert.Len(t, other.Send, 0)
}

func TestWSHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := NewWSHub(testLogger())
	conn := &WSConn{ID: "c", UserID: "u", Send: make(chan []byte, 1)}
	hub.Join(UserRoom("u"), conn)

	hub.PublishToUser("u", 1)
	hub.PublishToUser("u", 2)

	assert.Len(t, conn.Send, 1)
	assert.Equal(t, "1", string(<-conn.Send))
}

func TestWSHub_Shutdown(t *testing.T) {
	hub := NewWSHub(testLogger())
	conn := NewWSConn("c", "u")
	hub.Join(UserRoom("u"), conn)

	hub.Shutdown(context.Background())
	_, open := <-conn.Send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ConnectionCount())

	hub.Leave(UserRoom("u"), "c")
}

func TestWSHub_Serve(t *testing.T) {
	hub := NewWSHub(testLogger())
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewWSConn("srv", "u1")
		conn.Send <- []byte(`{"type":"unread","unread_count":0}`)
		hub.Serve(ws, UserRoom("u1"), conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	readEvent := func() map[string]interface{} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		var v map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &v))
		return v
	}

	assert.Equal(t, float64(0), readEvent()["unread_count"])

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.PublishToUser("u1", map[string]interface{}{"type": "unread", "unread_count": 2})
	assert.Equal(t, float64(2), readEvent()["unread_count"])

	client.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
