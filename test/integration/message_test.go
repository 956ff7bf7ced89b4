//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/refnexus/platform/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreadCount(t *testing.T, env *testutil.TestEnv, token string) int {
	t.Helper()
	resp := env.AuthGET("/messages/unread-count", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		UnreadCount int `json:"unread_count"`
	}
	testutil.DecodeJSON(t, resp, &body)
	return body.UnreadCount
}

func TestMessages_SendAndReadConversation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	leagueToken, leagueID := env.RegisterUser("league", "league@test.com", "securepass123", "League")
	refToken, refID := env.RegisterUser("referee", "ref@test.com", "securepass123", "Ref")

	for _, text := range []string{"Are you free Saturday?", "U12 at 9am"} {
		resp := env.AuthPOST("/messages", map[string]interface{}{
			"recipient_id": refID, "content": text,
		}, leagueToken)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, 2, unreadCount(t, env, refToken))

	resp := env.AuthGET("/messages/conversations", refToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var convs []struct {
		UserID      uuid.UUID `json:"user_id"`
		DisplayName string    `json:"display_name"`
		LastMessage string    `json:"last_message"`
		UnreadCount int       `json:"unread_count"`
	}
	testutil.DecodeJSON(t, resp, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, leagueID, convs[0].UserID)
	assert.Equal(t, "League", convs[0].DisplayName)
	assert.Equal(t, "U12 at 9am", convs[0].LastMessage)
	assert.Equal(t, 2, convs[0].UnreadCount)

	resp = env.AuthGET(fmt.Sprintf("/messages/conversations/%s", leagueID), refToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []struct {
		Content string `json:"content"`
	}
	testutil.DecodeJSON(t, resp, &history)
	assert.Len(t, history, 2)

	path := fmt.Sprintf("/messages/conversations/%s/read", leagueID)
	resp = env.AuthPOST(path, nil, refToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var marked struct {
		MarkedRead int64 `json:"marked_read"`
	}
	testutil.DecodeJSON(t, resp, &marked)
	assert.Equal(t, int64(2), marked.MarkedRead)

	// Marking again is a no-op.
	resp = env.AuthPOST(path, nil, refToken)
	testutil.DecodeJSON(t, resp, &marked)
	assert.Equal(t, int64(0), marked.MarkedRead)
	assert.Equal(t, 0, unreadCount(t, env, refToken))
}

func TestMessages_MarkReadOnlyByRecipient(t *testing.T) {
	env := testutil.NewTestEnv(t)
	leagueToken, _ := env.RegisterUser("league", "league@test.com", "securepass123", "League")
	refToken, refID := env.RegisterUser("referee", "ref@test.com", "securepass123", "Ref")

	resp := env.AuthPOST("/messages", map[string]interface{}{"recipient_id": refID, "content": "hi"}, leagueToken)
	var msg struct {
		ID uuid.UUID `json:"id"`
	}
	testutil.DecodeJSON(t, resp, &msg)

	resp = env.AuthPOST(fmt.Sprintf("/messages/%s/read", msg.ID), nil, leagueToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		resp = env.AuthPOST(fmt.Sprintf("/messages/%s/read", msg.ID), nil, refToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var m struct {
			IsRead bool `json:"is_read"`
		}
		testutil.DecodeJSON(t, resp, &m)
		assert.True(t, m.IsRead)
	}
}

func TestMessages_Validation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.RegisterUser("league", "league@test.com", "securepass123", "League")

	resp := env.AuthPOST("/messages", map[string]interface{}{"recipient_id": userID, "content": "me"}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthPOST("/messages", map[string]interface{}{"recipient_id": uuid.New(), "content": "hello"}, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.AuthGET(fmt.Sprintf("/messages/conversations/%s?limit=500", uuid.New()), token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestInboxSocket_PushesUnreadCount(t *testing.T) {
	env := testutil.NewTestEnv(t)
	leagueToken, _ := env.RegisterUser("league", "league@test.com", "securepass123", "League")
	refToken, refID := env.RegisterUser("referee", "ref@test.com", "securepass123", "Ref")

	url := "ws" + strings.TrimPrefix(env.Server.URL, "http") + "/messages/ws/inbox?token=" + refToken
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() int {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var ev struct {
			Type        string `json:"type"`
			UnreadCount int    `json:"unread_count"`
		}
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, "unread", ev.Type)
		return ev.UnreadCount
	}

	assert.Equal(t, 0, read())

	require.Eventually(t, func() bool { return env.Hub.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	resp := env.AuthPOST("/messages", map[string]interface{}{"recipient_id": refID, "content": "ping"}, leagueToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1, read())
}

func TestInboxSocket_InvalidTokenClosed(t *testing.T) {
	env := testutil.NewTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.Server.URL, "http") + "/messages/ws/inbox?token=garbage"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}
