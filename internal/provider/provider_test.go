package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolCallResponse(t *testing.T, name string, args interface{}) []byte {
	t.Helper()
	encoded, err := json.Marshal(args)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{
				"message": map[string]interface{}{
					"tool_calls": []interface{}{
						map[string]interface{}{
							"function": map[string]interface{}{"name": name, "arguments": string(encoded)},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestOpenAIClient_InterpretParsesToolCall(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	var gotReq chatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(toolCallResponse(t, rankToolName, map[string]interface{}{
			"ranked_ids":  []string{b.String(), "not-a-uuid", a.String()},
			"explanation": "closest experienced referees",
		}))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "sk-test", "gpt-test", 2*time.Second, quietLogger())
	got, err := ai.Interpret(context.Background(), "need a center ref for U12 saturday", search.InterpretContext{
		Roster: []search.RosterEntry{{ID: a, Name: "Alex"}, {ID: b, Name: "Blake"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{b, a}, got.RankedIDs)
	assert.Equal(t, "closest experienced referees", got.Explanation)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-test", gotReq.Model)
	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, rankToolName, gotReq.Tools[0].Function.Name)
	assert.Contains(t, gotReq.Messages[1].Content, "Blake")
	assert.Equal(t, "need a center ref for U12 saturday", gotReq.Messages[2].Content)
}

func TestOpenAIClient_InterpretUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "m", time.Second, quietLogger())
	_, err := ai.Interpret(context.Background(), "q", search.InterpretContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClient_InterpretNoToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "m", time.Second, quietLogger())
	_, err := ai.Interpret(context.Background(), "q", search.InterpretContext{})
	assert.ErrorContains(t, err, "no tool call")
}

func TestOpenAIClient_InterpretTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "m", 50*time.Millisecond, quietLogger())
	_, err := ai.Interpret(context.Background(), "q", search.InterpretContext{})
	assert.Error(t, err)
}

func TestDisabledAI(t *testing.T) {
	ctx := context.Background()
	_, err := DisabledAI{}.Interpret(ctx, "q", search.InterpretContext{})
	assert.True(t, errors.Is(err, search.ErrInterpreterDisabled))
	_, err = DisabledAI{}.Chat(ctx, nil, nil)
	assert.True(t, errors.Is(err, assistant.ErrDisabled))
	_, err = DisabledAI{}.ExtractGames(ctx, "text")
	assert.True(t, errors.Is(err, ingest.ErrExtractorDisabled))
}

func TestOpenAIClient_ChatWithTools(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Looking now.","tool_calls":[
			{"id":"c1","function":{"name":"search_games","arguments":"{\"status\":\"open\"}"}},
			{"id":"c2","function":{"name":"get_game_details","arguments":"not json"}}]}}]}`))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "gpt-test", time.Second, quietLogger())
	reply, err := ai.Chat(context.Background(),
		[]assistant.Message{{Role: assistant.RoleSystem, Content: "sys"}, {Role: assistant.RoleUser, Content: "open games?"}},
		[]assistant.ToolSpec{{Name: "search_games", Parameters: map[string]interface{}{"type": "object"}}})
	require.NoError(t, err)

	assert.Equal(t, "Looking now.", reply.Content)
	require.Len(t, reply.ToolCalls, 2)
	assert.Equal(t, "search_games", reply.ToolCalls[0].Name)
	assert.JSONEq(t, `{"status":"open"}`, string(reply.ToolCalls[0].Arguments))
	assert.JSONEq(t, `{}`, string(reply.ToolCalls[1].Arguments))

	assert.Equal(t, "auto", gotReq.ToolChoice)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "open games?", gotReq.Messages[1].Content)
}

func TestOpenAIClient_ChatPlainAnswer(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello!"}}]}`))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "m", time.Second, quietLogger())
	reply, err := ai.Chat(context.Background(), []assistant.Message{{Role: assistant.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Content)
	assert.Empty(t, reply.ToolCalls)
	assert.NotContains(t, raw, "tools")
	assert.NotContains(t, raw, "tool_choice")
}

func TestOpenAIClient_ExtractGames(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(toolCallResponse(t, extractToolName, map[string]interface{}{
			"games": []interface{}{
				map[string]interface{}{"scheduled_start": "2026-11-07T09:00:00Z", "field_name": "Riverside 1", "center_fee": 60},
			},
		}))
	}))
	defer srv.Close()

	ai := NewOpenAIClient(srv.URL, "k", "m", time.Second, quietLogger())
	records, err := ai.ExtractGames(context.Background(), strings.Repeat("x", ingest.MaxExtractChars+50))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Riverside 1", records[0]["field_name"])
	assert.Equal(t, "60", records[0]["center_fee"])

	require.Len(t, gotReq.Messages, 2)
	assert.Len(t, gotReq.Messages[1].Content, ingest.MaxExtractChars)
}

func TestNominatimGeocoder_Found(t *testing.T) {
	var gotUA, gotQ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotUA = r.Header.Get("User-Agent")
		gotQ = r.URL.Query().Get("q")
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"40.7128","lon":"-74.0060","display_name":"New York"}]`))
	}))
	defer srv.Close()

	geo := NewNominatimGeocoder(srv.URL, "refnexus-test/1.0", time.Second, quietLogger())
	p, err := geo.Geocode(context.Background(), " New York, NY ")
	require.NoError(t, err)

	assert.InDelta(t, 40.7128, p.Lat, 1e-9)
	assert.InDelta(t, -74.0060, p.Lon, 1e-9)
	assert.Equal(t, "refnexus-test/1.0", gotUA)
	assert.Equal(t, "New York, NY", gotQ)
}

func TestNominatimGeocoder_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	geo := NewNominatimGeocoder(srv.URL, "ua", time.Second, quietLogger())
	_, err := geo.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, search.ErrLocationNotFound)

	_, err = geo.Geocode(context.Background(), "  ")
	assert.ErrorIs(t, err, search.ErrLocationNotFound)
}

func TestNominatimGeocoder_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	geo := NewNominatimGeocoder(srv.URL, "ua", time.Second, quietLogger())
	_, err := geo.Geocode(context.Background(), "Boston")
	require.Error(t, err)
	assert.NotErrorIs(t, err, search.ErrLocationNotFound)
}
