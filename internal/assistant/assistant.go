// Package assistant describes the scheduling chat assistant: the messages it
// exchanges with a language model and the tools each role may call.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/refnexus/platform/internal/domain"
)

// ErrDisabled is returned when no chat model is configured.
var ErrDisabled = errors.New("ai assistant is not configured")

// Conversation roles accepted from clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec declares a function the model may call. Parameters is a JSON schema.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Reply is the model's answer to a conversation.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Model completes a conversation, optionally calling tools.
type Model interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error)
}

// Tool names.
const (
	ToolSearchGames       = "search_games"
	ToolGetGameDetails    = "get_game_details"
	ToolFindReferees      = "find_referees"
	ToolCreateGame        = "create_game"
	ToolGetMyAssignments  = "get_my_assignments"
	ToolGetAvailableGames = "get_available_games"
)

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

var commonTools = []ToolSpec{
	{
		Name:        ToolSearchGames,
		Description: "Search games by date range, location or status",
		Parameters: object(map[string]interface{}{
			"date_from": prop("string", "Start date (YYYY-MM-DD)"),
			"date_to":   prop("string", "End date (YYYY-MM-DD), inclusive"),
			"location":  prop("string", "Part of the game location"),
			"status": map[string]interface{}{
				"type": "string",
				"enum": []string{"open", "pending_assignment", "assigned", "completed"},
			},
		}),
	},
	{
		Name:        ToolGetGameDetails,
		Description: "Get details of one game",
		Parameters:  object(map[string]interface{}{"game_id": prop("string", "Game id")}, "game_id"),
	},
}

var leagueTools = []ToolSpec{
	{
		Name:        ToolFindReferees,
		Description: "Suggest referees for a natural-language request",
		Parameters: object(map[string]interface{}{
			"query":   prop("string", "What the league is looking for"),
			"game_id": prop("string", "Optional game id for context"),
		}, "query"),
	},
	{
		Name:        ToolCreateGame,
		Description: "Create a game for the league",
		Parameters: object(map[string]interface{}{
			"location":          prop("string", "Field or address"),
			"date_time":         prop("string", "Kickoff in RFC 3339"),
			"age_group":         prop("string", "Age group, e.g. U12"),
			"competition_level": prop("string", "Competition level"),
			"center_fee":        prop("number", "Center referee fee"),
			"ar_fee":            prop("number", "Assistant referee fee"),
		}, "location", "date_time"),
	},
}

var refereeTools = []ToolSpec{
	{
		Name:        ToolGetMyAssignments,
		Description: "List the referee's assignments",
		Parameters: object(map[string]interface{}{
			"status": map[string]interface{}{"type": "string", "enum": []string{"requested", "accepted", "all"}},
		}),
	},
	{
		Name:        ToolGetAvailableGames,
		Description: "List open games, optionally within a distance of the referee's home",
		Parameters:  object(map[string]interface{}{"max_distance_km": prop("number", "Maximum distance")}),
	},
}

// ToolsFor returns the tools a role may use.
func ToolsFor(role domain.Role) []ToolSpec {
	tools := append([]ToolSpec{}, commonTools...)
	switch role {
	case domain.RoleLeague:
		tools = append(tools, leagueTools...)
	case domain.RoleReferee:
		tools = append(tools, refereeTools...)
	}
	return tools
}

// Allowed reports whether role may call the named tool.
func Allowed(role domain.Role, name string) bool {
	for _, t := range ToolsFor(role) {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Profile is what the prompt knows about the caller.
type Profile struct {
	Name      string
	Region    string
	CertLevel string
	Location  string
}

const basePrompt = `You are the RefNexus assistant for referee scheduling and league management.
You help find referees for games, schedule games, manage assignments and answer questions about games, referees and locations.
Be conversational and concise. Use the available functions when an action or lookup is needed.`

// SystemPrompt builds the system message for a caller.
func SystemPrompt(role domain.Role, p Profile) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	switch role {
	case domain.RoleLeague:
		b.WriteString("\n\nYou are assisting a league manager who can create games, search for referees and assign them.")
		fmt.Fprintf(&b, "\nLeague: %s\nRegion: %s", orUnknown(p.Name), orUnknown(p.Region))
	case domain.RoleReferee:
		b.WriteString("\n\nYou are assisting a referee who can browse open games and answer assignment requests.")
		fmt.Fprintf(&b, "\nName: %s\nCertification: %s\nLocation: %s",
			orUnknown(p.Name), orUnknown(p.CertLevel), orUnknown(p.Location))
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
