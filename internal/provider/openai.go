package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/search"
)

const rankToolName = "rank_referees"

const assignorPrompt = "You help soccer leagues staff games with referees. " +
	"Rank the referees in the roster that best satisfy the request, best first, " +
	"and only use ids present in the roster. Call the rank_referees function."

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint. It
// ranks referees for search, drives the assistant and extracts schedules.
type OpenAIClient struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIClient creates a client against baseURL (e.g. https://api.openai.com/v1).
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *OpenAIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &OpenAIClient{client: client, model: model, logger: logger}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
}

type toolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type rankArguments struct {
	RankedIDs   []string `json:"ranked_ids"`
	Explanation string   `json:"explanation"`
}

var rankTool = chatTool{
	Type: "function",
	Function: toolFunction{
		Name:        rankToolName,
		Description: "Return roster referee ids ranked best first with a short explanation",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"ranked_ids": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
				"explanation": map[string]interface{}{"type": "string"},
			},
			"required": []string{"ranked_ids", "explanation"},
		},
	},
}

// complete posts one chat completions request and returns the first choice.
func (c *OpenAIClient) complete(ctx context.Context, req chatRequest) (content string, calls []toolCall, err error) {
	req.Model = c.model
	var out chatResponse
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", nil, fmt.Errorf("call chat completions: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("chat completions returned error", "status", resp.StatusCode(), "type", apiErr.Error.Type)
		return "", nil, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode(), apiErr.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", nil, fmt.Errorf("chat completions returned no choices")
	}
	msg := out.Choices[0].Message
	return msg.Content, msg.ToolCalls, nil
}

// forced runs a request that must answer through the named tool and decodes
// the tool arguments into dst.
func (c *OpenAIClient) forced(ctx context.Context, messages []chatMessage, tool chatTool, dst interface{}) error {
	_, calls, err := c.complete(ctx, chatRequest{
		Messages: messages,
		Tools:    []chatTool{tool},
		ToolChoice: map[string]interface{}{
			"type":     "function",
			"function": map[string]string{"name": tool.Function.Name},
		},
	})
	if err != nil {
		return err
	}
	if len(calls) == 0 {
		return fmt.Errorf("chat completions returned no tool call")
	}
	call := calls[0].Function
	if call.Name != tool.Function.Name {
		return fmt.Errorf("unexpected tool call %q", call.Name)
	}
	if err := json.Unmarshal([]byte(call.Arguments), dst); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}
	return nil
}

// Interpret implements search.Interpreter.
func (c *OpenAIClient) Interpret(ctx context.Context, query string, ictx search.InterpretContext) (*search.Interpretation, error) {
	roster, err := json.Marshal(ictx)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}

	var args rankArguments
	err = c.forced(ctx, []chatMessage{
		{Role: "system", Content: assignorPrompt},
		{Role: "system", Content: "Context: " + string(roster)},
		{Role: "user", Content: query},
	}, rankTool, &args)
	if err != nil {
		return nil, err
	}

	result := &search.Interpretation{Explanation: args.Explanation}
	for _, raw := range args.RankedIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.logger.Debug("ai assignor returned non-uuid id", "id", raw)
			continue
		}
		result.RankedIDs = append(result.RankedIDs, id)
	}
	return result, nil
}

// Chat implements assistant.Model. The model decides whether to call tools.
func (c *OpenAIClient) Chat(ctx context.Context, messages []assistant.Message, tools []assistant.ToolSpec) (*assistant.Reply, error) {
	req := chatRequest{Temperature: 0.3}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, chatTool{
			Type:     "function",
			Function: toolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if len(req.Tools) > 0 {
		req.ToolChoice = "auto"
	}

	content, calls, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	reply := &assistant.Reply{Content: content}
	for _, call := range calls {
		args := json.RawMessage(call.Function.Arguments)
		if !json.Valid(args) {
			c.logger.Debug("assistant returned malformed tool arguments", "tool", call.Function.Name)
			args = json.RawMessage("{}")
		}
		reply.ToolCalls = append(reply.ToolCalls, assistant.ToolCall{Name: call.Function.Name, Arguments: args})
	}
	return reply, nil
}

const extractToolName = "record_games"

const extractPrompt = "You extract soccer game schedules from league documents. " +
	"Call record_games with one entry per game. Use ISO 8601 for scheduled_start when possible " +
	"and leave out values the document does not state."

var extractTool = chatTool{
	Type: "function",
	Function: toolFunction{
		Name:        extractToolName,
		Description: "Record the games found in the document",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"games": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"scheduled_start":   map[string]string{"type": "string"},
							"field_name":        map[string]string{"type": "string"},
							"address":           map[string]string{"type": "string"},
							"age_group":         map[string]string{"type": "string"},
							"competition_level": map[string]string{"type": "string"},
							"center_fee":        map[string]string{"type": "number"},
							"ar_fee":            map[string]string{"type": "number"},
							"latitude":          map[string]string{"type": "number"},
							"longitude":         map[string]string{"type": "number"},
						},
					},
				},
			},
			"required": []string{"games"},
		},
	},
}

// ExtractGames implements ingest.Extractor.
func (c *OpenAIClient) ExtractGames(ctx context.Context, text string) ([]ingest.Record, error) {
	if len(text) > ingest.MaxExtractChars {
		text = text[:ingest.MaxExtractChars]
	}
	var args struct {
		Games []interface{} `json:"games"`
	}
	err := c.forced(ctx, []chatMessage{
		{Role: "system", Content: extractPrompt},
		{Role: "user", Content: text},
	}, extractTool, &args)
	if err != nil {
		return nil, err
	}
	return ingest.RecordsFromJSON(args.Games), nil
}

// DisabledAI stands in for every AI feature when no API key is configured.
type DisabledAI struct{}

// Interpret always fails with search.ErrInterpreterDisabled.
func (DisabledAI) Interpret(context.Context, string, search.InterpretContext) (*search.Interpretation, error) {
	return nil, search.ErrInterpreterDisabled
}

// Chat always fails with assistant.ErrDisabled.
func (DisabledAI) Chat(context.Context, []assistant.Message, []assistant.ToolSpec) (*assistant.Reply, error) {
	return nil, assistant.ErrDisabled
}

// ExtractGames always fails with ingest.ErrExtractorDisabled.
func (DisabledAI) ExtractGames(context.Context, string) ([]ingest.Record, error) {
	return nil, ingest.ErrExtractorDisabled
}
