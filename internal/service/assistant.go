package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/assistant"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/refnexus/platform/internal/search"
)

const (
	assistantCircuitKey = "ai.assistant"
	maxChatMessage      = 2000
	maxChatHistory      = 20
	maxToolCalls        = 5
	toolResultLimit     = 10
	defaultChatReply    = "I've processed your request."
)

type assistantGames interface {
	List(ctx context.Context, viewer auth.Principal, f domain.GameFilter) ([]domain.Game, error)
	Get(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*domain.Game, error)
	Create(ctx context.Context, userID uuid.UUID, in GameInput) (*domain.Game, error)
}

type refereeMatcher interface {
	FindReferees(ctx context.Context, viewer auth.Principal, in MatchInput) (*MatchResult, error)
}

type assignmentLister interface {
	ListMine(ctx context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]domain.AssignmentDetail, error)
}

type refereeProfiles interface {
	Mine(ctx context.Context, userID uuid.UUID) (*domain.RefereeProfile, error)
}

type leagueProfiles interface {
	Mine(ctx context.Context, userID uuid.UUID) (*domain.League, error)
}

// AssistantService answers chat messages with a language model that can
// call into the scheduling services on the caller's behalf.
type AssistantService struct {
	games       assistantGames
	matcher     refereeMatcher
	assignments assignmentLister
	referees    refereeProfiles
	leagues     leagueProfiles
	model       assistant.Model
	limiter     *guard.RateLimiter
	breaker     *guard.CircuitBreaker
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewAssistantService creates a new AssistantService.
func NewAssistantService(
	games assistantGames,
	matcher refereeMatcher,
	assignments assignmentLister,
	referees refereeProfiles,
	leagues leagueProfiles,
	model assistant.Model,
	limiter *guard.RateLimiter,
	breaker *guard.CircuitBreaker,
	timeout time.Duration,
	logger *slog.Logger,
) *AssistantService {
	return &AssistantService{
		games:       games,
		matcher:     matcher,
		assignments: assignments,
		referees:    referees,
		leagues:     leagues,
		model:       model,
		limiter:     limiter,
		breaker:     breaker,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// ChatInput is one user message plus the prior conversation.
type ChatInput struct {
	Message string              `json:"message"`
	History []assistant.Message `json:"conversation_history"`
}

// ChatAction records one tool call the assistant made.
type ChatAction struct {
	Function  string          `json:"function"`
	Arguments json.RawMessage `json:"arguments"`
	Result    interface{}     `json:"result"`
}

// ChatResult is the assistant's answer.
type ChatResult struct {
	Response      string       `json:"response"`
	Actions       []ChatAction `json:"actions"`
	FunctionCalls bool         `json:"function_calls"`
}

func validateChat(in *ChatInput) error {
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return domain.ErrValidationField("message", "message is required")
	}
	if utf8.RuneCountInString(in.Message) > maxChatMessage {
		return domain.ErrValidationField("message", "message is too long")
	}
	for _, m := range in.History {
		if m.Role != assistant.RoleUser && m.Role != assistant.RoleAssistant {
			return domain.ErrValidationField("conversation_history", "history roles must be user or assistant")
		}
		if utf8.RuneCountInString(m.Content) > 2*maxChatMessage {
			return domain.ErrValidationField("conversation_history", "history message is too long")
		}
	}
	if len(in.History) > maxChatHistory {
		in.History = in.History[len(in.History)-maxChatHistory:]
	}
	return nil
}

// Chat sends the conversation to the model and runs any tool calls it makes.
// Tool failures are reported inside the action result rather than failing
// the request.
func (s *AssistantService) Chat(ctx context.Context, viewer auth.Principal, in ChatInput) (*ChatResult, error) {
	if err := validateChat(&in); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(ctx, viewer.UserID.String()); err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, viewer)
	if err != nil {
		return nil, err
	}
	messages := make([]assistant.Message, 0, len(in.History)+2)
	messages = append(messages, assistant.Message{Role: assistant.RoleSystem, Content: assistant.SystemPrompt(viewer.Role, profile)})
	messages = append(messages, in.History...)
	messages = append(messages, assistant.Message{Role: assistant.RoleUser, Content: in.Message})

	var reply *assistant.Reply
	err = s.breaker.Execute(ctx, assistantCircuitKey, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var callErr error
		reply, callErr = s.model.Chat(callCtx, messages, assistant.ToolsFor(viewer.Role))
		if callErr != nil && (ctx.Err() != nil || errors.Is(callErr, assistant.ErrDisabled)) {
			return guard.Uncounted(callErr)
		}
		return callErr
	})
	if err != nil {
		var appErr *domain.AppError
		switch {
		case errors.Is(err, assistant.ErrDisabled):
			return nil, domain.ErrExternalService(err.Error(), err)
		case errors.As(err, &appErr):
			return nil, appErr
		}
		s.logger.Warn("assistant chat failed", "error", err)
		return nil, domain.ErrExternalService("assistant unavailable", err)
	}
	if reply == nil {
		return nil, domain.ErrExternalService("assistant unavailable", nil)
	}

	res := &ChatResult{
		Response:      strings.TrimSpace(reply.Content),
		Actions:       []ChatAction{},
		FunctionCalls: len(reply.ToolCalls) > 0,
	}
	if res.Response == "" {
		res.Response = defaultChatReply
	}
	for i, call := range reply.ToolCalls {
		if i == maxToolCalls {
			s.logger.Warn("assistant tool calls truncated", "requested", len(reply.ToolCalls))
			break
		}
		args := call.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		res.Actions = append(res.Actions, ChatAction{
			Function:  call.Name,
			Arguments: args,
			Result:    s.runTool(ctx, viewer, call.Name, args),
		})
	}
	return res, nil
}

func (s *AssistantService) profile(ctx context.Context, viewer auth.Principal) (assistant.Profile, error) {
	var (
		p   assistant.Profile
		err error
	)
	switch viewer.Role {
	case domain.RoleLeague:
		var l *domain.League
		if l, err = s.leagues.Mine(ctx, viewer.UserID); err == nil {
			p.Name, p.Region = l.Name, l.PrimaryRegion
		}
	case domain.RoleReferee:
		var r *domain.RefereeProfile
		if r, err = s.referees.Mine(ctx, viewer.UserID); err == nil {
			p.Name, p.CertLevel, p.Location = r.FullName, r.CertLevel, r.HomeLocation
		}
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Code == "NOT_FOUND" {
		return p, nil
	}
	return p, err
}

type toolError struct {
	Error string `json:"error"`
}

// runTool executes one tool call. The returned value is always JSON-encodable.
func (s *AssistantService) runTool(ctx context.Context, viewer auth.Principal, name string, args json.RawMessage) interface{} {
	if !assistant.Allowed(viewer.Role, name) {
		return toolError{Error: "unknown function " + name}
	}
	var (
		out interface{}
		err error
	)
	switch name {
	case assistant.ToolSearchGames:
		out, err = s.searchGames(ctx, viewer, args)
	case assistant.ToolGetGameDetails:
		out, err = s.gameDetails(ctx, viewer, args)
	case assistant.ToolFindReferees:
		out, err = s.findReferees(ctx, viewer, args)
	case assistant.ToolCreateGame:
		out, err = s.createGame(ctx, viewer, args)
	case assistant.ToolGetMyAssignments:
		out, err = s.myAssignments(ctx, viewer, args)
	case assistant.ToolGetAvailableGames:
		out, err = s.availableGames(ctx, viewer, args)
	}
	if err == nil {
		return out
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Code != "INTERNAL_ERROR" {
		return toolError{Error: appErr.Message}
	}
	s.logger.Error("assistant tool failed", "tool", name, "error", err)
	return toolError{Error: "the action could not be completed"}
}

func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.ErrValidation("invalid function arguments")
	}
	return nil
}

func parseToolID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, domain.ErrValidationField(field, field+" must be a uuid")
	}
	return id, nil
}

type gameSummary struct {
	ID               uuid.UUID         `json:"id"`
	Location         string            `json:"location"`
	ScheduledStart   time.Time         `json:"scheduled_start"`
	AgeGroup         string            `json:"age_group,omitempty"`
	CompetitionLevel string            `json:"competition_level,omitempty"`
	Status           domain.GameStatus `json:"status"`
	CenterFee        float64           `json:"center_fee"`
	ARFee            float64           `json:"ar_fee"`
	DistanceKm       *float64          `json:"distance_km,omitempty"`
}

func summarize(g *domain.Game) gameSummary {
	return gameSummary{
		ID:               g.ID,
		Location:         g.Location,
		ScheduledStart:   g.ScheduledStart,
		AgeGroup:         g.AgeGroup,
		CompetitionLevel: g.CompetitionLevel,
		Status:           g.Status,
		CenterFee:        g.CenterFee,
		ARFee:            g.ARFee,
	}
}

func (s *AssistantService) searchGames(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		DateFrom string `json:"date_from"`
		DateTo   string `json:"date_to"`
		Location string `json:"location"`
		Status   string `json:"status"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	f := domain.GameFilter{Limit: maxGamePageSize}
	if args.DateFrom != "" {
		from, err := time.Parse("2006-01-02", args.DateFrom)
		if err != nil {
			return nil, domain.ErrValidationField("date_from", "date_from must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if args.DateTo != "" {
		to, err := time.Parse("2006-01-02", args.DateTo)
		if err != nil {
			return nil, domain.ErrValidationField("date_to", "date_to must be YYYY-MM-DD")
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	if args.Status != "" {
		st := domain.GameStatus(args.Status)
		f.Status = &st
	}

	games, err := s.games.List(ctx, viewer, f)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(args.Location))
	out := []gameSummary{}
	for i := range games {
		if len(out) == toolResultLimit {
			break
		}
		if needle != "" && !strings.Contains(strings.ToLower(games[i].Location), needle) {
			continue
		}
		out = append(out, summarize(&games[i]))
	}
	return out, nil
}

func (s *AssistantService) gameDetails(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		GameID string `json:"game_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	id, err := parseToolID("game_id", args.GameID)
	if err != nil {
		return nil, err
	}
	g, err := s.games.Get(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return summarize(g), nil
}

type refereeSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CertLevel string    `json:"cert_level,omitempty"`
	Location  string    `json:"location,omitempty"`
}

func (s *AssistantService) findReferees(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Query  string `json:"query"`
		GameID string `json:"game_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	in := MatchInput{Query: args.Query}
	if args.GameID != "" {
		id, err := parseToolID("game_id", args.GameID)
		if err != nil {
			return nil, err
		}
		in.GameID = &id
	}
	res, err := s.matcher.FindReferees(ctx, viewer, in)
	if err != nil {
		return nil, err
	}
	refs := make([]refereeSummary, 0, len(res.SuggestedRefs))
	for _, r := range res.SuggestedRefs {
		refs = append(refs, refereeSummary{ID: r.ID, Name: r.FullName, CertLevel: r.CertLevel, Location: r.HomeLocation})
	}
	return map[string]interface{}{"explanation": res.Explanation, "referees": refs}, nil
}

func (s *AssistantService) createGame(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Location         string  `json:"location"`
		DateTime         string  `json:"date_time"`
		AgeGroup         string  `json:"age_group"`
		CompetitionLevel string  `json:"competition_level"`
		CenterFee        float64 `json:"center_fee"`
		ARFee            float64 `json:"ar_fee"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	start, ok := ingest.ParseStart(args.DateTime)
	if !ok {
		return nil, domain.ErrValidationField("date_time", "date_time could not be read")
	}
	g, err := s.games.Create(ctx, viewer.UserID, GameInput{
		Location:         args.Location,
		ScheduledStart:   start,
		AgeGroup:         args.AgeGroup,
		CompetitionLevel: args.CompetitionLevel,
		CenterFee:        args.CenterFee,
		ARFee:            args.ARFee,
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"game_id": g.ID,
		"message": fmt.Sprintf("Game created for %s at %s", g.ScheduledStart.Format(time.RFC3339), g.Location),
	}, nil
}

type assignmentSummary struct {
	ID             uuid.UUID               `json:"id"`
	GameID         uuid.UUID               `json:"game_id"`
	Role           domain.AssignmentRole   `json:"role"`
	Status         domain.AssignmentStatus `json:"status"`
	Location       string                  `json:"location,omitempty"`
	ScheduledStart *time.Time              `json:"scheduled_start,omitempty"`
}

func (s *AssistantService) myAssignments(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Status string `json:"status"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	var status *domain.AssignmentStatus
	switch args.Status {
	case "", "all":
	case string(domain.AssignmentRequested), string(domain.AssignmentAccepted):
		st := domain.AssignmentStatus(args.Status)
		status = &st
	default:
		return nil, domain.ErrValidationField("status", "status must be requested, accepted or all")
	}
	list, err := s.assignments.ListMine(ctx, viewer.UserID, status)
	if err != nil {
		return nil, err
	}
	out := make([]assignmentSummary, 0, len(list))
	for _, a := range list {
		sum := assignmentSummary{ID: a.ID, GameID: a.GameID, Role: a.Role, Status: a.Status}
		if a.Game != nil {
			sum.Location = a.Game.Location
			start := a.Game.ScheduledStart
			sum.ScheduledStart = &start
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *AssistantService) availableGames(ctx context.Context, viewer auth.Principal, raw json.RawMessage) (interface{}, error) {
	var args struct {
		MaxDistanceKm *float64 `json:"max_distance_km"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.MaxDistanceKm != nil && *args.MaxDistanceKm <= 0 {
		return nil, domain.ErrValidationField("max_distance_km", "max_distance_km must be > 0")
	}
	ref, err := s.referees.Mine(ctx, viewer.UserID)
	if err != nil {
		return nil, err
	}
	var home *search.Point
	if ref.HasCoordinates() {
		home = &search.Point{Lat: *ref.Latitude, Lon: *ref.Longitude}
	}

	open := domain.GameOpen
	now := s.now().UTC()
	games, err := s.games.List(ctx, viewer, domain.GameFilter{Status: &open, From: &now, Limit: maxGamePageSize})
	if err != nil {
		return nil, err
	}
	out := []gameSummary{}
	for i := range games {
		if len(out) == toolResultLimit {
			break
		}
		sum := summarize(&games[i])
		if home != nil && games[i].Latitude != nil && games[i].Longitude != nil {
			d := search.HaversineKm(*home, search.Point{Lat: *games[i].Latitude, Lon: *games[i].Longitude})
			sum.DistanceKm = &d
		}
		if args.MaxDistanceKm != nil && (sum.DistanceKm == nil || *sum.DistanceKm > *args.MaxDistanceKm) {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}
