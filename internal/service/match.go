package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/search"
)

const (
	maxQueryLength = 1000
	aiCircuitKey   = "ai.interpreter"
)

type refereeDirectory interface {
	Roster(ctx context.Context) ([]search.Candidate, error)
	ByIDs(ctx context.Context, viewer auth.Principal, ids []uuid.UUID) ([]domain.RefereeWithStats, error)
}

type gameLookup interface {
	Get(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*domain.Game, error)
}

// MatchService answers natural-language referee requests through an
// Interpreter, behind a per-caller rate limit and a circuit breaker.
type MatchService struct {
	referees    refereeDirectory
	games       gameLookup
	interpreter search.Interpreter
	limiter     *guard.RateLimiter
	breaker     *guard.CircuitBreaker
	timeout     time.Duration
	logger      *slog.Logger
}

// NewMatchService creates a new MatchService.
func NewMatchService(
	referees refereeDirectory,
	games gameLookup,
	interpreter search.Interpreter,
	limiter *guard.RateLimiter,
	breaker *guard.CircuitBreaker,
	timeout time.Duration,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		referees:    referees,
		games:       games,
		interpreter: interpreter,
		limiter:     limiter,
		breaker:     breaker,
		timeout:     timeout,
		logger:      logger,
	}
}

// MatchInput is a free-text request, optionally about a specific game.
type MatchInput struct {
	Query  string     `json:"natural_language_query"`
	GameID *uuid.UUID `json:"game_id"`
}

// MatchResult is the ranked answer.
type MatchResult struct {
	SuggestedRefIDs []uuid.UUID               `json:"suggested_ref_ids"`
	Explanation     string                    `json:"explanation"`
	SuggestedRefs   []domain.RefereeWithStats `json:"suggested_refs"`
}

// FindReferees ranks the roster against the request. Only IDs of existing
// referees are returned, at most search.MaxSuggestions.
func (s *MatchService) FindReferees(ctx context.Context, viewer auth.Principal, in MatchInput) (*MatchResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, domain.ErrValidationField("natural_language_query", "natural_language_query is required")
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return nil, domain.ErrValidationField("natural_language_query", "natural_language_query is too long")
	}
	if err := s.limiter.Allow(ctx, viewer.UserID.String()); err != nil {
		return nil, err
	}

	var game *domain.Game
	if in.GameID != nil {
		g, err := s.games.Get(ctx, viewer, *in.GameID)
		if err != nil {
			return nil, err
		}
		game = g
	}

	roster, err := s.referees.Roster(ctx)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return &MatchResult{
			SuggestedRefIDs: []uuid.UUID{},
			Explanation:     "No referees are registered yet.",
			SuggestedRefs:   []domain.RefereeWithStats{},
		}, nil
	}
	ictx, known := buildInterpretContext(game, roster)

	var interp *search.Interpretation
	err = s.breaker.Execute(ctx, aiCircuitKey, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var callErr error
		interp, callErr = s.interpreter.Interpret(callCtx, query, ictx)
		// Only upstream failures and our own deadline count against the circuit.
		if callErr != nil && (ctx.Err() != nil || errors.Is(callErr, search.ErrInterpreterDisabled)) {
			return guard.Uncounted(callErr)
		}
		return callErr
	})
	if err != nil {
		var appErr *domain.AppError
		switch {
		case errors.Is(err, search.ErrInterpreterDisabled):
			return nil, domain.ErrExternalService(err.Error(), err)
		case errors.As(err, &appErr):
			return nil, appErr
		case ctx.Err() != nil:
			return nil, domain.ErrExternalService("search cancelled", err)
		}
		s.logger.Warn("ai search failed", "error", err)
		return nil, domain.ErrExternalService("search unavailable", err)
	}
	if interp == nil {
		s.logger.Warn("ai search returned no interpretation")
		return nil, domain.ErrExternalService("search unavailable", nil)
	}

	ids := search.KeepKnown(interp.RankedIDs, known, search.MaxSuggestions)
	refs, err := s.referees.ByIDs(ctx, viewer, ids)
	if err != nil {
		return nil, err
	}
	return &MatchResult{
		SuggestedRefIDs: ids,
		Explanation:     interp.Explanation,
		SuggestedRefs:   refs,
	}, nil
}

// buildInterpretContext flattens the roster for the interpreter. Distances
// are measured from the game when it has coordinates.
func buildInterpretContext(game *domain.Game, roster []search.Candidate) (search.InterpretContext, map[uuid.UUID]bool) {
	var ictx search.InterpretContext
	var origin *search.Point
	if game != nil {
		ictx.Game = &search.GameContext{
			Location:         game.Location,
			ScheduledStart:   game.ScheduledStart,
			AgeGroup:         game.AgeGroup,
			CompetitionLevel: game.CompetitionLevel,
			RequiresAR:       game.RequiresAR,
		}
		if game.Latitude != nil && game.Longitude != nil {
			origin = &search.Point{Lat: *game.Latitude, Lon: *game.Longitude}
		}
	}

	known := make(map[uuid.UUID]bool, len(roster))
	ictx.Roster = make([]search.RosterEntry, 0, len(roster))
	for _, c := range roster {
		p := c.Profile
		known[p.ID] = true
		e := search.RosterEntry{
			ID:              p.ID,
			Name:            p.FullName,
			CertLevel:       p.CertLevel,
			YearsExperience: p.YearsExperience,
			HomeLocation:    p.HomeLocation,
			TravelRadiusKm:  p.TravelRadiusKm,
			AverageRating:   c.Aggregate.AverageRating,
			TotalGames:      c.Aggregate.TotalGames,
		}
		if origin != nil && p.HasCoordinates() {
			d := search.HaversineKm(*origin, search.Point{Lat: *p.Latitude, Lon: *p.Longitude})
			e.DistanceKm = &d
		}
		ictx.Roster = append(ictx.Roster, e)
	}
	return ictx, known
}
