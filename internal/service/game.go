package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
)

const maxGamePageSize = 200

// GameService manages games owned by leagues.
type GameService struct {
	pool        *pgxpool.Pool
	games       repository.GameRepository
	leagues     repository.LeagueRepository
	assignments repository.AssignmentRepository
	outbox      repository.OutboxRepository
	now         func() time.Time
}

// NewGameService creates a new GameService.
func NewGameService(
	pool *pgxpool.Pool,
	games repository.GameRepository,
	leagues repository.LeagueRepository,
	assignments repository.AssignmentRepository,
	outbox repository.OutboxRepository,
) *GameService {
	return &GameService{
		pool:        pool,
		games:       games,
		leagues:     leagues,
		assignments: assignments,
		outbox:      outbox,
		now:         time.Now,
	}
}

// GameInput creates a game. When FieldLocationID is set, empty location and
// coordinates are taken from the field. RequiresAR defaults to ARFee > 0.
type GameInput struct {
	FieldLocationID  *uuid.UUID `json:"field_location_id"`
	Location         string     `json:"location"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	ScheduledStart   time.Time  `json:"scheduled_start"`
	AgeGroup         string     `json:"age_group"`
	CompetitionLevel string     `json:"competition_level"`
	CenterFee        float64    `json:"center_fee"`
	ARFee            float64    `json:"ar_fee"`
	RequiresAR       *bool      `json:"requires_ar"`
}

// GameUpdate edits a game's details. Status is never editable.
type GameUpdate struct {
	FieldLocationID  *uuid.UUID `json:"field_location_id"`
	Location         *string    `json:"location"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	ScheduledStart   *time.Time `json:"scheduled_start"`
	AgeGroup         *string    `json:"age_group"`
	CompetitionLevel *string    `json:"competition_level"`
	CenterFee        *float64   `json:"center_fee"`
	ARFee            *float64   `json:"ar_fee"`
	RequiresAR       *bool      `json:"requires_ar"`
}

func validateGame(g *domain.Game) error {
	if strings.TrimSpace(g.Location) == "" {
		return domain.ErrValidationField("location", "location is required")
	}
	if g.ScheduledStart.IsZero() {
		return domain.ErrValidationField("scheduled_start", "scheduled_start is required")
	}
	if g.CenterFee < 0 {
		return domain.ErrValidationField("center_fee", "center_fee must be >= 0")
	}
	if g.ARFee < 0 {
		return domain.ErrValidationField("ar_fee", "ar_fee must be >= 0")
	}
	if err := domain.ValidateCoordinates(g.Latitude, g.Longitude); err != nil {
		return domain.ErrValidationField("latitude", err.Error())
	}
	return nil
}

// ownLeague resolves the caller's league.
func (s *GameService) ownLeague(ctx context.Context, db repository.DBTX, userID uuid.UUID) (*domain.League, error) {
	l, err := s.leagues.FindByUserID(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, domain.ErrNotFound("league for user", userID.String())
	}
	return l, nil
}

// applyField fills location details from a field of the league.
func (s *GameService) applyField(ctx context.Context, db repository.DBTX, leagueID uuid.UUID, g *domain.Game) error {
	if g.FieldLocationID == nil {
		return nil
	}
	f, err := s.leagues.FindField(ctx, db, *g.FieldLocationID)
	if err != nil {
		return err
	}
	if f == nil || f.LeagueID != leagueID {
		return domain.ErrValidationField("field_location_id", "field location not found")
	}
	if strings.TrimSpace(g.Location) == "" {
		g.Location = f.Name
		if f.Address != "" {
			g.Location = f.Name + ", " + f.Address
		}
	}
	if g.Latitude == nil && g.Longitude == nil {
		g.Latitude, g.Longitude = f.Latitude, f.Longitude
	}
	return nil
}

// Create adds an open game to the caller's league.
func (s *GameService) Create(ctx context.Context, userID uuid.UUID, in GameInput) (*domain.Game, error) {
	g := &domain.Game{
		ID:               uuid.New(),
		FieldLocationID:  in.FieldLocationID,
		Location:         strings.TrimSpace(in.Location),
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		ScheduledStart:   in.ScheduledStart.UTC(),
		AgeGroup:         strings.TrimSpace(in.AgeGroup),
		CompetitionLevel: strings.TrimSpace(in.CompetitionLevel),
		Status:           domain.GameOpen,
		CenterFee:        in.CenterFee,
		ARFee:            in.ARFee,
		RequiresAR:       in.ARFee > 0,
	}
	if in.RequiresAR != nil {
		g.RequiresAR = *in.RequiresAR
	}

	err := inTx(ctx, s.pool, "create game", func(tx pgx.Tx) error {
		l, err := s.ownLeague(ctx, tx, userID)
		if err != nil {
			return err
		}
		g.LeagueID = l.ID
		if err := s.applyField(ctx, tx, l.ID, g); err != nil {
			return err
		}
		if err := validateGame(g); err != nil {
			return err
		}
		if err := s.games.Create(ctx, tx, g); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewEvent(domain.AggregateGame, g.ID, domain.EventGameCreated, g))
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns one game.
func (s *GameService) Get(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*domain.Game, error) {
	g, err := s.games.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find game", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", id.String())
	}
	if viewer.Role == domain.RoleLeague {
		l, err := s.ownLeague(ctx, s.pool, viewer.UserID)
		if err != nil {
			return nil, asAppError("find league", err)
		}
		if g.LeagueID != l.ID {
			return nil, domain.ErrNotFound("game", id.String())
		}
	}
	return g, nil
}

// List returns games ordered by scheduled start. Leagues only see their own.
func (s *GameService) List(ctx context.Context, viewer auth.Principal, f domain.GameFilter) ([]domain.Game, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, domain.ErrValidationField("status", "unknown game status")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, domain.ErrValidationField("to", "to must not be before from")
	}
	if f.Limit > maxGamePageSize {
		f.Limit = maxGamePageSize
	}
	if viewer.Role == domain.RoleLeague {
		l, err := s.ownLeague(ctx, s.pool, viewer.UserID)
		if err != nil {
			return nil, asAppError("find league", err)
		}
		f.LeagueID = &l.ID
	}
	out, err := s.games.List(ctx, s.pool, f)
	if err != nil {
		return nil, domain.ErrInternal("list games", err)
	}
	if out == nil {
		out = []domain.Game{}
	}
	return out, nil
}

// lockOwned locks a game row and checks the caller's league owns it.
func (s *GameService) lockOwned(ctx context.Context, tx pgx.Tx, userID, gameID uuid.UUID) (*domain.Game, error) {
	l, err := s.ownLeague(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	g, err := s.games.LockForUpdate(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", gameID.String())
	}
	if g.LeagueID != l.ID {
		return nil, domain.ErrForbidden("game belongs to another league")
	}
	return g, nil
}

// Update edits the details of one of the caller's games. A change to
// requires_ar re-derives the status.
func (s *GameService) Update(ctx context.Context, userID, gameID uuid.UUID, u GameUpdate) (*domain.Game, error) {
	var out *domain.Game
	err := inTx(ctx, s.pool, "update game", func(tx pgx.Tx) error {
		g, err := s.lockOwned(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		if g.Status == domain.GameCompleted {
			return domain.ErrInvalidState("completed games cannot be edited")
		}

		if u.FieldLocationID != nil {
			g.FieldLocationID = u.FieldLocationID
			if u.Location == nil {
				g.Location = ""
			}
			if u.Latitude == nil && u.Longitude == nil {
				g.Latitude, g.Longitude = nil, nil
			}
		}
		if u.Location != nil {
			g.Location = strings.TrimSpace(*u.Location)
		}
		if u.Latitude != nil || u.Longitude != nil {
			g.Latitude, g.Longitude = u.Latitude, u.Longitude
		}
		if u.ScheduledStart != nil {
			g.ScheduledStart = u.ScheduledStart.UTC()
		}
		if u.AgeGroup != nil {
			g.AgeGroup = strings.TrimSpace(*u.AgeGroup)
		}
		if u.CompetitionLevel != nil {
			g.CompetitionLevel = strings.TrimSpace(*u.CompetitionLevel)
		}
		if u.CenterFee != nil {
			g.CenterFee = *u.CenterFee
		}
		if u.ARFee != nil {
			g.ARFee = *u.ARFee
		}
		if u.RequiresAR != nil {
			g.RequiresAR = *u.RequiresAR
		}

		if err := s.applyField(ctx, tx, g.LeagueID, g); err != nil {
			return err
		}
		if err := validateGame(g); err != nil {
			return err
		}
		if err := s.games.Update(ctx, tx, g); err != nil {
			return err
		}

		active, err := s.assignments.ListActiveByGame(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		if err := setGameStatus(ctx, tx, s.games, s.outbox, g, domain.DeriveGameStatus(g, active)); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// Complete marks an assigned game whose start has passed as completed.
func (s *GameService) Complete(ctx context.Context, userID, gameID uuid.UUID) (*domain.Game, error) {
	var out *domain.Game
	err := inTx(ctx, s.pool, "complete game", func(tx pgx.Tx) error {
		g, err := s.lockOwned(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		if g.Status != domain.GameAssigned {
			return domain.ErrInvalidState("only assigned games can be completed, game is " + string(g.Status))
		}
		if g.ScheduledStart.After(s.now()) {
			return domain.ErrInvalidState("game has not started yet")
		}
		if err := setGameStatus(ctx, tx, s.games, s.outbox, g, domain.GameCompleted); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// setGameStatus persists a status change and its event. No-op when unchanged.
func setGameStatus(ctx context.Context, tx pgx.Tx, games repository.GameRepository, outbox repository.OutboxRepository, g *domain.Game, to domain.GameStatus) error {
	if g.Status == to {
		return nil
	}
	from := g.Status
	if err := games.UpdateStatus(ctx, tx, g.ID, to); err != nil {
		return err
	}
	g.Status = to
	return outbox.Insert(ctx, tx, domain.NewGameStatusEvent(g.ID, from, to))
}
