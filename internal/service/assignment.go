package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/projection"
	"github.com/refnexus/platform/internal/repository"
)

// AssignmentService runs the assignment state machine. Every transition
// locks the game row, so concurrent requests for the same game serialize.
type AssignmentService struct {
	pool        *pgxpool.Pool
	games       repository.GameRepository
	assignments repository.AssignmentRepository
	referees    repository.RefereeRepository
	leagues     repository.LeagueRepository
	outbox      repository.OutboxRepository
	stats       *projection.StatsCache
	logger      *slog.Logger
	now         func() time.Time
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(
	pool *pgxpool.Pool,
	games repository.GameRepository,
	assignments repository.AssignmentRepository,
	referees repository.RefereeRepository,
	leagues repository.LeagueRepository,
	outbox repository.OutboxRepository,
	stats *projection.StatsCache,
	logger *slog.Logger,
) *AssignmentService {
	return &AssignmentService{
		pool:        pool,
		games:       games,
		assignments: assignments,
		referees:    referees,
		leagues:     leagues,
		outbox:      outbox,
		stats:       stats,
		logger:      logger,
		now:         time.Now,
	}
}

// AssignmentInput requests a referee for a role on a game.
type AssignmentInput struct {
	RefereeID uuid.UUID             `json:"referee_id"`
	Role      domain.AssignmentRole `json:"role"`
}

// RespondInput is a referee's answer to a request.
type RespondInput struct {
	Response domain.AssignmentStatus `json:"response"`
}

// lockGame locks the game and rejects completed games.
func (s *AssignmentService) lockGame(ctx context.Context, tx pgx.Tx, gameID uuid.UUID) (*domain.Game, error) {
	g, err := s.games.LockForUpdate(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", gameID.String())
	}
	if g.Status == domain.GameCompleted {
		return nil, domain.ErrInvalidState("game is completed")
	}
	return g, nil
}

// lockOwnedGame locks a game of the caller's league.
func (s *AssignmentService) lockOwnedGame(ctx context.Context, tx pgx.Tx, userID, gameID uuid.UUID) (*domain.Game, error) {
	l, err := s.leagues.FindByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, domain.ErrNotFound("league for user", userID.String())
	}
	g, err := s.lockGame(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	if g.LeagueID != l.ID {
		return nil, domain.ErrForbidden("game belongs to another league")
	}
	return g, nil
}

// rederive recomputes the game status from its active assignments.
func (s *AssignmentService) rederive(ctx context.Context, tx pgx.Tx, g *domain.Game) error {
	active, err := s.assignments.ListActiveByGame(ctx, tx, g.ID)
	if err != nil {
		return err
	}
	return setGameStatus(ctx, tx, s.games, s.outbox, g, domain.DeriveGameStatus(g, active))
}

// Create requests a referee for a role on one of the caller's games.
func (s *AssignmentService) Create(ctx context.Context, userID, gameID uuid.UUID, in AssignmentInput) (*domain.Assignment, error) {
	if !in.Role.Valid() {
		return nil, domain.ErrValidationField("role", "role must be center or ar")
	}
	if in.RefereeID == uuid.Nil {
		return nil, domain.ErrValidationField("referee_id", "referee_id is required")
	}

	a := &domain.Assignment{
		ID:        uuid.New(),
		GameID:    gameID,
		RefereeID: in.RefereeID,
		Role:      in.Role,
		Status:    domain.AssignmentRequested,
	}
	err := inTx(ctx, s.pool, "create assignment", func(tx pgx.Tx) error {
		g, err := s.lockOwnedGame(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		if !g.Status.AcceptsAssignments() {
			return domain.ErrInvalidState("game does not accept assignments, status is " + string(g.Status))
		}

		ref, err := s.referees.FindByID(ctx, tx, in.RefereeID)
		if err != nil {
			return err
		}
		if ref == nil {
			return domain.ErrNotFound("referee", in.RefereeID.String())
		}

		active, err := s.assignments.ListActiveByGame(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		for _, other := range active {
			if other.Role == in.Role {
				return domain.ErrConflict("role " + string(in.Role) + " already has an active assignment")
			}
			if other.RefereeID == in.RefereeID {
				return domain.ErrConflict("referee already holds the " + string(other.Role) + " role on this game")
			}
		}

		a.AssignedAt = s.now().UTC()
		if err := s.assignments.Create(ctx, tx, a); err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewAssignmentEvent(domain.EventAssignmentRequested, a)); err != nil {
			return err
		}
		return setGameStatus(ctx, tx, s.games, s.outbox, g, domain.DeriveGameStatus(g, append(active, *a)))
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Respond lets the requested referee accept or decline.
func (s *AssignmentService) Respond(ctx context.Context, userID, assignmentID uuid.UUID, in RespondInput) (*domain.Assignment, error) {
	var evt domain.EventType
	switch in.Response {
	case domain.AssignmentAccepted:
		evt = domain.EventAssignmentAccepted
	case domain.AssignmentDeclined:
		evt = domain.EventAssignmentDeclined
	default:
		return nil, domain.ErrValidationField("response", "response must be accepted or declined")
	}

	var out *domain.Assignment
	err := inTx(ctx, s.pool, "respond to assignment", func(tx pgx.Tx) error {
		ref, err := s.referees.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		current, err := s.assignments.FindByID(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if current == nil || ref == nil || current.RefereeID != ref.ID {
			return domain.ErrNotFound("assignment", assignmentID.String())
		}

		// Game first, then assignment: the same lock order as Create and Cancel.
		g, err := s.lockGame(ctx, tx, current.GameID)
		if err != nil {
			return err
		}
		a, err := s.assignments.LockForUpdate(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil {
			return domain.ErrNotFound("assignment", assignmentID.String())
		}
		if a.Status != domain.AssignmentRequested {
			return domain.ErrInvalidState("assignment is " + string(a.Status) + ", only requested assignments can be answered")
		}

		now := s.now().UTC()
		if err := s.assignments.UpdateStatus(ctx, tx, a.ID, in.Response, &now); err != nil {
			return err
		}
		a.Status = in.Response
		a.RespondedAt = &now
		if err := s.outbox.Insert(ctx, tx, domain.NewAssignmentEvent(evt, a)); err != nil {
			return err
		}
		if err := s.rederive(ctx, tx, g); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Status == domain.AssignmentAccepted {
		s.stats.Invalidate(ctx, out.RefereeID)
	}
	return out, nil
}

// Cancel withdraws a requested or accepted assignment on one of the
// caller's games.
func (s *AssignmentService) Cancel(ctx context.Context, userID, gameID, assignmentID uuid.UUID) (*domain.Assignment, error) {
	var (
		out         *domain.Assignment
		wasAccepted bool
	)
	err := inTx(ctx, s.pool, "cancel assignment", func(tx pgx.Tx) error {
		g, err := s.lockOwnedGame(ctx, tx, userID, gameID)
		if err != nil {
			return err
		}
		a, err := s.assignments.LockForUpdate(ctx, tx, assignmentID)
		if err != nil {
			return err
		}
		if a == nil || a.GameID != g.ID {
			return domain.ErrNotFound("assignment", assignmentID.String())
		}
		if !domain.CanTransition(a.Status, domain.AssignmentCancelled) {
			return domain.ErrInvalidState("assignment is already " + string(a.Status))
		}
		wasAccepted = a.Status == domain.AssignmentAccepted

		now := s.now().UTC()
		if err := s.assignments.UpdateStatus(ctx, tx, a.ID, domain.AssignmentCancelled, &now); err != nil {
			return err
		}
		a.Status = domain.AssignmentCancelled
		a.RespondedAt = &now
		if err := s.outbox.Insert(ctx, tx, domain.NewAssignmentEvent(domain.EventAssignmentCancelled, a)); err != nil {
			return err
		}
		if err := s.rederive(ctx, tx, g); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wasAccepted {
		s.stats.Invalidate(ctx, out.RefereeID)
	}
	return out, nil
}

// ListByGame returns every assignment of a game in request order.
func (s *AssignmentService) ListByGame(ctx context.Context, gameID uuid.UUID) ([]domain.AssignmentDetail, error) {
	g, err := s.games.FindByID(ctx, s.pool, gameID)
	if err != nil {
		return nil, domain.ErrInternal("find game", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("game", gameID.String())
	}
	out, err := s.assignments.ListByGame(ctx, s.pool, gameID)
	if err != nil {
		return nil, domain.ErrInternal("list assignments", err)
	}
	if out == nil {
		out = []domain.AssignmentDetail{}
	}
	return out, nil
}

// ListMine returns the caller's assignments, optionally filtered by status.
func (s *AssignmentService) ListMine(ctx context.Context, userID uuid.UUID, status *domain.AssignmentStatus) ([]domain.AssignmentDetail, error) {
	if status != nil && !status.Valid() {
		return nil, domain.ErrValidationField("status", "unknown assignment status")
	}
	ref, err := s.referees.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find referee", err)
	}
	if ref == nil {
		return nil, domain.ErrNotFound("referee profile for user", userID.String())
	}
	out, err := s.assignments.ListByReferee(ctx, s.pool, ref.ID, status)
	if err != nil {
		return nil, domain.ErrInternal("list assignments", err)
	}
	if out == nil {
		out = []domain.AssignmentDetail{}
	}
	return out, nil
}
