package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
)

// LeagueService manages a league's own profile and field locations.
type LeagueService struct {
	pool    *pgxpool.Pool
	leagues repository.LeagueRepository
}

// NewLeagueService creates a new LeagueService.
func NewLeagueService(pool *pgxpool.Pool, leagues repository.LeagueRepository) *LeagueService {
	return &LeagueService{pool: pool, leagues: leagues}
}

// Mine returns the caller's league.
func (s *LeagueService) Mine(ctx context.Context, userID uuid.UUID) (*domain.League, error) {
	l, err := s.leagues.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find league", err)
	}
	if l == nil {
		return nil, domain.ErrNotFound("league for user", userID.String())
	}
	return l, nil
}

// UpdateMine applies a partial update to the caller's league.
func (s *LeagueService) UpdateMine(ctx context.Context, userID uuid.UUID, u domain.LeagueUpdate) (*domain.League, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, domain.ErrValidationField("name", "name must not be empty")
	}

	var out *domain.League
	err := inTx(ctx, s.pool, "update league", func(tx pgx.Tx) error {
		l, err := s.leagues.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if l == nil {
			return domain.ErrNotFound("league for user", userID.String())
		}
		u.Apply(l)
		if err := s.leagues.Update(ctx, tx, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

// FieldInput describes a new field location.
type FieldInput struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ListFields returns the caller's field locations.
func (s *LeagueService) ListFields(ctx context.Context, userID uuid.UUID) ([]domain.FieldLocation, error) {
	l, err := s.Mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.leagues.ListFields(ctx, s.pool, l.ID)
	if err != nil {
		return nil, domain.ErrInternal("list fields", err)
	}
	return out, nil
}

// AddField creates a field location for the caller's league.
func (s *LeagueService) AddField(ctx context.Context, userID uuid.UUID, in FieldInput) (*domain.FieldLocation, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domain.ErrValidationField("name", "name is required")
	}
	if err := domain.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, domain.ErrValidationField("latitude", err.Error())
	}

	l, err := s.Mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	f := &domain.FieldLocation{
		ID:        uuid.New(),
		LeagueID:  l.ID,
		Name:      in.Name,
		Address:   strings.TrimSpace(in.Address),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}
	if err := s.leagues.CreateField(ctx, s.pool, f); err != nil {
		return nil, asAppError("create field", err)
	}
	return f, nil
}
