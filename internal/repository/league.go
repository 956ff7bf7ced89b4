package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

type leagueRepo struct{}

// NewLeagueRepository returns a pgx-backed LeagueRepository.
func NewLeagueRepository() LeagueRepository {
	return &leagueRepo{}
}

const leagueColumns = `id, user_id, name, primary_region, level, created_at, updated_at`

func (r *leagueRepo) find(ctx context.Context, db DBTX, where string, arg interface{}) (*domain.League, error) {
	l := &domain.League{}
	err := db.QueryRow(ctx, `SELECT `+leagueColumns+` FROM leagues WHERE `+where, arg).
		Scan(&l.ID, &l.UserID, &l.Name, &l.PrimaryRegion, &l.Level, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *leagueRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.League, error) {
	return r.find(ctx, db, "id = $1", id)
}

func (r *leagueRepo) FindByUserID(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.League, error) {
	return r.find(ctx, db, "user_id = $1", userID)
}

func (r *leagueRepo) Create(ctx context.Context, db DBTX, l *domain.League) error {
	err := db.QueryRow(ctx, `
		INSERT INTO leagues (id, user_id, name, primary_region, level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		l.ID, l.UserID, l.Name, l.PrimaryRegion, l.Level,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert league: %w", err)
	}
	return nil
}

func (r *leagueRepo) Update(ctx context.Context, db DBTX, l *domain.League) error {
	err := db.QueryRow(ctx, `
		UPDATE leagues SET name = $2, primary_region = $3, level = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.Name, l.PrimaryRegion, l.Level,
	).Scan(&l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound("league", l.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update league: %w", err)
	}
	return nil
}

const fieldColumns = `id, league_id, name, address, latitude, longitude, created_at`

func (r *leagueRepo) CreateField(ctx context.Context, db DBTX, f *domain.FieldLocation) error {
	err := db.QueryRow(ctx, `
		INSERT INTO field_locations (id, league_id, name, address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		f.ID, f.LeagueID, f.Name, f.Address, f.Latitude, f.Longitude,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert field location: %w", err)
	}
	return nil
}

func (r *leagueRepo) FindField(ctx context.Context, db DBTX, id uuid.UUID) (*domain.FieldLocation, error) {
	f := &domain.FieldLocation{}
	err := db.QueryRow(ctx, `SELECT `+fieldColumns+` FROM field_locations WHERE id = $1`, id).
		Scan(&f.ID, &f.LeagueID, &f.Name, &f.Address, &f.Latitude, &f.Longitude, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *leagueRepo) ListFields(ctx context.Context, db DBTX, leagueID uuid.UUID) ([]domain.FieldLocation, error) {
	rows, err := db.Query(ctx,
		`SELECT `+fieldColumns+` FROM field_locations WHERE league_id = $1 ORDER BY name`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("query field locations: %w", err)
	}
	defer rows.Close()

	var out []domain.FieldLocation
	for rows.Next() {
		var f domain.FieldLocation
		if err := rows.Scan(&f.ID, &f.LeagueID, &f.Name, &f.Address, &f.Latitude, &f.Longitude, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan field location: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
