package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

type refereeRepo struct{}

// NewRefereeRepository returns a pgx-backed RefereeRepository.
func NewRefereeRepository() RefereeRepository {
	return &refereeRepo{}
}

const refereeColumns = `id, user_id, full_name, cert_level, years_experience, home_location,
	latitude, longitude, travel_radius_km, bio, created_at, updated_at`

func scanReferee(row pgx.Row) (*domain.RefereeProfile, error) {
	p := &domain.RefereeProfile{}
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.CertLevel, &p.YearsExperience, &p.HomeLocation,
		&p.Latitude, &p.Longitude, &p.TravelRadiusKm, &p.Bio, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func findReferee(ctx context.Context, db DBTX, where string, arg interface{}) (*domain.RefereeProfile, error) {
	p, err := scanReferee(db.QueryRow(ctx, `SELECT `+refereeColumns+` FROM referee_profiles WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *refereeRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RefereeProfile, error) {
	return findReferee(ctx, db, "id = $1", id)
}

func (r *refereeRepo) FindByUserID(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.RefereeProfile, error) {
	return findReferee(ctx, db, "user_id = $1", userID)
}

func (r *refereeRepo) Create(ctx context.Context, db DBTX, p *domain.RefereeProfile) error {
	err := db.QueryRow(ctx, `
		INSERT INTO referee_profiles (id, user_id, full_name, cert_level, years_experience, home_location,
			latitude, longitude, travel_radius_km, bio)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.FullName, p.CertLevel, p.YearsExperience, p.HomeLocation,
		p.Latitude, p.Longitude, p.TravelRadiusKm, p.Bio,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert referee profile: %w", err)
	}
	return nil
}

func (r *refereeRepo) Update(ctx context.Context, db DBTX, p *domain.RefereeProfile) error {
	err := db.QueryRow(ctx, `
		UPDATE referee_profiles
		SET full_name = $2, cert_level = $3, years_experience = $4, home_location = $5,
		    latitude = $6, longitude = $7, travel_radius_km = $8, bio = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FullName, p.CertLevel, p.YearsExperience, p.HomeLocation,
		p.Latitude, p.Longitude, p.TravelRadiusKm, p.Bio,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound("referee", p.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update referee profile: %w", err)
	}
	return nil
}

func (r *refereeRepo) List(ctx context.Context, db DBTX) ([]domain.RefereeProfile, error) {
	return r.query(ctx, db, `SELECT `+refereeColumns+` FROM referee_profiles ORDER BY full_name, id`)
}

func (r *refereeRepo) ListByIDs(ctx context.Context, db DBTX, ids []uuid.UUID) ([]domain.RefereeProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, db, `SELECT `+refereeColumns+` FROM referee_profiles WHERE id = ANY($1)`, ids)
}

func (r *refereeRepo) query(ctx context.Context, db DBTX, sql string, args ...interface{}) ([]domain.RefereeProfile, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query referee profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.RefereeProfile
	for rows.Next() {
		p, err := scanReferee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referee profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
