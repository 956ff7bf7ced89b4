package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

// PgUserRepository implements UserRepository using pgx.
type PgUserRepository struct{}

// NewPgUserRepository creates a new PgUserRepository.
func NewPgUserRepository() *PgUserRepository {
	return &PgUserRepository{}
}

const userColumns = `id, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByEmail returns a user by email, or nil if not found.
func (r *PgUserRepository) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID returns a user by ID, or nil if not found.
func (r *PgUserRepository) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	return scanUser(db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a new user.
func (r *PgUserRepository) Create(ctx context.Context, db DBTX, user *domain.User) error {
	err := db.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.PasswordHash, string(user.Role)).Scan(&user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err, "") {
		return domain.ErrConflict("email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Participants resolves display names from referee or league profiles,
// falling back to the email address.
func (r *PgUserRepository) Participants(ctx context.Context, db DBTX, ids []uuid.UUID) (map[uuid.UUID]domain.Participant, error) {
	out := make(map[uuid.UUID]domain.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := db.Query(ctx, `
		SELECT u.id, u.role, COALESCE(NULLIF(rp.full_name, ''), l.name, u.email::text)
		FROM users u
		LEFT JOIN referee_profiles rp ON rp.user_id = u.id
		LEFT JOIN leagues l ON l.user_id = u.id
		WHERE u.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.UserID, &p.Role, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}
