package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

type gameRepo struct{}

// NewGameRepository returns a pgx-backed GameRepository.
func NewGameRepository() GameRepository {
	return &gameRepo{}
}

const gameColumns = `id, league_id, field_location_id, location, latitude, longitude, scheduled_start,
	age_group, competition_level, status, center_fee, ar_fee, requires_ar, created_at, updated_at`

func scanGame(row pgx.Row) (*domain.Game, error) {
	g := &domain.Game{}
	err := row.Scan(&g.ID, &g.LeagueID, &g.FieldLocationID, &g.Location, &g.Latitude, &g.Longitude,
		&g.ScheduledStart, &g.AgeGroup, &g.CompetitionLevel, &g.Status, &g.CenterFee, &g.ARFee,
		&g.RequiresAR, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *gameRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error) {
	g, err := scanGame(db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *gameRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Game, error) {
	g, err := scanGame(tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *gameRepo) Create(ctx context.Context, db DBTX, g *domain.Game) error {
	err := db.QueryRow(ctx, `
		INSERT INTO games (id, league_id, field_location_id, location, latitude, longitude, scheduled_start,
			age_group, competition_level, status, center_fee, ar_fee, requires_ar)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		g.ID, g.LeagueID, g.FieldLocationID, g.Location, g.Latitude, g.Longitude, g.ScheduledStart,
		g.AgeGroup, g.CompetitionLevel, string(g.Status), g.CenterFee, g.ARFee, g.RequiresAR,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *gameRepo) Update(ctx context.Context, db DBTX, g *domain.Game) error {
	err := db.QueryRow(ctx, `
		UPDATE games
		SET field_location_id = $2, location = $3, latitude = $4, longitude = $5, scheduled_start = $6,
		    age_group = $7, competition_level = $8, center_fee = $9, ar_fee = $10, requires_ar = $11,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		g.ID, g.FieldLocationID, g.Location, g.Latitude, g.Longitude, g.ScheduledStart,
		g.AgeGroup, g.CompetitionLevel, g.CenterFee, g.ARFee, g.RequiresAR,
	).Scan(&g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound("game", g.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	return nil
}

func (r *gameRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.GameStatus) error {
	tag, err := db.Exec(ctx,
		`UPDATE games SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("game", id.String())
	}
	return nil
}

func (r *gameRepo) List(ctx context.Context, db DBTX, f domain.GameFilter) ([]domain.Game, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.LeagueID != nil {
		add("league_id = $%d", *f.LeagueID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.From != nil {
		add("scheduled_start >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_start <= $%d", *f.To)
	}

	sql := `SELECT ` + gameColumns + ` FROM games`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY scheduled_start ASC, id ASC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
