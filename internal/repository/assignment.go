package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

const activeRoleIndex = "uq_assignments_active_role"

type assignmentRepo struct{}

// NewAssignmentRepository returns a pgx-backed AssignmentRepository.
func NewAssignmentRepository() AssignmentRepository {
	return &assignmentRepo{}
}

const assignmentColumns = `a.id, a.game_id, a.referee_id, a.role, a.status, a.assigned_at, a.responded_at`

func scanAssignment(row pgx.Row) (*domain.Assignment, error) {
	a := &domain.Assignment{}
	err := row.Scan(&a.ID, &a.GameID, &a.RefereeID, &a.Role, &a.Status, &a.AssignedAt, &a.RespondedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *assignmentRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Assignment, error) {
	a, err := scanAssignment(db.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *assignmentRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Assignment, error) {
	a, err := scanAssignment(tx.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments a WHERE a.id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *assignmentRepo) Create(ctx context.Context, db DBTX, a *domain.Assignment) error {
	err := db.QueryRow(ctx, `
		INSERT INTO assignments (id, game_id, referee_id, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING assigned_at`,
		a.ID, a.GameID, a.RefereeID, string(a.Role), string(a.Status),
	).Scan(&a.AssignedAt)
	if isUniqueViolation(err, activeRoleIndex) {
		return domain.ErrConflict(fmt.Sprintf("game already has an active %s assignment", a.Role))
	}
	if isForeignKeyViolation(err) {
		return domain.ErrNotFound("referee", a.RefereeID.String())
	}
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *assignmentRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.AssignmentStatus, respondedAt *time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE assignments SET status = $2, responded_at = COALESCE($3, responded_at)
		WHERE id = $1`, id, string(status), respondedAt)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("assignment", id.String())
	}
	return nil
}

func (r *assignmentRepo) ListActiveByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.Assignment, error) {
	rows, err := db.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments a
		WHERE a.game_id = $1 AND a.status IN ('requested', 'accepted')
		ORDER BY a.assigned_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query active assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const assignmentDetailQuery = `
	SELECT ` + assignmentColumns + `, rp.full_name,
	       g.id, g.league_id, g.field_location_id, g.location, g.latitude, g.longitude, g.scheduled_start,
	       g.age_group, g.competition_level, g.status, g.center_fee, g.ar_fee, g.requires_ar,
	       g.created_at, g.updated_at
	FROM assignments a
	JOIN referee_profiles rp ON rp.id = a.referee_id
	JOIN games g ON g.id = a.game_id`

func (r *assignmentRepo) ListByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.AssignmentDetail, error) {
	return r.listDetails(ctx, db, assignmentDetailQuery+` WHERE a.game_id = $1 ORDER BY a.assigned_at`, gameID)
}

func (r *assignmentRepo) ListByGames(ctx context.Context, db DBTX, gameIDs []uuid.UUID) ([]domain.AssignmentDetail, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	return r.listDetails(ctx, db, assignmentDetailQuery+` WHERE a.game_id = ANY($1) ORDER BY g.scheduled_start, a.role`, gameIDs)
}

func (r *assignmentRepo) ListByReferee(ctx context.Context, db DBTX, refereeID uuid.UUID, status *domain.AssignmentStatus) ([]domain.AssignmentDetail, error) {
	if status != nil {
		return r.listDetails(ctx, db,
			assignmentDetailQuery+` WHERE a.referee_id = $1 AND a.status = $2 ORDER BY g.scheduled_start`,
			refereeID, string(*status))
	}
	return r.listDetails(ctx, db,
		assignmentDetailQuery+` WHERE a.referee_id = $1 ORDER BY g.scheduled_start`, refereeID)
}

func (r *assignmentRepo) listDetails(ctx context.Context, db DBTX, sql string, args ...interface{}) ([]domain.AssignmentDetail, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.AssignmentDetail
	for rows.Next() {
		var (
			d domain.AssignmentDetail
			g domain.Game
		)
		err := rows.Scan(
			&d.ID, &d.GameID, &d.RefereeID, &d.Role, &d.Status, &d.AssignedAt, &d.RespondedAt, &d.RefereeName,
			&g.ID, &g.LeagueID, &g.FieldLocationID, &g.Location, &g.Latitude, &g.Longitude, &g.ScheduledStart,
			&g.AgeGroup, &g.CompetitionLevel, &g.Status, &g.CenterFee, &g.ARFee, &g.RequiresAR,
			&g.CreatedAt, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment detail: %w", err)
		}
		d.Game = &g
		out = append(out, d)
	}
	return out, rows.Err()
}
