package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
)

type availabilityRepo struct{}

// NewAvailabilityRepository returns a pgx-backed AvailabilityRepository.
func NewAvailabilityRepository() AvailabilityRepository {
	return &availabilityRepo{}
}

func (r *availabilityRepo) Create(ctx context.Context, db DBTX, s *domain.AvailabilitySlot) error {
	err := db.QueryRow(ctx, `
		INSERT INTO availability_slots (id, referee_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		s.ID, s.RefereeID, s.StartTime, s.EndTime,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert availability slot: %w", err)
	}
	return nil
}

func (r *availabilityRepo) ListByReferee(ctx context.Context, db DBTX, refereeID uuid.UUID) ([]domain.AvailabilitySlot, error) {
	rows, err := db.Query(ctx, `
		SELECT id, referee_id, start_time, end_time, created_at
		FROM availability_slots WHERE referee_id = $1
		ORDER BY start_time`, refereeID)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	out := []domain.AvailabilitySlot{}
	for rows.Next() {
		var s domain.AvailabilitySlot
		if err := rows.Scan(&s.ID, &s.RefereeID, &s.StartTime, &s.EndTime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan availability slot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *availabilityRepo) ListCovering(ctx context.Context, db DBTX, start, end time.Time) (map[uuid.UUID][]domain.AvailabilitySlot, error) {
	rows, err := db.Query(ctx, `
		SELECT id, referee_id, start_time, end_time, created_at
		FROM availability_slots
		WHERE start_time <= $1 AND end_time >= $2`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query covering availability: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.AvailabilitySlot)
	for rows.Next() {
		var s domain.AvailabilitySlot
		if err := rows.Scan(&s.ID, &s.RefereeID, &s.StartTime, &s.EndTime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan availability slot: %w", err)
		}
		out[s.RefereeID] = append(out[s.RefereeID], s)
	}
	return out, rows.Err()
}

func (r *availabilityRepo) Delete(ctx context.Context, db DBTX, id, refereeID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx,
		`DELETE FROM availability_slots WHERE id = $1 AND referee_id = $2`, id, refereeID)
	if err != nil {
		return false, fmt.Errorf("delete availability slot: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
