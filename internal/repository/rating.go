package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
)

type ratingRepo struct{}

// NewRatingRepository returns a pgx-backed RatingRepository.
func NewRatingRepository() RatingRepository {
	return &ratingRepo{}
}

func (r *ratingRepo) CreateRating(ctx context.Context, db DBTX, rt *domain.Rating) error {
	err := db.QueryRow(ctx, `
		INSERT INTO ratings (id, league_id, referee_id, game_id, score, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		rt.ID, rt.LeagueID, rt.RefereeID, rt.GameID, rt.Score, rt.Comment,
	).Scan(&rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

func (r *ratingRepo) ListRatings(ctx context.Context, db DBTX, refereeID uuid.UUID) ([]domain.Rating, error) {
	rows, err := db.Query(ctx, `
		SELECT id, league_id, referee_id, game_id, score, comment, created_at
		FROM ratings WHERE referee_id = $1
		ORDER BY created_at DESC`, refereeID)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []domain.Rating
	for rows.Next() {
		var rt domain.Rating
		if err := rows.Scan(&rt.ID, &rt.LeagueID, &rt.RefereeID, &rt.GameID, &rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *ratingRepo) CreateNote(ctx context.Context, db DBTX, n *domain.RefNote) error {
	err := db.QueryRow(ctx, `
		INSERT INTO ref_notes (id, league_id, referee_id, game_id, note_text, visibility)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		n.ID, n.LeagueID, n.RefereeID, n.GameID, n.NoteText, string(n.Visibility),
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *ratingRepo) ListVisibleNotes(ctx context.Context, db DBTX, refereeID uuid.UUID, leagueID *uuid.UUID, limit int) ([]domain.RefNote, error) {
	sql := `
		SELECT id, league_id, referee_id, game_id, note_text, visibility, created_at
		FROM ref_notes
		WHERE referee_id = $1 AND (visibility = 'global' OR league_id = $2)
		ORDER BY created_at DESC, id`
	args := []interface{}{refereeID, leagueID}
	if limit > 0 {
		sql += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := []domain.RefNote{}
	for rows.Next() {
		var n domain.RefNote
		if err := rows.Scan(&n.ID, &n.LeagueID, &n.RefereeID, &n.GameID, &n.NoteText, &n.Visibility, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *ratingRepo) Aggregates(ctx context.Context, db DBTX, refereeIDs []uuid.UUID) (map[uuid.UUID]domain.RatingAggregate, error) {
	out := make(map[uuid.UUID]domain.RatingAggregate, len(refereeIDs))
	if len(refereeIDs) == 0 {
		return out, nil
	}
	for _, id := range refereeIDs {
		out[id] = domain.RatingAggregate{RefereeID: id}
	}

	rows, err := db.Query(ctx, `
		SELECT ids.id,
		       COALESCE(a.games, 0),
		       COALESCE(r.avg_score, 0),
		       COALESCE(r.cnt, 0)
		FROM unnest($1::uuid[]) AS ids(id)
		LEFT JOIN (
			SELECT referee_id, COUNT(*) AS games
			FROM assignments WHERE status = 'accepted'
			GROUP BY referee_id
		) a ON a.referee_id = ids.id
		LEFT JOIN (
			SELECT referee_id, AVG(score)::float8 AS avg_score, COUNT(*) AS cnt
			FROM ratings
			GROUP BY referee_id
		) r ON r.referee_id = ids.id`, refereeIDs)
	if err != nil {
		return nil, fmt.Errorf("query rating aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var agg domain.RatingAggregate
		if err := rows.Scan(&agg.RefereeID, &agg.TotalGames, &agg.AverageRating, &agg.RatingCount); err != nil {
			return nil, fmt.Errorf("scan rating aggregate: %w", err)
		}
		out[agg.RefereeID] = agg
	}
	return out, rows.Err()
}
