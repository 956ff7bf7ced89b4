package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/refnexus/platform/internal/domain"
)

type messageRepo struct{}

// NewMessageRepository returns a pgx-backed MessageRepository.
func NewMessageRepository() MessageRepository {
	return &messageRepo{}
}

const messageColumns = `id, sender_id, recipient_id, game_id, content, is_read, read_at, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.GameID, &m.Content, &m.IsRead, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *messageRepo) Create(ctx context.Context, db DBTX, m *domain.Message) error {
	err := db.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, game_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING is_read, created_at`,
		m.ID, m.SenderID, m.RecipientID, m.GameID, m.Content,
	).Scan(&m.IsRead, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Message, error) {
	m, err := scanMessage(db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *messageRepo) ListInvolving(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Message, error) {
	return r.list(ctx, db, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC`, userID)
}

func (r *messageRepo) ListConversation(ctx context.Context, db DBTX, userID, otherID uuid.UUID, skip, limit int) ([]domain.Message, error) {
	return r.list(ctx, db, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC
		OFFSET $3 LIMIT $4`, userID, otherID, skip, limit)
}

func (r *messageRepo) list(ctx context.Context, db DBTX, sql string, args ...interface{}) ([]domain.Message, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *messageRepo) MarkConversationRead(ctx context.Context, db DBTX, userID, otherID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE messages SET is_read = true, read_at = now()
		WHERE recipient_id = $1 AND sender_id = $2 AND NOT is_read`, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *messageRepo) MarkRead(ctx context.Context, db DBTX, id, recipientID uuid.UUID) (*domain.Message, error) {
	m, err := scanMessage(db.QueryRow(ctx, `
		UPDATE messages
		SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+messageColumns, id, recipientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	return m, nil
}

func (r *messageRepo) UnreadCount(ctx context.Context, db DBTX, userID uuid.UUID) (int, error) {
	var n int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
