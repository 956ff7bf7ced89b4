package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/inbox"
	"github.com/refnexus/platform/internal/repository"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// MessageService handles direct messages and pushes unread counts to the
// affected user once a change is committed.
type MessageService struct {
	pool     *pgxpool.Pool
	messages repository.MessageRepository
	users    repository.UserRepository
	games    repository.GameRepository
	outbox   repository.OutboxRepository
	notifier Notifier
	logger   *slog.Logger
}

// NewMessageService creates a new MessageService. A nil notifier disables pushes.
func NewMessageService(
	pool *pgxpool.Pool,
	messages repository.MessageRepository,
	users repository.UserRepository,
	games repository.GameRepository,
	outbox repository.OutboxRepository,
	notifier Notifier,
	logger *slog.Logger,
) *MessageService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MessageService{
		pool:     pool,
		messages: messages,
		users:    users,
		games:    games,
		outbox:   outbox,
		notifier: notifier,
		logger:   logger,
	}
}

// SendInput is a new direct message.
type SendInput struct {
	RecipientID uuid.UUID  `json:"recipient_id"`
	Content     string     `json:"content"`
	GameID      *uuid.UUID `json:"game_id"`
}

// Send stores an unread message from senderID and notifies the recipient.
func (s *MessageService) Send(ctx context.Context, senderID uuid.UUID, in SendInput) (*domain.Message, error) {
	if err := domain.ValidateMessageContent(in.Content); err != nil {
		return nil, domain.ErrValidationField("content", err.Error())
	}
	if in.RecipientID == uuid.Nil {
		return nil, domain.ErrValidationField("recipient_id", "recipient_id is required")
	}
	if in.RecipientID == senderID {
		return nil, domain.ErrValidationField("recipient_id", "cannot message yourself")
	}

	m := &domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		GameID:      in.GameID,
		Content:     strings.TrimSpace(in.Content),
	}
	err := inTx(ctx, s.pool, "send message", func(tx pgx.Tx) error {
		recipient, err := s.users.FindByID(ctx, tx, in.RecipientID)
		if err != nil {
			return err
		}
		if recipient == nil {
			return domain.ErrNotFound("user", in.RecipientID.String())
		}
		if in.GameID != nil {
			g, err := s.games.FindByID(ctx, tx, *in.GameID)
			if err != nil {
				return err
			}
			if g == nil {
				return domain.ErrValidationField("game_id", "game not found")
			}
		}
		if err := s.messages.Create(ctx, tx, m); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewEvent(domain.AggregateMessage, m.ID, domain.EventMessageSent, map[string]string{
			"message_id":   m.ID.String(),
			"sender_id":    m.SenderID.String(),
			"recipient_id": m.RecipientID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	s.pushUnread(ctx, m.RecipientID)
	return m, nil
}

// Conversations returns the caller's inbox, most recent first.
func (s *MessageService) Conversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	msgs, err := s.messages.ListInvolving(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("list messages", err)
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, m := range msgs {
		other := m.Counterpart(userID)
		if !seen[other] {
			seen[other] = true
			ids = append(ids, other)
		}
	}
	participants, err := s.users.Participants(ctx, s.pool, ids)
	if err != nil {
		return nil, domain.ErrInternal("resolve participants", err)
	}
	return inbox.Aggregate(userID, msgs, participants), nil
}

// History returns the messages exchanged with otherID, oldest first.
func (s *MessageService) History(ctx context.Context, userID, otherID uuid.UUID, skip, limit int) ([]domain.Message, error) {
	if skip < 0 {
		return nil, domain.ErrValidationField("skip", "skip must be >= 0")
	}
	switch {
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit < 0 || limit > MaxHistoryLimit:
		return nil, domain.ErrValidationField("limit", "limit must be between 1 and 100")
	}
	out, err := s.messages.ListConversation(ctx, s.pool, userID, otherID, skip, limit)
	if err != nil {
		return nil, domain.ErrInternal("list conversation", err)
	}
	if out == nil {
		out = []domain.Message{}
	}
	return out, nil
}

// MarkConversationRead marks everything otherID sent to the caller as read
// and returns how many messages changed.
func (s *MessageService) MarkConversationRead(ctx context.Context, userID, otherID uuid.UUID) (int64, error) {
	n, err := s.messages.MarkConversationRead(ctx, s.pool, userID, otherID)
	if err != nil {
		return 0, domain.ErrInternal("mark conversation read", err)
	}
	if n > 0 {
		s.pushUnread(ctx, userID)
	}
	return n, nil
}

// MarkRead marks one message addressed to the caller as read.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	before, err := s.messages.FindByID(ctx, s.pool, messageID)
	if err != nil {
		return nil, domain.ErrInternal("find message", err)
	}
	if before == nil || before.RecipientID != userID {
		return nil, domain.ErrNotFound("message", messageID.String())
	}
	m, err := s.messages.MarkRead(ctx, s.pool, messageID, userID)
	if err != nil {
		return nil, domain.ErrInternal("mark message read", err)
	}
	if m == nil {
		return nil, domain.ErrNotFound("message", messageID.String())
	}
	if !before.IsRead {
		s.pushUnread(ctx, userID)
	}
	return m, nil
}

// UnreadCount returns how many messages addressed to the caller are unread.
func (s *MessageService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.messages.UnreadCount(ctx, s.pool, userID)
	if err != nil {
		return 0, domain.ErrInternal("count unread", err)
	}
	return n, nil
}

// pushUnread sends the current unread count to every open socket of userID.
// Failures are logged and never surfaced.
func (s *MessageService) pushUnread(ctx context.Context, userID uuid.UUID) {
	n, err := s.messages.UnreadCount(ctx, s.pool, userID)
	if err != nil {
		s.logger.Warn("unread push skipped", "user_id", userID, "error", err)
		return
	}
	s.notifier.PublishToUser(userID.String(), domain.NewUnreadEvent(n))
}
