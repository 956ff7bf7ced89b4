package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/refnexus/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to users.
type UserRepository interface {
	// FindByEmail returns a user by email (case-insensitive), or nil.
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error)

	// FindByID returns a user by ID, or nil.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// Create inserts a new user. A duplicate email returns domain.ErrConflict.
	Create(ctx context.Context, db DBTX, user *domain.User) error

	// Participants resolves display names for the given user IDs from their
	// referee or league profile.
	Participants(ctx context.Context, db DBTX, ids []uuid.UUID) (map[uuid.UUID]domain.Participant, error)
}

// RefereeRepository provides access to referee_profiles.
type RefereeRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.RefereeProfile, error)
	FindByUserID(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.RefereeProfile, error)
	Create(ctx context.Context, db DBTX, p *domain.RefereeProfile) error
	Update(ctx context.Context, db DBTX, p *domain.RefereeProfile) error

	// List returns every referee profile ordered by name.
	List(ctx context.Context, db DBTX) ([]domain.RefereeProfile, error)

	// ListByIDs returns the profiles that exist among ids, in no particular order.
	ListByIDs(ctx context.Context, db DBTX, ids []uuid.UUID) ([]domain.RefereeProfile, error)
}

// LeagueRepository provides access to leagues and their field locations.
type LeagueRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.League, error)
	FindByUserID(ctx context.Context, db DBTX, userID uuid.UUID) (*domain.League, error)
	Create(ctx context.Context, db DBTX, l *domain.League) error
	Update(ctx context.Context, db DBTX, l *domain.League) error

	CreateField(ctx context.Context, db DBTX, f *domain.FieldLocation) error
	FindField(ctx context.Context, db DBTX, id uuid.UUID) (*domain.FieldLocation, error)
	ListFields(ctx context.Context, db DBTX, leagueID uuid.UUID) ([]domain.FieldLocation, error)
}

// GameRepository provides access to games.
type GameRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the game.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Game, error)

	Create(ctx context.Context, db DBTX, g *domain.Game) error

	// Update writes the editable detail columns. Status is not touched.
	Update(ctx context.Context, db DBTX, g *domain.Game) error

	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.GameStatus) error

	// List returns games matching the filter ordered by scheduled_start.
	List(ctx context.Context, db DBTX, f domain.GameFilter) ([]domain.Game, error)
}

// AssignmentRepository provides access to assignments.
type AssignmentRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Assignment, error)

	// LockForUpdate acquires a row-level lock on the assignment.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Assignment, error)

	// Create inserts an assignment. Violating the active (game, role) index
	// returns domain.ErrConflict.
	Create(ctx context.Context, db DBTX, a *domain.Assignment) error

	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.AssignmentStatus, respondedAt *time.Time) error

	ListActiveByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.Assignment, error)
	ListByGame(ctx context.Context, db DBTX, gameID uuid.UUID) ([]domain.AssignmentDetail, error)
	ListByGames(ctx context.Context, db DBTX, gameIDs []uuid.UUID) ([]domain.AssignmentDetail, error)
	ListByReferee(ctx context.Context, db DBTX, refereeID uuid.UUID, status *domain.AssignmentStatus) ([]domain.AssignmentDetail, error)
}

// RatingRepository provides access to ratings, notes and the derived aggregates.
type RatingRepository interface {
	CreateRating(ctx context.Context, db DBTX, r *domain.Rating) error
	ListRatings(ctx context.Context, db DBTX, refereeID uuid.UUID) ([]domain.Rating, error)

	CreateNote(ctx context.Context, db DBTX, n *domain.RefNote) error

	// ListVisibleNotes returns notes newest first. A nil leagueID returns
	// global notes only. limit <= 0 means no limit.
	ListVisibleNotes(ctx context.Context, db DBTX, refereeID uuid.UUID, leagueID *uuid.UUID, limit int) ([]domain.RefNote, error)

	// Aggregates computes total accepted games and rating mean for the given
	// referees. Every requested id is present in the result.
	Aggregates(ctx context.Context, db DBTX, refereeIDs []uuid.UUID) (map[uuid.UUID]domain.RatingAggregate, error)
}

// AvailabilityRepository provides access to availability_slots.
type AvailabilityRepository interface {
	Create(ctx context.Context, db DBTX, s *domain.AvailabilitySlot) error
	ListByReferee(ctx context.Context, db DBTX, refereeID uuid.UUID) ([]domain.AvailabilitySlot, error)

	// ListCovering returns, per referee, the slots that fully contain [start, end].
	ListCovering(ctx context.Context, db DBTX, start, end time.Time) (map[uuid.UUID][]domain.AvailabilitySlot, error)

	// Delete removes a slot owned by refereeID. Returns false if nothing matched.
	Delete(ctx context.Context, db DBTX, id, refereeID uuid.UUID) (bool, error)
}

// MessageRepository provides access to messages.
type MessageRepository interface {
	Create(ctx context.Context, db DBTX, m *domain.Message) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Message, error)

	// ListInvolving returns every message sent or received by userID.
	ListInvolving(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Message, error)

	// ListConversation returns messages between two users oldest first.
	ListConversation(ctx context.Context, db DBTX, userID, otherID uuid.UUID, skip, limit int) ([]domain.Message, error)

	// MarkConversationRead marks unread messages from otherID to userID read
	// and returns how many changed.
	MarkConversationRead(ctx context.Context, db DBTX, userID, otherID uuid.UUID) (int64, error)

	// MarkRead marks one message addressed to recipientID read. Already-read
	// messages are left untouched.
	MarkRead(ctx context.Context, db DBTX, id, recipientID uuid.UUID) (*domain.Message, error)

	UnreadCount(ctx context.Context, db DBTX, userID uuid.UUID) (int, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the mutation).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps published_at on the given rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
