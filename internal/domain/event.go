package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventUserRegistered      EventType = "refnexus.user.registered"
	EventGameCreated         EventType = "refnexus.game.created"
	EventGameStatusChanged   EventType = "refnexus.game.status_changed"
	EventAssignmentRequested EventType = "refnexus.assignment.requested"
	EventAssignmentAccepted  EventType = "refnexus.assignment.accepted"
	EventAssignmentDeclined  EventType = "refnexus.assignment.declined"
	EventAssignmentCancelled EventType = "refnexus.assignment.cancelled"
	EventRatingCreated       EventType = "refnexus.rating.created"
	EventMessageSent         EventType = "refnexus.message.sent"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUser       AggregateType = "user"
	AggregateGame       AggregateType = "game"
	AggregateAssignment AggregateType = "assignment"
	AggregateReferee    AggregateType = "referee"
	AggregateMessage    AggregateType = "message"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	ID            int64           `json:"-"`
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewEvent builds an outbox draft keyed by the aggregate id.
func NewEvent(aggType AggregateType, aggID uuid.UUID, evtType EventType, payload interface{}) OutboxDraft {
	data, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID.String(),
		EventType:     evtType,
		PartitionKey:  aggID.String(),
		Payload:       data,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewAssignmentEvent records an assignment transition, keyed by game so that
// consumers see a game's transitions in order.
func NewAssignmentEvent(evtType EventType, a *Assignment) OutboxDraft {
	e := NewEvent(AggregateAssignment, a.ID, evtType, a)
	e.PartitionKey = a.GameID.String()
	return e
}

// NewGameStatusEvent records a game status change.
func NewGameStatusEvent(gameID uuid.UUID, from, to GameStatus) OutboxDraft {
	return NewEvent(AggregateGame, gameID, EventGameStatusChanged, map[string]string{
		"game_id": gameID.String(),
		"from":    string(from),
		"to":      string(to),
	})
}

// GuardResult is the outcome of a guard check (rate limit, circuit breaker).
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"`
}
