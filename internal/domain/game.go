package domain

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus is the lifecycle status of a game.
type GameStatus string

const (
	GameOpen              GameStatus = "open"
	GamePendingAssignment GameStatus = "pending_assignment"
	GameAssigned          GameStatus = "assigned"
	GameCompleted         GameStatus = "completed"
)

// Valid reports whether s is a known game status.
func (s GameStatus) Valid() bool {
	switch s {
	case GameOpen, GamePendingAssignment, GameAssigned, GameCompleted:
		return true
	}
	return false
}

// AcceptsAssignments reports whether new assignment requests may be made.
func (s GameStatus) AcceptsAssignments() bool {
	return s == GameOpen || s == GamePendingAssignment
}

// Game is a fixture owned by a league that needs officials.
type Game struct {
	ID               uuid.UUID  `json:"id"`
	LeagueID         uuid.UUID  `json:"league_id"`
	FieldLocationID  *uuid.UUID `json:"field_location_id,omitempty"`
	Location         string     `json:"location"`
	Latitude         *float64   `json:"latitude,omitempty"`
	Longitude        *float64   `json:"longitude,omitempty"`
	ScheduledStart   time.Time  `json:"scheduled_start"`
	AgeGroup         string     `json:"age_group"`
	CompetitionLevel string     `json:"competition_level"`
	Status           GameStatus `json:"status"`
	CenterFee        float64    `json:"center_fee"`
	ARFee            float64    `json:"ar_fee"`
	RequiresAR       bool       `json:"requires_ar"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RequiredRoles lists the roles that must be accepted before the game is assigned.
func (g *Game) RequiredRoles() []AssignmentRole {
	if g.RequiresAR {
		return []AssignmentRole{RoleCenter, RoleAR}
	}
	return []AssignmentRole{RoleCenter}
}

// GameFilter narrows game listings.
type GameFilter struct {
	LeagueID *uuid.UUID
	Status   *GameStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
