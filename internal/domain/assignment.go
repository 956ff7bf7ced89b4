package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentRole is the position a referee fills on a game.
type AssignmentRole string

const (
	RoleCenter AssignmentRole = "center"
	RoleAR     AssignmentRole = "ar"
)

// Valid reports whether r is a known assignment role.
func (r AssignmentRole) Valid() bool {
	return r == RoleCenter || r == RoleAR
}

// AssignmentStatus is the lifecycle status of an assignment.
type AssignmentStatus string

const (
	AssignmentRequested AssignmentStatus = "requested"
	AssignmentAccepted  AssignmentStatus = "accepted"
	AssignmentDeclined  AssignmentStatus = "declined"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Valid reports whether s is a known assignment status.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentRequested, AssignmentAccepted, AssignmentDeclined, AssignmentCancelled:
		return true
	}
	return false
}

// Active reports whether the assignment holds its (game, role) slot.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentRequested || s == AssignmentAccepted
}

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentRequested: {AssignmentAccepted, AssignmentDeclined, AssignmentCancelled},
	AssignmentAccepted:  {AssignmentCancelled},
}

// CanTransition reports whether an assignment may move from one status to another.
func CanTransition(from, to AssignmentStatus) bool {
	for _, s := range assignmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Assignment links a referee to a role on a game.
type Assignment struct {
	ID          uuid.UUID        `json:"id"`
	GameID      uuid.UUID        `json:"game_id"`
	RefereeID   uuid.UUID        `json:"referee_id"`
	Role        AssignmentRole   `json:"role"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// AssignmentDetail is an assignment joined with its game and referee for listings.
type AssignmentDetail struct {
	Assignment
	Game        *Game  `json:"game,omitempty"`
	RefereeName string `json:"referee_name,omitempty"`
}

// DeriveGameStatus computes a game's status from its active assignments.
// Completed games never change. With no active assignment the game is open;
// when every required role has an accepted assignment it is assigned;
// otherwise it is pending assignment.
func DeriveGameStatus(g *Game, active []Assignment) GameStatus {
	if g.Status == GameCompleted {
		return GameCompleted
	}

	accepted := make(map[AssignmentRole]bool, 2)
	n := 0
	for _, a := range active {
		if !a.Status.Active() || a.GameID != g.ID {
			continue
		}
		n++
		if a.Status == AssignmentAccepted {
			accepted[a.Role] = true
		}
	}
	if n == 0 {
		return GameOpen
	}

	for _, role := range g.RequiredRoles() {
		if !accepted[role] {
			return GamePendingAssignment
		}
	}
	return GameAssigned
}
