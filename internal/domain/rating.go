package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rating is a league's post-game score for a referee. Ratings are append-only.
type Rating struct {
	ID        uuid.UUID `json:"id"`
	LeagueID  uuid.UUID `json:"league_id"`
	RefereeID uuid.UUID `json:"referee_id"`
	GameID    uuid.UUID `json:"game_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteVisibility controls which leagues can read a note.
type NoteVisibility string

const (
	VisibilityPrivate NoteVisibility = "private_to_league"
	VisibilityGlobal  NoteVisibility = "global"
)

// Valid reports whether v is a known visibility.
func (v NoteVisibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityGlobal
}

// RefNote is a league's free-text note about a referee. Notes are append-only.
type RefNote struct {
	ID         uuid.UUID      `json:"id"`
	LeagueID   uuid.UUID      `json:"league_id"`
	RefereeID  uuid.UUID      `json:"referee_id"`
	GameID     *uuid.UUID     `json:"game_id,omitempty"`
	NoteText   string         `json:"note_text"`
	Visibility NoteVisibility `json:"visibility"`
	CreatedAt  time.Time      `json:"created_at"`
}

// VisibleTo reports whether a viewer from leagueID may read the note.
// A nil leagueID (referee viewers) only sees global notes.
func (n RefNote) VisibleTo(leagueID *uuid.UUID) bool {
	if n.Visibility == VisibilityGlobal {
		return true
	}
	return leagueID != nil && *leagueID == n.LeagueID
}

// AverageScore returns the mean of scores, or 0 for none.
func AverageScore(scores []int) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}
