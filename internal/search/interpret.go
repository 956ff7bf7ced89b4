package search

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxSuggestions caps how many referees a natural-language search returns.
const MaxSuggestions = 5

// ErrInterpreterDisabled is returned when no AI backend is configured.
var ErrInterpreterDisabled = errors.New("natural-language search is not configured")

// GameContext describes the game a league is staffing, when one is given.
type GameContext struct {
	Location         string    `json:"location"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	AgeGroup         string    `json:"age_group,omitempty"`
	CompetitionLevel string    `json:"competition_level,omitempty"`
	RequiresAR       bool      `json:"requires_ar"`
}

// RosterEntry is one referee as presented to the interpreter.
type RosterEntry struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CertLevel       string    `json:"cert_level,omitempty"`
	YearsExperience int       `json:"years_experience"`
	HomeLocation    string    `json:"home_location,omitempty"`
	TravelRadiusKm  *float64  `json:"travel_radius_km,omitempty"`
	AverageRating   float64   `json:"average_rating"`
	TotalGames      int       `json:"total_games"`
	DistanceKm      *float64  `json:"distance_km,omitempty"`
}

// InterpretContext is what the interpreter ranks against.
type InterpretContext struct {
	Game   *GameContext  `json:"game,omitempty"`
	Roster []RosterEntry `json:"roster"`
}

// Interpretation is the interpreter's answer: referee IDs best first.
type Interpretation struct {
	RankedIDs   []uuid.UUID
	Explanation string
}

// Interpreter turns a free-text request into a ranking of roster referees.
type Interpreter interface {
	Interpret(ctx context.Context, query string, ictx InterpretContext) (*Interpretation, error)
}

// KeepKnown returns ids that appear in known, in order, without duplicates,
// capped at limit.
func KeepKnown(ids []uuid.UUID, known map[uuid.UUID]bool, limit int) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		if !known[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
