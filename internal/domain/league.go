package domain

import (
	"time"

	"github.com/google/uuid"
)

// League is the profile of a league user.
type League struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	PrimaryRegion string    `json:"primary_region"`
	Level         string    `json:"level"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LeagueUpdate carries a partial league update.
type LeagueUpdate struct {
	Name          *string `json:"name"`
	PrimaryRegion *string `json:"primary_region"`
	Level         *string `json:"level"`
}

// Apply copies the set fields onto l.
func (u LeagueUpdate) Apply(l *League) {
	if u.Name != nil {
		l.Name = *u.Name
	}
	if u.PrimaryRegion != nil {
		l.PrimaryRegion = *u.PrimaryRegion
	}
	if u.Level != nil {
		l.Level = *u.Level
	}
}

// FieldLocation is a venue a league plays games at.
type FieldLocation struct {
	ID        uuid.UUID `json:"id"`
	LeagueID  uuid.UUID `json:"league_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
