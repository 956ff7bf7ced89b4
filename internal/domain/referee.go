package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefereeProfile is the public profile of a referee user.
type RefereeProfile struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FullName        string    `json:"full_name"`
	CertLevel       string    `json:"cert_level"`
	YearsExperience int       `json:"years_experience"`
	HomeLocation    string    `json:"home_location"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	TravelRadiusKm  *float64  `json:"travel_radius_km,omitempty"`
	Bio             string    `json:"bio"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p *RefereeProfile) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// RefereeProfileUpdate carries a partial profile update. Nil fields are left unchanged.
type RefereeProfileUpdate struct {
	FullName        *string  `json:"full_name"`
	CertLevel       *string  `json:"cert_level"`
	YearsExperience *int     `json:"years_experience"`
	HomeLocation    *string  `json:"home_location"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	TravelRadiusKm  *float64 `json:"travel_radius_km"`
	Bio             *string  `json:"bio"`
}

// Apply copies the set fields onto p.
func (u RefereeProfileUpdate) Apply(p *RefereeProfile) {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.CertLevel != nil {
		p.CertLevel = *u.CertLevel
	}
	if u.YearsExperience != nil {
		p.YearsExperience = *u.YearsExperience
	}
	if u.HomeLocation != nil {
		p.HomeLocation = *u.HomeLocation
	}
	if u.Latitude != nil {
		p.Latitude = u.Latitude
	}
	if u.Longitude != nil {
		p.Longitude = u.Longitude
	}
	if u.TravelRadiusKm != nil {
		p.TravelRadiusKm = u.TravelRadiusKm
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
}

// Validate checks the update in isolation.
func (u RefereeProfileUpdate) Validate() *AppError {
	if u.FullName != nil && *u.FullName == "" {
		return ErrValidationField("full_name", "full_name must not be empty")
	}
	if u.YearsExperience != nil && *u.YearsExperience < 0 {
		return ErrValidationField("years_experience", "years_experience must be >= 0")
	}
	if u.TravelRadiusKm != nil && *u.TravelRadiusKm <= 0 {
		return ErrValidationField("travel_radius_km", "travel_radius_km must be > 0")
	}
	if err := ValidateCoordinates(u.Latitude, u.Longitude); err != nil {
		return ErrValidationField("latitude", err.Error())
	}
	return nil
}

// RecentNotesLimit bounds RefereeStats.RecentNotes.
const RecentNotesLimit = 5

// RefereeStats is derived from assignments, ratings and notes on read.
type RefereeStats struct {
	TotalGames    int       `json:"total_games"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
	RecentNotes   []RefNote `json:"recent_notes"`
}

// RatingAggregate is the cacheable, viewer-independent part of RefereeStats.
type RatingAggregate struct {
	RefereeID     uuid.UUID `json:"referee_id"`
	TotalGames    int       `json:"total_games"`
	AverageRating float64   `json:"average_rating"`
	RatingCount   int       `json:"rating_count"`
}

// RefereeWithStats pairs a profile with its stats and, in search results, its distance.
type RefereeWithStats struct {
	RefereeProfile
	Stats      RefereeStats `json:"stats"`
	DistanceKm *float64     `json:"distance_km,omitempty"`
}

// AvailabilitySlot is a window during which a referee can officiate.
type AvailabilitySlot struct {
	ID        uuid.UUID `json:"id"`
	RefereeID uuid.UUID `json:"referee_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether the slot fully covers [start, end].
func (s AvailabilitySlot) Contains(start, end time.Time) bool {
	return !s.StartTime.After(start) && !s.EndTime.Before(end)
}
