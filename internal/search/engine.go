// Package search filters and ranks referee candidates for structured searches.
package search

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/refnexus/platform/internal/domain"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// SortOrder selects the result ordering.
type SortOrder string

const (
	SortRating     SortOrder = "rating"
	SortDistance   SortOrder = "distance"
	SortExperience SortOrder = "experience"
	SortName       SortOrder = "name"
)

// ParseSortOrder maps a query value to a SortOrder; empty means SortRating.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRating:
		return SortRating, true
	case SortDistance:
		return SortDistance, true
	case SortExperience:
		return SortExperience, true
	case SortName:
		return SortName, true
	}
	return "", false
}

// Candidate is everything the engine needs to judge one referee.
type Candidate struct {
	Profile   domain.RefereeProfile
	Aggregate domain.RatingAggregate
	Slots     []domain.AvailabilitySlot
}

// Query holds the structured search criteria. Origin is the resolved query
// location; Location is kept for echoing and AI context.
type Query struct {
	Location         string
	Origin           *Point
	RadiusKm         *float64
	MinRating        *float64
	AgeGroup         string
	CompetitionLevel string
	AvailableStart   *time.Time
	AvailableEnd     *time.Time
	Sort             SortOrder
}

// Validate checks the query's numeric ranges and paired fields.
func (q Query) Validate() *domain.AppError {
	if q.RadiusKm != nil && *q.RadiusKm <= 0 {
		return domain.ErrValidationField("radius_km", "radius_km must be > 0")
	}
	if q.RadiusKm != nil && q.Origin == nil && q.Location == "" {
		return domain.ErrValidationField("location", "location is required when radius_km is set")
	}
	if q.MinRating != nil && (*q.MinRating < 0 || *q.MinRating > 5) {
		return domain.ErrValidationField("min_rating", "min_rating must be between 0 and 5")
	}
	if (q.AvailableStart == nil) != (q.AvailableEnd == nil) {
		return domain.ErrValidationField("available_end", "available_start and available_end must be provided together")
	}
	if q.AvailableStart != nil && !q.AvailableStart.Before(*q.AvailableEnd) {
		return domain.ErrValidationField("available_end", "available_end must be after available_start")
	}
	if q.Sort != "" {
		if _, ok := ParseSortOrder(string(q.Sort)); !ok {
			return domain.ErrValidationField("sort", "sort must be one of rating, distance, experience, name")
		}
	}
	return nil
}

// NeedsGeocode reports whether Location has to be resolved to an Origin.
// A location alone neither filters nor sorts, so it is left unresolved.
func (q Query) NeedsGeocode() bool {
	if q.Origin != nil || strings.TrimSpace(q.Location) == "" {
		return false
	}
	return q.RadiusKm != nil || q.Sort == SortDistance
}

// locationFilterActive reports whether distance bounds apply.
func (q Query) locationFilterActive() bool {
	return q.Origin != nil && q.RadiusKm != nil
}

// Result is a candidate that passed every filter.
type Result struct {
	Candidate
	DistanceKm *float64
}

// Filter returns the candidates satisfying every supplied criterion, ordered
// by q.Sort.
func Filter(candidates []Candidate, q Query) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r, ok := match(c, q)
		if ok {
			results = append(results, r)
		}
	}
	Sort(results, q.Sort)
	return results
}

func match(c Candidate, q Query) (Result, bool) {
	r := Result{Candidate: c}

	if q.Origin != nil && c.Profile.HasCoordinates() {
		d := HaversineKm(*q.Origin, Point{Lat: *c.Profile.Latitude, Lon: *c.Profile.Longitude})
		r.DistanceKm = &d
	}

	if q.locationFilterActive() {
		if r.DistanceKm == nil {
			return r, false
		}
		if *r.DistanceKm > *q.RadiusKm {
			return r, false
		}
		if c.Profile.TravelRadiusKm != nil && *r.DistanceKm > *c.Profile.TravelRadiusKm {
			return r, false
		}
	}

	if q.MinRating != nil && c.Aggregate.AverageRating < *q.MinRating {
		return r, false
	}

	if q.AvailableStart != nil && q.AvailableEnd != nil {
		if !availableFor(c.Slots, *q.AvailableStart, *q.AvailableEnd) {
			return r, false
		}
	}

	return r, true
}

func availableFor(slots []domain.AvailabilitySlot, start, end time.Time) bool {
	for _, s := range slots {
		if s.Contains(start, end) {
			return true
		}
	}
	return false
}

// Sort orders results in place. Ties always fall back to name, then id, so
// the order is deterministic.
func Sort(results []Result, order SortOrder) {
	if order == "" {
		order = SortRating
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch order {
		case SortDistance:
			if c := compareDistance(a, b); c != 0 {
				return c < 0
			}
			if c := compareRating(a, b); c != 0 {
				return c < 0
			}
		case SortExperience:
			if a.Profile.YearsExperience != b.Profile.YearsExperience {
				return a.Profile.YearsExperience > b.Profile.YearsExperience
			}
			if c := compareRating(a, b); c != 0 {
				return c < 0
			}
		case SortName:
		default:
			if c := compareRating(a, b); c != 0 {
				return c < 0
			}
			if c := compareDistance(a, b); c != 0 {
				return c < 0
			}
		}
		if a.Profile.FullName != b.Profile.FullName {
			return a.Profile.FullName < b.Profile.FullName
		}
		return a.Profile.ID.String() < b.Profile.ID.String()
	})
}

// compareRating orders higher averages first.
func compareRating(a, b Result) int {
	switch {
	case a.Aggregate.AverageRating > b.Aggregate.AverageRating:
		return -1
	case a.Aggregate.AverageRating < b.Aggregate.AverageRating:
		return 1
	}
	return 0
}

// compareDistance orders nearer first; unknown distances sort last.
func compareDistance(a, b Result) int {
	switch {
	case a.DistanceKm == nil && b.DistanceKm == nil:
		return 0
	case a.DistanceKm == nil:
		return 1
	case b.DistanceKm == nil:
		return -1
	case *a.DistanceKm < *b.DistanceKm:
		return -1
	case *a.DistanceKm > *b.DistanceKm:
		return 1
	}
	return 0
}
