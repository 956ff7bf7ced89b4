package search

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	manhattan    = Point{Lat: 40.7128, Lon: -74.0060}
	newark       = Point{Lat: 40.7357, Lon: -74.1724}
	philadelphia = Point{Lat: 39.9526, Lon: -75.1652}
	boston       = Point{Lat: 42.3601, Lon: -71.0589}
)

func ptr[T any](v T) *T { return &v }

func candidate(name string, at *Point, travel *float64, avg float64) Candidate {
	p := domain.RefereeProfile{ID: uuid.New(), FullName: name, TravelRadiusKm: travel}
	if at != nil {
		p.Latitude = ptr(at.Lat)
		p.Longitude = ptr(at.Lon)
	}
	return Candidate{Profile: p, Aggregate: domain.RatingAggregate{RefereeID: p.ID, AverageRating: avg}}
}

func names(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Profile.FullName
	}
	return out
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(manhattan, manhattan), 1e-9)
	assert.InDelta(t, 14.3, HaversineKm(manhattan, newark), 0.5)
	assert.InDelta(t, 129.6, HaversineKm(manhattan, philadelphia), 1.5)
	assert.InDelta(t, HaversineKm(manhattan, boston), HaversineKm(boston, manhattan), 1e-9)
}

func TestFilter_LocationRadiusAndTravelRadius(t *testing.T) {
	cands := []Candidate{
		candidate("near-wide", &newark, ptr(50.0), 4),
		candidate("near-short-travel", &newark, ptr(5.0), 4),
		candidate("far", &philadelphia, ptr(500.0), 5),
		candidate("no-coords", nil, ptr(100.0), 5),
		candidate("near-no-travel", &newark, nil, 3),
	}

	got := Filter(cands, Query{Origin: &manhattan, RadiusKm: ptr(25.0)})
	assert.Equal(t, []string{"near-wide", "near-no-travel"}, names(got))
	for _, r := range got {
		require.NotNil(t, r.DistanceKm)
		assert.InDelta(t, 14.3, *r.DistanceKm, 0.5)
	}
}

func TestFilter_DistanceProperty(t *testing.T) {
	points := []Point{manhattan, newark, philadelphia, boston}
	radii := []float64{1, 20, 150, 400}
	travels := []float64{10, 100, 1000}

	for _, origin := range points {
		for _, r := range radii {
			var cands []Candidate
			for _, at := range points {
				for _, tr := range travels {
					at := at
					cands = append(cands, candidate("c", &at, ptr(tr), 3))
				}
			}
			got := Filter(cands, Query{Origin: &origin, RadiusKm: ptr(r)})

			included := make(map[uuid.UUID]bool, len(got))
			for _, res := range got {
				included[res.Profile.ID] = true
			}
			for _, c := range cands {
				d := HaversineKm(origin, Point{Lat: *c.Profile.Latitude, Lon: *c.Profile.Longitude})
				want := d <= r && d <= *c.Profile.TravelRadiusKm
				assert.Equal(t, want, included[c.Profile.ID], "origin=%v r=%v d=%v travel=%v", origin, r, d, *c.Profile.TravelRadiusKm)
			}
		}
	}
}

func TestFilter_NoLocationIncludesRefereesWithoutCoordinates(t *testing.T) {
	cands := []Candidate{
		candidate("a", nil, nil, 2),
		candidate("b", &boston, ptr(10.0), 4),
	}
	got := Filter(cands, Query{})
	assert.Equal(t, []string{"b", "a"}, names(got))
	assert.Nil(t, got[0].DistanceKm)
}

func TestFilter_MinRating(t *testing.T) {
	cands := []Candidate{
		candidate("unrated", nil, nil, 0),
		candidate("three", nil, nil, 3),
		candidate("four-and-half", nil, nil, 4.5),
	}

	got := Filter(cands, Query{MinRating: ptr(3.0)})
	assert.Equal(t, []string{"four-and-half", "three"}, names(got))

	got = Filter(cands, Query{MinRating: ptr(0.0)})
	assert.Len(t, got, 3)
}

func TestFilter_Availability(t *testing.T) {
	day := time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)
	slot := func(from, to int) domain.AvailabilitySlot {
		return domain.AvailabilitySlot{StartTime: day.Add(time.Duration(from) * time.Hour), EndTime: day.Add(time.Duration(to) * time.Hour)}
	}

	covering := candidate("covering", nil, nil, 3)
	covering.Slots = []domain.AvailabilitySlot{slot(8, 12), slot(13, 18)}
	partial := candidate("partial", nil, nil, 3)
	partial.Slots = []domain.AvailabilitySlot{slot(8, 10), slot(10, 12)}
	none := candidate("none", nil, nil, 3)

	start := day.Add(9 * time.Hour)
	end := day.Add(11 * time.Hour)
	got := Filter([]Candidate{covering, partial, none}, Query{AvailableStart: &start, AvailableEnd: &end})
	assert.Equal(t, []string{"covering"}, names(got))
}

func TestSort(t *testing.T) {
	cands := []Candidate{
		candidate("Cara", &philadelphia, ptr(500.0), 4),
		candidate("Ben", &newark, ptr(500.0), 4),
		candidate("Abe", &boston, ptr(500.0), 5),
	}
	cands[0].Profile.YearsExperience = 12
	cands[1].Profile.YearsExperience = 3
	cands[2].Profile.YearsExperience = 7

	tests := []struct {
		order SortOrder
		want  []string
	}{
		{SortRating, []string{"Abe", "Ben", "Cara"}},
		{SortDistance, []string{"Ben", "Cara", "Abe"}},
		{SortExperience, []string{"Cara", "Abe", "Ben"}},
		{SortName, []string{"Abe", "Ben", "Cara"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			got := Filter(cands, Query{Origin: &manhattan, Sort: tt.order})
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestParseSortOrder(t *testing.T) {
	o, ok := ParseSortOrder("")
	assert.True(t, ok)
	assert.Equal(t, SortRating, o)

	o, ok = ParseSortOrder("Distance")
	assert.True(t, ok)
	assert.Equal(t, SortDistance, o)

	_, ok = ParseSortOrder("random")
	assert.False(t, ok)
}

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	tests := []struct {
		name  string
		q     Query
		field string
	}{
		{"ok empty", Query{}, ""},
		{"ok full", Query{Location: "Newark", RadiusKm: ptr(10.0), MinRating: ptr(3.5), AvailableStart: &now, AvailableEnd: &later}, ""},
		{"radius without location", Query{RadiusKm: ptr(10.0)}, "location"},
		{"zero radius", Query{Location: "x", RadiusKm: ptr(0.0)}, "radius_km"},
		{"rating above 5", Query{MinRating: ptr(6.0)}, "min_rating"},
		{"start without end", Query{AvailableStart: &now}, "available_end"},
		{"end before start", Query{AvailableStart: &later, AvailableEnd: &now}, "available_end"},
		{"unknown sort", Query{Sort: "random"}, "sort"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.field == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.field, err.Field)
		})
	}
}

func TestKeepKnown(t *testing.T) {
	a, b, c, unknown := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	known := map[uuid.UUID]bool{a: true, b: true, c: true}

	got := KeepKnown([]uuid.UUID{b, unknown, b, a, c}, known, 2)
	assert.Equal(t, []uuid.UUID{b, a}, got)

	assert.Empty(t, KeepKnown(nil, known, MaxSuggestions))
}

func TestQuery_NeedsGeocode(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want bool
	}{
		{"no location", Query{RadiusKm: ptr(10.0)}, false},
		{"location only", Query{Location: "Springfield", Sort: SortRating}, false},
		{"blank location", Query{Location: "  ", Sort: SortDistance}, false},
		{"with radius", Query{Location: "Springfield", RadiusKm: ptr(10.0)}, true},
		{"distance sort", Query{Location: "Springfield", Sort: SortDistance}, true},
		{"already resolved", Query{Location: "Springfield", Origin: &manhattan, RadiusKm: ptr(10.0)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.q.NeedsGeocode())
		})
	}
}
