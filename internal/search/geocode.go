package search

import (
	"context"
	"errors"
)

// ErrLocationNotFound is returned by a Geocoder when the text matches nothing.
var ErrLocationNotFound = errors.New("location not found")

// Geocoder resolves free-text locations to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Point, error)
}
