package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/refnexus/platform/internal/search"
)

// NominatimGeocoder resolves free-text places through a Nominatim-compatible
// /search endpoint.
type NominatimGeocoder struct {
	client *resty.Client
	logger *slog.Logger
}

// NewNominatimGeocoder creates a geocoder. Nominatim's usage policy requires
// an identifying User-Agent.
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *NominatimGeocoder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &NominatimGeocoder{client: client, logger: logger}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements search.Geocoder.
func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (*search.Point, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, search.ErrLocationNotFound
	}

	var places []nominatimPlace
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&places).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geocoder returned %d", resp.StatusCode())
	}
	if len(places) == 0 {
		return nil, search.ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}

	g.logger.Debug("geocoded location", "query", query, "match", places[0].DisplayName)
	return &search.Point{Lat: lat, Lon: lon}, nil
}
