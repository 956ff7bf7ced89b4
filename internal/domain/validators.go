package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	MinPasswordLength = 8
	MaxMessageLength  = 5000
)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateCoordinates checks that lat/lon are either both absent or both in range.
func ValidateCoordinates(lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return fmt.Errorf("latitude and longitude must be provided together")
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if *lon < -180 || *lon > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateTimeRange requires start strictly before end.
func ValidateTimeRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("start and end are required")
	}
	if !start.Before(end) {
		return fmt.Errorf("start must be before end")
	}
	return nil
}

// ValidateMessageContent enforces the 1..5000 character bound on message bodies.
func ValidateMessageContent(content string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n == 0 {
		return fmt.Errorf("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return fmt.Errorf("content must be at most %d characters", MaxMessageLength)
	}
	return nil
}

// ValidateScore checks a rating score is within 1..5.
func ValidateScore(score int) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("score must be between 1 and 5, got %d", score)
	}
	return nil
}
