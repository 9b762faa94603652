// Package validation turns raw form fields into validated values before
// the core ever sees them. All rating-scale conversion happens here,
// exactly once; the core packages only ever deal in the canonical 0-5
// scale.
package validation

import (
	"strconv"
	"strings"
	"time"

	"github.com/jkivisto/watchlog/lib/apperr"
)

// NormalizeRating parses a submitted rating. An empty field means "no
// rating" and yields nil. Values above 5 are treated as 10-point-scale
// input and halved; anything outside 0-10 is rejected.
func NormalizeRating(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.BadRequest("rating must be a number")
	}
	if v < 0 || v > 10 {
		return nil, apperr.BadRequest("rating must be between 0 and 10")
	}
	if v > 5 {
		v /= 2
	}
	return &v, nil
}

// ParseYear parses an optional release year.
func ParseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest("year must be a number")
	}
	if year < 1878 || year > time.Now().Year()+1 {
		return 0, apperr.BadRequest("year is out of range")
	}
	return year, nil
}

// ParseDuration parses an optional runtime in minutes.
func ParseDuration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < 0 {
		return 0, apperr.BadRequest("duration must be a non-negative number of minutes")
	}
	return minutes, nil
}

// ParseWatchDate parses an optional YYYY-MM-DD watch date and rejects
// dates in the future.
func ParseWatchDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.BadRequest("watch date must be in YYYY-MM-DD format")
	}
	if parsed.After(time.Now()) {
		return nil, apperr.BadRequest("watch date cannot be in the future")
	}
	return &parsed, nil
}

// ParseEntityID parses an optional numeric id from a form select.
func ParseEntityID(raw string) (uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperr.BadRequest("invalid selection")
	}
	return uint(id), nil
}

// ParsePage parses a page number, defaulting to 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ValidatePagination checks pagination parameters are within acceptable
// ranges.
func ValidatePagination(page, size int) error {
	if page < 1 {
		return apperr.BadRequest("page must be greater than 0")
	}
	if size < 1 || size > 100 {
		return apperr.BadRequest("size must be between 1 and 100")
	}
	return nil
}
