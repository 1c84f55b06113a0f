// Package clock centralizes the timestamp formatting used across the
// Registry DB, Run Repository, and other tables that store ISO-8601
// timestamps: every write funnels through Format/NowUTC so the on-disk
// representation never drifts (spec §4.4).
package clock

import (
	"time"

	"github.com/genglossary/genglossary/internal/apperr"
)

const layout = "2006-01-02T15:04:05Z07:00"

// NowUTC returns the current instant truncated to second precision with
// an explicit UTC offset, the single source of "now" for every status
// transition.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Format renders t as an ISO-8601 string with explicit offset and second
// precision. A naive (zero-location-name, non-UTC, ambiguous) time is
// rejected: callers must pass a timezone-aware value, per spec §4.4.
func Format(t time.Time) (string, error) {
	if t.Location() == nil {
		return "", apperr.Validationf("timestamp has no location: naive datetimes are rejected")
	}
	return t.Truncate(time.Second).Format(layout), nil
}

// MustFormat formats t or panics; callers must already know t carries a
// location (e.g. it came from NowUTC or was constructed with time.UTC).
func MustFormat(t time.Time) string {
	s, err := Format(t)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse parses a timestamp previously produced by Format.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, apperr.Validationf("invalid timestamp %q: %v", s, err)
	}
	return t, nil
}
