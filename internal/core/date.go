package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	isoLayout     = "2006-01-02T15:04:05.000Z07:00"
	displayLayout = "2/1/2006"
	monthKey      = "2006-01"
)

var errEmptyDate = errors.New("empty date")

// FormatISO renders t in UTC with millisecond precision, e.g. 2025-01-15T10:20:30.123Z.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO accepts RFC 3339 timestamps with or without fractional seconds,
// and bare YYYY-MM-DD dates, which are read as local midnight.
func ParseISO(s string) (time.Time, error) {
	return ParseISOIn(s, time.Local)
}

// ParseISOIn is ParseISO with bare dates read as midnight in loc.
func ParseISOIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}

// FormatDisplayDate renders the short d/m/yyyy form kept next to DateISO.
func FormatDisplayDate(t time.Time) string {
	return t.Format(displayLayout)
}

// ParseDisplayDate parses d/m/yyyy with or without zero padding.
func ParseDisplayDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyDate
	}
	return time.ParseInLocation(displayLayout, s, time.Local)
}

// MonthKey returns YYYY-MM for t.
func MonthKey(t time.Time) string {
	return t.Format(monthKey)
}

// NewID returns a time-ordered unique id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewSelfMemberID marks the member seeded from the profile name.
func NewSelfMemberID() string {
	return "self-" + NewID()
}
