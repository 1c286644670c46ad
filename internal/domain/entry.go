package domain

import (
	"errors"
	"strings"
	"time"
)

// Score bounds accepted for entries.
const (
	MinScore = 1
	MaxScore = 5
)

const (
	// DateLayout is the canonical storage format.
	DateLayout = "2006-01-02"
	// DisplayDateLayout is used when rendering entries for clients.
	DisplayDateLayout = "02.01.2006"
)

// ErrInvalidDate is returned by ParseEntryDate for unsupported input.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD or DD.MM.YYYY")

// Entry is a single-day energy record.
type Entry struct {
	ID        int64
	UserID    int64
	Date      time.Time
	Score     int
	Thoughts  string
	Category  string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParseEntryDate accepts ISO or day-first dotted dates and returns midnight UTC.
func ParseEntryDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{DateLayout, DisplayDateLayout} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// DateOf truncates t to its calendar date in t's location, returned as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidScore reports whether score is inside the accepted range.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// EntryStats is an aggregate over a set of entries.
type EntryStats struct {
	Good    int     `json:"good"`
	Neutral int     `json:"neutral"`
	Bad     int     `json:"bad"`
	Average float64 `json:"average"`
	Total   int     `json:"total"`
}
