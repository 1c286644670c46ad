package domain

import (
	"strconv"
	"strings"
)

// NotificationKind identifies one of the scheduled messages.
type NotificationKind string

const (
	KindDaily   NotificationKind = "daily"
	KindWeekly  NotificationKind = "weekly"
	KindBurnout NotificationKind = "burnout"
)

// DefaultReminderHour is used when neither the user nor the configuration
// provides a valid reminder time.
const DefaultReminderHour = 21

// NotificationSettings is stored as JSON on the user row.
type NotificationSettings struct {
	DailyReminder     bool   `json:"dailyReminder"`
	DailyReminderTime string `json:"dailyReminderTime"`
	WeeklyReport      bool   `json:"weeklyReport"`
	BurnoutWarnings   bool   `json:"burnoutWarnings"`
	Timezone          string `json:"timezone"`
}

// AnyEnabled reports whether at least one kind is switched on.
func (s NotificationSettings) AnyEnabled() bool {
	return s.DailyReminder || s.WeeklyReport || s.BurnoutWarnings
}

// Enabled reports whether kind is switched on.
func (s NotificationSettings) Enabled(kind NotificationKind) bool {
	switch kind {
	case KindDaily:
		return s.DailyReminder
	case KindWeekly:
		return s.WeeklyReport
	case KindBurnout:
		return s.BurnoutWarnings
	default:
		return false
	}
}

// ReminderHour extracts the hour from DailyReminderTime ("HH:MM").
// Empty or malformed values yield fallback.
func (s NotificationSettings) ReminderHour(fallback int) int {
	hour, _, ok := ParseClock(s.DailyReminderTime)
	if !ok {
		return fallback
	}
	return hour
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(value string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// WeeklyStats summarizes the trailing week against the week before it.
type WeeklyStats struct {
	Count   int
	Average float64
	// Trend is Average minus the previous window's average, or 0 when that window is empty.
	Trend float64
}

// BurnoutRisk describes a flagged run of low scores.
type BurnoutRisk struct {
	Days     int
	AvgScore float64
}
