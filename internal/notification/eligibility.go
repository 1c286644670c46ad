package notification

import (
	"strings"
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
)

// burnoutCooldown is measured in absolute time, unlike the calendar-day guard of the other kinds.
const burnoutCooldown = 24 * time.Hour

// ResolveLocation loads the IANA zone name. Empty, unknown and "Local" names
// yield fallback and ok=false; "Local" would follow the server's zone.
func ResolveLocation(name string, fallback *time.Location) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "Local") {
		return fallback, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback, false
	}
	return loc, true
}

// sentOnOrAfterToday reports whether last, seen in local's zone, falls on local's date or later.
func sentOnOrAfterToday(last *time.Time, local time.Time) bool {
	if last == nil {
		return false
	}
	lastDate := domain.DateOf(last.In(local.Location()))
	return !lastDate.Before(domain.DateOf(local))
}

// DailyDue decides the daily reminder for a user whose local time is local.
// defaultHour applies when the user has no valid reminder time.
func DailyDue(settings domain.NotificationSettings, last *time.Time, local time.Time, defaultHour int) bool {
	if !settings.DailyReminder {
		return false
	}
	if local.Hour() != settings.ReminderHour(defaultHour) {
		return false
	}
	return !sentOnOrAfterToday(last, local)
}

// WeeklyDue decides the Monday report. Whether the user has data is checked separately.
func WeeklyDue(settings domain.NotificationSettings, last *time.Time, local time.Time, reportHour int) bool {
	if !settings.WeeklyReport {
		return false
	}
	if local.Weekday() != time.Monday || local.Hour() != reportHour {
		return false
	}
	return !sentOnOrAfterToday(last, local)
}

// BurnoutDue decides whether a burnout check may run. Risk itself is computed from entries.
func BurnoutDue(settings domain.NotificationSettings, last *time.Time, now, local time.Time, warningHour int) bool {
	if !settings.BurnoutWarnings {
		return false
	}
	if local.Hour() != warningHour {
		return false
	}
	return last == nil || now.Sub(*last) >= burnoutCooldown
}
