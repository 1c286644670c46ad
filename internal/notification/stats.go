package notification

import (
	"time"

	"github.com/Proton-105/flowkat/internal/domain"
)

const (
	burnoutWindow     = 5
	burnoutMinEntries = 3
	burnoutLowScore   = 2
	burnoutMinLowDays = 3
)

// WeeklyStatsFrom aggregates entries dated in [today-7d, today) and compares
// them with [today-14d, today-7d). ok is false when the current week is empty.
func WeeklyStatsFrom(entries []domain.Entry, today time.Time) (stats domain.WeeklyStats, ok bool) {
	today = domain.DateOf(today)
	weekStart := today.AddDate(0, 0, -7)
	prevStart := today.AddDate(0, 0, -14)

	var curSum, prevSum, prevCount int
	for _, e := range entries {
		d := domain.DateOf(e.Date)
		switch {
		case !d.Before(weekStart) && d.Before(today):
			stats.Count++
			curSum += e.Score
		case !d.Before(prevStart) && d.Before(weekStart):
			prevCount++
			prevSum += e.Score
		}
	}

	if stats.Count == 0 {
		return domain.WeeklyStats{}, false
	}

	stats.Average = float64(curSum) / float64(stats.Count)
	if prevCount > 0 {
		stats.Trend = stats.Average - float64(prevSum)/float64(prevCount)
	}

	return stats, true
}

// BurnoutRiskFrom inspects the most recent entries (newest first). It returns
// nil unless at least three of the last five scores are 2 or lower.
func BurnoutRiskFrom(recent []domain.Entry) *domain.BurnoutRisk {
	if len(recent) < burnoutMinEntries {
		return nil
	}
	if len(recent) > burnoutWindow {
		recent = recent[:burnoutWindow]
	}

	var low, sum int
	for _, e := range recent {
		if e.Score <= burnoutLowScore {
			low++
			sum += e.Score
		}
	}

	if low < burnoutMinLowDays {
		return nil
	}

	return &domain.BurnoutRisk{
		Days:     low,
		AvgScore: float64(sum) / float64(low),
	}
}
