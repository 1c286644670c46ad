package domain

import "time"

// Goal score bounds.
const (
	MinGoalScore = 0
	MaxGoalScore = 5
)

// MonthlyGoal is a per-month target average score.
type MonthlyGoal struct {
	ID        int64
	UserID    int64
	Year      int
	Month     int
	GoalScore float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AIAnalysis is the cached result of the last insight request.
type AIAnalysis struct {
	UserID          int64
	Provider        string
	Analysis        string
	Recommendations []string
	TotalEntries    int
	UpdatedAt       time.Time
}
