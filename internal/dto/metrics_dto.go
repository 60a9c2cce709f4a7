package dto

import "time"

// EvaluationMetricsResponse carries derived, read-only metrics for one evaluation.
type EvaluationMetricsResponse struct {
	EvaluationID       uint      `json:"evaluation_id"`
	Status             string    `json:"status"`
	ProgressPercentage int       `json:"progress_percentage"`
	ScorePercentage    int       `json:"score_percentage"`
	TimeRemaining      int64     `json:"time_remaining_seconds"`
	IsLate             bool      `json:"is_late"`
	DueDate            time.Time `json:"due_date"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// AssignmentOverviewResponse aggregates evaluation progress for one assignment.
type AssignmentOverviewResponse struct {
	AssignmentID        uint           `json:"assignment_id"`
	TotalEvaluations    int            `json:"total_evaluations"`
	StatusCounts        map[string]int `json:"status_counts"`
	AverageProgress     int            `json:"average_progress"`
	AverageScorePercent int            `json:"average_score_percent"`
	LateCount           int            `json:"late_count"`
	DisputedCount       int            `json:"disputed_count"`
	NeedsReviewCount    int            `json:"needs_review_count"`
	IncompleteCount     int            `json:"incomplete_count"`
	GeneratedAt         time.Time      `json:"generated_at"`
	CacheHit            bool           `json:"cache_hit"`
}
