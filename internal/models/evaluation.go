package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// EvaluationStatus tracks an evaluation through its lifecycle.
type EvaluationStatus string

const (
	// EvaluationStatusAssigned is the initial state set when the matching run materializes the record.
	EvaluationStatusAssigned EvaluationStatus = "assigned"
	// EvaluationStatusInProgress indicates the evaluator has started scoring.
	EvaluationStatusInProgress EvaluationStatus = "in_progress"
	// EvaluationStatusSubmitted indicates scores and feedback have been handed in.
	EvaluationStatusSubmitted EvaluationStatus = "submitted"
	// EvaluationStatusReviewed indicates a reviewer has checked the evaluation.
	EvaluationStatusReviewed EvaluationStatus = "reviewed"
	// EvaluationStatusFinalized is the terminal state.
	EvaluationStatusFinalized EvaluationStatus = "finalized"
)

// EvaluationType distinguishes who performs the evaluation.
type EvaluationType string

const (
	EvaluationTypePeer       EvaluationType = "peer"
	EvaluationTypeInstructor EvaluationType = "instructor"
	EvaluationTypeSelf       EvaluationType = "self"
)

// LetterGrades enumerates the accepted categorical grades.
var LetterGrades = []string{"A", "B", "C", "D", "F"}

// IsLetterGrade reports whether value belongs to the fixed letter-grade set.
func IsLetterGrade(value string) bool {
	for _, grade := range LetterGrades {
		if grade == value {
			return true
		}
	}
	return false
}

// CriterionScore is one rubric line item awarded by the evaluator.
type CriterionScore struct {
	CriteriaName string  `json:"criteria_name"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Feedback     string  `json:"feedback"`
}

// Evaluation is a single evaluator-to-submission review record.
type Evaluation struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	AssignmentID uint `gorm:"not null;index" json:"assignment_id"`
	SubmissionID uint `gorm:"not null;index" json:"submission_id"`
	SubmitterID  uint `gorm:"not null" json:"submitter_id"`
	EvaluatorID  uint `gorm:"not null;index" json:"evaluator_id"`

	Scores          datatypes.JSON   `gorm:"type:json" json:"scores"`
	TotalScore      float64          `gorm:"not null;default:0" json:"total_score"`
	MaxTotalScore   float64          `gorm:"not null" json:"max_total_score"`
	OverallFeedback string           `gorm:"type:text" json:"overall_feedback"`
	Grade           *string          `gorm:"size:2" json:"grade"`
	EvaluationType  EvaluationType   `gorm:"size:16;not null;default:peer" json:"evaluation_type"`
	Status          EvaluationStatus `gorm:"size:32;not null;default:assigned;index" json:"status"`

	AssignedAt  time.Time  `gorm:"not null" json:"assigned_at"`
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	DueDate     time.Time  `gorm:"not null" json:"due_date"`

	IsAnonymous bool `gorm:"not null;default:true" json:"is_anonymous"`
	IsLate      bool `gorm:"not null;default:false" json:"is_late"`

	ColorGroup      int `gorm:"not null;default:0" json:"color_group"`
	AssignmentRound int `gorm:"not null;default:1;index" json:"assignment_round"`
	Priority        int `gorm:"not null;default:0" json:"priority"`

	IsIncomplete bool   `gorm:"not null;default:false" json:"is_incomplete"`
	IsDisputed   bool   `gorm:"not null;default:false" json:"is_disputed"`
	NeedsReview  bool   `gorm:"not null;default:false" json:"needs_review"`
	ReviewNotes  string `gorm:"type:text" json:"review_notes"`

	Superseded bool `gorm:"not null;default:false" json:"superseded"`
	Version    uint `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// statusOrder fixes the forward-only lifecycle sequence.
var statusOrder = []EvaluationStatus{
	EvaluationStatusAssigned,
	EvaluationStatusInProgress,
	EvaluationStatusSubmitted,
	EvaluationStatusReviewed,
	EvaluationStatusFinalized,
}

// StatusRank returns the position of status in the lifecycle, or -1 for unknown values.
func StatusRank(status EvaluationStatus) int {
	for i, s := range statusOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// NextStatus returns the immediate successor of status, or empty when terminal or unknown.
func NextStatus(status EvaluationStatus) EvaluationStatus {
	rank := StatusRank(status)
	if rank < 0 || rank >= len(statusOrder)-1 {
		return ""
	}
	return statusOrder[rank+1]
}

// IsTerminal reports whether the evaluation reached its final state.
func (e Evaluation) IsTerminal() bool {
	return e.Status == EvaluationStatusFinalized
}

// AcceptsScores reports whether criterion scores may still be recorded.
func (e Evaluation) AcceptsScores() bool {
	return e.Status == EvaluationStatusAssigned || e.Status == EvaluationStatusInProgress
}

// CriterionScores decodes the stored score list. A missing payload decodes
// to an empty list.
func (e Evaluation) CriterionScores() ([]CriterionScore, error) {
	if len(e.Scores) == 0 {
		return []CriterionScore{}, nil
	}

	var scores []CriterionScore
	if err := json.Unmarshal(e.Scores, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode criterion scores: %w", err)
	}
	return scores, nil
}

// SetCriterionScores encodes scores into the record and refreshes TotalScore
// so the aggregate always matches the line items.
func (e *Evaluation) SetCriterionScores(scores []CriterionScore) error {
	encoded, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to encode criterion scores: %w", err)
	}

	var total float64
	for _, score := range scores {
		total += score.Score
	}

	e.Scores = datatypes.JSON(encoded)
	e.TotalScore = total
	return nil
}

// ComputeLate reports whether submittedAt falls past the due date.
func ComputeLate(submittedAt time.Time, dueDate time.Time) bool {
	return submittedAt.After(dueDate)
}
