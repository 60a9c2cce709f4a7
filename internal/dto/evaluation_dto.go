package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/peerlens-go-api/internal/models"
)

// EvaluationListRequest narrows evaluation listings.
type EvaluationListRequest struct {
	AssignmentID *uint   `query:"assignment_id"`
	SubmissionID *uint   `query:"submission_id"`
	EvaluatorID  *uint   `query:"evaluator_id"`
	Round        *int    `query:"round"`
	Status       *string `query:"status" validate:"omitempty,oneof=assigned in_progress submitted reviewed finalized"`
	ActiveOnly   bool    `query:"active_only"`
}

// TransitionRequest advances an evaluation to the next lifecycle state.
type TransitionRequest struct {
	Status  string `json:"status" validate:"required,oneof=assigned in_progress submitted reviewed finalized"`
	Version uint   `json:"version" validate:"required,gte=1"`
}

// RecordScoreRequest upserts a criterion score on an evaluation.
type RecordScoreRequest struct {
	CriteriaName string  `json:"criteria_name" validate:"required,min=1,max=255"`
	Score        float64 `json:"score" validate:"gte=0"`
	MaxScore     float64 `json:"max_score" validate:"required,gte=1"`
	Feedback     string  `json:"feedback"`
	Version      uint    `json:"version" validate:"required,gte=1"`
}

// FeedbackUpdateRequest sets overall feedback, grade or anonymity before finalization.
type FeedbackUpdateRequest struct {
	OverallFeedback *string `json:"overall_feedback" validate:"omitempty,min=1"`
	Grade           *string `json:"grade" validate:"omitempty,oneof=A B C D F"`
	IsAnonymous     *bool   `json:"is_anonymous"`
	Version         uint    `json:"version" validate:"required,gte=1"`
}

// QualityFlagsRequest mutates reviewer quality-assurance annotations.
type QualityFlagsRequest struct {
	IsIncomplete *bool   `json:"is_incomplete"`
	IsDisputed   *bool   `json:"is_disputed"`
	NeedsReview  *bool   `json:"needs_review"`
	ReviewNotes  *string `json:"review_notes"`
	Version      uint    `json:"version" validate:"required,gte=1"`
}

// EvaluationResponse is the serialized evaluation returned to API clients.
type EvaluationResponse struct {
	ID           uint `json:"id"`
	AssignmentID uint `json:"assignment_id"`
	SubmissionID uint `json:"submission_id"`
	SubmitterID  uint `json:"submitter_id"`
	EvaluatorID  uint `json:"evaluator_id"`

	Scores          []models.CriterionScore `json:"scores"`
	TotalScore      float64                 `json:"total_score"`
	MaxTotalScore   float64                 `json:"max_total_score"`
	OverallFeedback string                  `json:"overall_feedback"`
	Grade           *string                 `json:"grade"`
	EvaluationType  string                  `json:"evaluation_type"`
	Status          string                  `json:"status"`

	AssignedAt  time.Time  `json:"assigned_at"`
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	DueDate     time.Time  `json:"due_date"`

	IsAnonymous bool `json:"is_anonymous"`
	IsLate      bool `json:"is_late"`

	ColorGroup      int `json:"color_group"`
	AssignmentRound int `json:"assignment_round"`
	Priority        int `json:"priority"`

	IsIncomplete bool   `json:"is_incomplete"`
	IsDisputed   bool   `json:"is_disputed"`
	NeedsReview  bool   `json:"needs_review"`
	ReviewNotes  string `json:"review_notes"`

	Superseded bool      `json:"superseded"`
	Version    uint      `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewEvaluationResponse converts a model into a DTO.
func NewEvaluationResponse(model models.Evaluation) EvaluationResponse {
	scores := []models.CriterionScore{}
	if len(model.Scores) > 0 {
		// Corrupt score payloads degrade to an empty list rather than failing the read.
		_ = json.Unmarshal(model.Scores, &scores)
	}

	return EvaluationResponse{
		ID:              model.ID,
		AssignmentID:    model.AssignmentID,
		SubmissionID:    model.SubmissionID,
		SubmitterID:     model.SubmitterID,
		EvaluatorID:     model.EvaluatorID,
		Scores:          scores,
		TotalScore:      model.TotalScore,
		MaxTotalScore:   model.MaxTotalScore,
		OverallFeedback: model.OverallFeedback,
		Grade:           model.Grade,
		EvaluationType:  string(model.EvaluationType),
		Status:          string(model.Status),
		AssignedAt:      model.AssignedAt,
		StartedAt:       model.StartedAt,
		SubmittedAt:     model.SubmittedAt,
		ReviewedAt:      model.ReviewedAt,
		DueDate:         model.DueDate,
		IsAnonymous:     model.IsAnonymous,
		IsLate:          model.IsLate,
		ColorGroup:      model.ColorGroup,
		AssignmentRound: model.AssignmentRound,
		Priority:        model.Priority,
		IsIncomplete:    model.IsIncomplete,
		IsDisputed:      model.IsDisputed,
		NeedsReview:     model.NeedsReview,
		ReviewNotes:     model.ReviewNotes,
		Superseded:      model.Superseded,
		Version:         model.Version,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewEvaluationResponseSlice converts a slice of models into DTOs.
func NewEvaluationResponseSlice(evaluations []models.Evaluation) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		responses = append(responses, NewEvaluationResponse(evaluation))
	}

	return responses
}
