package dto

import "time"

// MatchingRequest configures one generator run for an assignment round.
type MatchingRequest struct {
	Round                  int    `json:"round" validate:"required,gte=1"`
	Strategy               string `json:"strategy" validate:"omitempty,oneof=shift rejection"`
	Seed                   *int64 `json:"seed"`
	ExcludePriorEvaluators bool   `json:"exclude_prior_evaluators"`
	EvaluationType         string `json:"evaluation_type" validate:"omitempty,oneof=peer instructor self"`
	IsAnonymous            *bool  `json:"is_anonymous"`
	Priority               int    `json:"priority" validate:"gte=0"`
}

// MatchingResponse reports the evaluations materialized by a generator run.
type MatchingResponse struct {
	AssignmentID uint                 `json:"assignment_id"`
	Round        int                  `json:"round"`
	Strategy     string               `json:"strategy"`
	Seed         int64                `json:"seed"`
	Evaluations  []EvaluationResponse `json:"evaluations"`
	GeneratedAt  time.Time            `json:"generated_at"`
}
