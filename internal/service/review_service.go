package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
	"github.com/noah-isme/peerlens-go-api/pkg/events"
)

// ErrReviewForbidden indicates quality flags were mutated without a reviewer or instructor role.
var ErrReviewForbidden = errors.New("quality flags require a reviewer or instructor role")

// ReviewService manages reviewer-owned quality-assurance annotations.
// Flags are independent of lifecycle status: disputing an evaluation never
// reverts its state machine.
type ReviewService interface {
	UpdateQualityFlags(ctx context.Context, id uint, payload dto.QualityFlagsRequest, actor ActivityActor) (dto.EvaluationResponse, error)
}

type reviewService struct {
	repo      repository.EvaluationRepository
	validator *validator.Validate
	publisher events.Publisher
	activity  ActivityRecorder
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewReviewService constructs the quality-assurance service.
func NewReviewService(repo repository.EvaluationRepository, validate *validator.Validate, publisher events.Publisher, activity ActivityRecorder, logger zerolog.Logger) ReviewService {
	return &reviewService{
		repo:      repo,
		validator: validate,
		publisher: publisher,
		activity:  activity,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "review_service").Logger(),
	}
}

func (s *reviewService) UpdateQualityFlags(ctx context.Context, id uint, payload dto.QualityFlagsRequest, actor ActivityActor) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EvaluationResponse{}, err
	}

	if !isReviewerRole(actor.Role) {
		return dto.EvaluationResponse{}, ErrReviewForbidden
	}

	evaluation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationResponse{}, ErrEvaluationNotFound
		}
		return dto.EvaluationResponse{}, err
	}

	if evaluation.Version != payload.Version {
		return dto.EvaluationResponse{}, ErrStaleWrite
	}

	if payload.IsIncomplete != nil {
		evaluation.IsIncomplete = *payload.IsIncomplete
	}
	if payload.IsDisputed != nil {
		evaluation.IsDisputed = *payload.IsDisputed
	}
	if payload.NeedsReview != nil {
		evaluation.NeedsReview = *payload.NeedsReview
	}
	if payload.ReviewNotes != nil {
		evaluation.ReviewNotes = strings.TrimSpace(s.sanitizer.Sanitize(*payload.ReviewNotes))
	}

	if err := s.repo.UpdateWithVersion(ctx, &evaluation, payload.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.EvaluationResponse{}, ErrStaleWrite
		}
		return dto.EvaluationResponse{}, err
	}

	if s.publisher != nil {
		event := events.Event{
			Name:         events.EvaluationFlagged,
			EvaluationID: evaluation.ID,
			AssignmentID: evaluation.AssignmentID,
			Payload: map[string]interface{}{
				"is_incomplete": evaluation.IsIncomplete,
				"is_disputed":   evaluation.IsDisputed,
				"needs_review":  evaluation.NeedsReview,
			},
		}
		if err := s.publisher.Publish(event); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish quality flag event")
		}
	}

	if s.activity != nil {
		entityID := evaluation.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "evaluation.flagged",
			EntityType: "evaluation",
			EntityID:   &entityID,
			Metadata: map[string]interface{}{
				"is_incomplete": evaluation.IsIncomplete,
				"is_disputed":   evaluation.IsDisputed,
				"needs_review":  evaluation.NeedsReview,
			},
		})
	}

	return dto.NewEvaluationResponse(evaluation), nil
}
