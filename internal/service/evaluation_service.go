package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/matching"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/observability"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
	"github.com/noah-isme/peerlens-go-api/pkg/events"
)

// ErrEvaluationNotFound indicates the evaluation does not exist.
var ErrEvaluationNotFound = errors.New("evaluation not found")

// ErrSelfEvaluation indicates a submitter was matched with their own submission.
var ErrSelfEvaluation = errors.New("submitter cannot evaluate their own submission")

// ErrDuplicateEvaluation indicates an active evaluation already exists for the submission and round.
var ErrDuplicateEvaluation = errors.New("an active evaluation already exists for this submission and round")

// ErrInvalidTransition indicates the requested status is not the immediate successor.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrFinalizeForbidden indicates finalization was attempted without a reviewer or instructor role.
var ErrFinalizeForbidden = errors.New("finalization requires a reviewer or instructor role")

// ErrScoreOutOfRange indicates a criterion score outside [0, maxScore] or maxScore < 1.
var ErrScoreOutOfRange = errors.New("score is outside the criterion range")

// ErrTotalExceedsMax indicates the aggregate score would pass the assignment maximum.
var ErrTotalExceedsMax = errors.New("total score exceeds the assignment maximum")

// ErrScoresLocked indicates scores can no longer be recorded in the current state.
var ErrScoresLocked = errors.New("scores can only be recorded before submission")

// ErrFeedbackRequired indicates overall feedback is missing at submission time.
var ErrFeedbackRequired = errors.New("overall feedback is required before submission")

// ErrScoresRequired indicates no criterion scores were recorded before submission.
var ErrScoresRequired = errors.New("at least one criterion score is required before submission")

// ErrInvalidGrade indicates a grade outside the fixed letter set.
var ErrInvalidGrade = errors.New("grade must be one of A, B, C, D, F")

// ErrStaleWrite indicates the record changed since the caller last read it.
var ErrStaleWrite = errors.New("evaluation was modified concurrently, re-read and retry")

// CreationParams carries the assignment metadata needed to materialize one pairing.
type CreationParams struct {
	AssignmentID   uint
	Round          int
	DueDate        time.Time
	MaxTotalScore  float64
	EvaluationType models.EvaluationType
	IsAnonymous    bool
	Priority       int
}

// EvaluationCreator materializes generator pairings into evaluation records.
type EvaluationCreator interface {
	CreateFromPairing(ctx context.Context, pairing matching.Pairing, params CreationParams) (models.Evaluation, error)
}

// EvaluationService governs evaluation records through their lifecycle.
type EvaluationService interface {
	EvaluationCreator
	List(ctx context.Context, req dto.EvaluationListRequest) ([]dto.EvaluationResponse, error)
	Get(ctx context.Context, id uint) (dto.EvaluationResponse, error)
	Transition(ctx context.Context, id uint, payload dto.TransitionRequest, actor ActivityActor) (dto.EvaluationResponse, error)
	RecordScore(ctx context.Context, id uint, payload dto.RecordScoreRequest) (dto.EvaluationResponse, error)
	UpdateFeedback(ctx context.Context, id uint, payload dto.FeedbackUpdateRequest) (dto.EvaluationResponse, error)
}

type evaluationService struct {
	repo      repository.EvaluationRepository
	validator *validator.Validate
	publisher events.Publisher
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEvaluationService constructs the evaluation lifecycle service.
func NewEvaluationService(repo repository.EvaluationRepository, validate *validator.Validate, publisher events.Publisher, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		repo:      repo,
		validator: validate,
		publisher: publisher,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/peerlens-go-api/internal/service/evaluation"),
		now:       time.Now,
	}
}

func (s *evaluationService) List(ctx context.Context, req dto.EvaluationListRequest) ([]dto.EvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	filter := repository.EvaluationFilter{
		AssignmentID: req.AssignmentID,
		SubmissionID: req.SubmissionID,
		EvaluatorID:  req.EvaluatorID,
		Round:        req.Round,
		ActiveOnly:   req.ActiveOnly,
	}
	if req.Status != nil {
		status := models.EvaluationStatus(*req.Status)
		filter.Status = &status
	}

	evaluations, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return dto.NewEvaluationResponseSlice(evaluations), nil
}

func (s *evaluationService) Get(ctx context.Context, id uint) (dto.EvaluationResponse, error) {
	evaluation, err := s.fetch(ctx, id)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *evaluationService) CreateFromPairing(ctx context.Context, pairing matching.Pairing, params CreationParams) (models.Evaluation, error) {
	// The generator cannot produce a self-assignment, but the record layer
	// re-checks the invariant before anything is persisted.
	if pairing.SubmitterID == pairing.EvaluatorID {
		return models.Evaluation{}, ErrSelfEvaluation
	}

	if _, err := s.repo.ActiveBySubmissionAndRound(ctx, pairing.SubmissionID, params.Round); err == nil {
		return models.Evaluation{}, ErrDuplicateEvaluation
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Evaluation{}, err
	}

	evaluationType := params.EvaluationType
	if evaluationType == "" {
		evaluationType = models.EvaluationTypePeer
	}

	evaluation := models.Evaluation{
		AssignmentID:    params.AssignmentID,
		SubmissionID:    pairing.SubmissionID,
		SubmitterID:     pairing.SubmitterID,
		EvaluatorID:     pairing.EvaluatorID,
		MaxTotalScore:   params.MaxTotalScore,
		EvaluationType:  evaluationType,
		Status:          models.EvaluationStatusAssigned,
		AssignedAt:      s.now(),
		DueDate:         params.DueDate,
		IsAnonymous:     params.IsAnonymous,
		ColorGroup:      pairing.ColorGroup,
		AssignmentRound: params.Round,
		Priority:        params.Priority,
		Version:         1,
	}
	if err := evaluation.SetCriterionScores([]models.CriterionScore{}); err != nil {
		return models.Evaluation{}, err
	}

	if err := s.repo.Create(ctx, &evaluation); err != nil {
		return models.Evaluation{}, err
	}

	s.publish(events.Event{
		Name:         events.EvaluationAssigned,
		EvaluationID: evaluation.ID,
		AssignmentID: evaluation.AssignmentID,
		Payload: map[string]interface{}{
			"evaluator_id":  evaluation.EvaluatorID,
			"submission_id": evaluation.SubmissionID,
			"round":         evaluation.AssignmentRound,
		},
	})

	return evaluation, nil
}

func (s *evaluationService) Transition(ctx context.Context, id uint, payload dto.TransitionRequest, actor ActivityActor) (dto.EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.transition", trace.WithAttributes(
		attribute.Int64("evaluation.id", int64(id)),
		attribute.String("evaluation.target_status", payload.Status),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		return dto.EvaluationResponse{}, err
	}

	evaluation, err := s.fetch(ctx, id)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	if evaluation.Version != payload.Version {
		return dto.EvaluationResponse{}, ErrStaleWrite
	}

	target := models.EvaluationStatus(payload.Status)
	if target != models.NextStatus(evaluation.Status) {
		s.logger.Warn().
			Uint("evaluation_id", id).
			Str("from", string(evaluation.Status)).
			Str("to", payload.Status).
			Msg("rejected lifecycle transition")
		return dto.EvaluationResponse{}, ErrInvalidTransition
	}

	now := s.now()
	switch target {
	case models.EvaluationStatusInProgress:
		if evaluation.StartedAt == nil {
			evaluation.StartedAt = &now
		}
	case models.EvaluationStatusSubmitted:
		if err := s.applySubmission(&evaluation, now); err != nil {
			return dto.EvaluationResponse{}, err
		}
	case models.EvaluationStatusReviewed:
		if evaluation.ReviewedAt == nil {
			evaluation.ReviewedAt = &now
		}
	case models.EvaluationStatusFinalized:
		if !isReviewerRole(actor.Role) {
			return dto.EvaluationResponse{}, ErrFinalizeForbidden
		}
	}

	from := evaluation.Status
	evaluation.Status = target

	if err := s.update(ctx, &evaluation, payload.Version); err != nil {
		return dto.EvaluationResponse{}, err
	}

	observability.EvaluationTransitions().WithLabelValues(string(target)).Inc()
	s.publish(events.Event{
		Name:         events.EvaluationTransitioned,
		EvaluationID: evaluation.ID,
		AssignmentID: evaluation.AssignmentID,
		Payload: map[string]interface{}{
			"from": string(from),
			"to":   string(target),
		},
	})

	s.logger.Info().
		Uint("evaluation_id", evaluation.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("evaluation transitioned")

	return dto.NewEvaluationResponse(evaluation), nil
}

// applySubmission enforces the submission-time requirements and stamps the
// derived lateness flag.
func (s *evaluationService) applySubmission(evaluation *models.Evaluation, now time.Time) error {
	if strings.TrimSpace(evaluation.OverallFeedback) == "" {
		return ErrFeedbackRequired
	}

	scores, err := evaluation.CriterionScores()
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return ErrScoresRequired
	}

	// Re-encode so totalScore == sum(scores) holds from submitted onward.
	if err := evaluation.SetCriterionScores(scores); err != nil {
		return err
	}

	if evaluation.SubmittedAt == nil {
		evaluation.SubmittedAt = &now
	}
	evaluation.IsLate = models.ComputeLate(*evaluation.SubmittedAt, evaluation.DueDate)

	return nil
}

func (s *evaluationService) RecordScore(ctx context.Context, id uint, payload dto.RecordScoreRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EvaluationResponse{}, err
	}

	evaluation, err := s.fetch(ctx, id)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	if evaluation.Version != payload.Version {
		return dto.EvaluationResponse{}, ErrStaleWrite
	}

	if !evaluation.AcceptsScores() {
		return dto.EvaluationResponse{}, ErrScoresLocked
	}

	if payload.Score < 0 || payload.MaxScore < 1 || payload.Score > payload.MaxScore {
		return dto.EvaluationResponse{}, ErrScoreOutOfRange
	}

	scores, err := evaluation.CriterionScores()
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	entry := models.CriterionScore{
		CriteriaName: strings.TrimSpace(payload.CriteriaName),
		Score:        payload.Score,
		MaxScore:     payload.MaxScore,
		Feedback:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback)),
	}

	replaced := false
	for i, score := range scores {
		if score.CriteriaName == entry.CriteriaName {
			scores[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		scores = append(scores, entry)
	}

	var total float64
	for _, score := range scores {
		total += score.Score
	}
	if evaluation.MaxTotalScore > 0 && total > evaluation.MaxTotalScore {
		return dto.EvaluationResponse{}, ErrTotalExceedsMax
	}

	if err := evaluation.SetCriterionScores(scores); err != nil {
		return dto.EvaluationResponse{}, err
	}

	if err := s.update(ctx, &evaluation, payload.Version); err != nil {
		return dto.EvaluationResponse{}, err
	}

	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *evaluationService) UpdateFeedback(ctx context.Context, id uint, payload dto.FeedbackUpdateRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.EvaluationResponse{}, err
	}

	evaluation, err := s.fetch(ctx, id)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	if evaluation.Version != payload.Version {
		return dto.EvaluationResponse{}, ErrStaleWrite
	}

	if evaluation.IsTerminal() {
		return dto.EvaluationResponse{}, ErrInvalidTransition
	}

	if payload.OverallFeedback != nil {
		sanitized := strings.TrimSpace(s.sanitizer.Sanitize(*payload.OverallFeedback))
		// Markup-only input sanitizes to nothing; once submitted the
		// feedback must stay non-empty.
		if sanitized == "" && models.StatusRank(evaluation.Status) >= models.StatusRank(models.EvaluationStatusSubmitted) {
			return dto.EvaluationResponse{}, ErrFeedbackRequired
		}
		evaluation.OverallFeedback = sanitized
	}

	if payload.Grade != nil {
		if !models.IsLetterGrade(*payload.Grade) {
			return dto.EvaluationResponse{}, ErrInvalidGrade
		}
		grade := *payload.Grade
		evaluation.Grade = &grade
	}

	if payload.IsAnonymous != nil {
		evaluation.IsAnonymous = *payload.IsAnonymous
	}

	if err := s.update(ctx, &evaluation, payload.Version); err != nil {
		return dto.EvaluationResponse{}, err
	}

	return dto.NewEvaluationResponse(evaluation), nil
}

func (s *evaluationService) fetch(ctx context.Context, id uint) (models.Evaluation, error) {
	evaluation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrEvaluationNotFound
		}
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

func (s *evaluationService) update(ctx context.Context, evaluation *models.Evaluation, expectedVersion uint) error {
	if err := s.repo.UpdateWithVersion(ctx, evaluation, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrStaleWrite
		}
		return err
	}
	return nil
}

func (s *evaluationService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to publish evaluation event")
	}
}

func isReviewerRole(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "reviewer", "instructor", "admin":
		return true
	default:
		return false
	}
}
