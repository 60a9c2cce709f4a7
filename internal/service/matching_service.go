package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/matching"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/observability"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
)

// ErrAssignmentNotFound indicates the requested assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// MatchingService runs the assignment generator and materializes its output.
type MatchingService interface {
	GenerateAssignments(ctx context.Context, assignmentID uint, payload dto.MatchingRequest, actor ActivityActor) (dto.MatchingResponse, error)
}

// MatchingConfig tunes generator runs.
type MatchingConfig struct {
	// RejectionBudget caps permutation resampling for the rejection
	// strategy; zero falls back to the generator default.
	RejectionBudget int
}

type matchingService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	evaluations repository.EvaluationRepository
	creator     EvaluationCreator
	validator   *validator.Validate
	activity    ActivityRecorder
	config      MatchingConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	seed        func() int64
}

// NewMatchingService constructs the matching service.
func NewMatchingService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	evaluations repository.EvaluationRepository,
	creator EvaluationCreator,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
	config MatchingConfig,
) MatchingService {
	return &matchingService{
		assignments: assignments,
		submissions: submissions,
		evaluations: evaluations,
		creator:     creator,
		validator:   validate,
		activity:    activity,
		config:      config,
		logger:      logger.With().Str("component", "matching_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/peerlens-go-api/internal/service/matching"),
		now:         time.Now,
		seed:        func() int64 { return time.Now().UnixNano() },
	}
}

func (s *matchingService) GenerateAssignments(ctx context.Context, assignmentID uint, payload dto.MatchingRequest, actor ActivityActor) (dto.MatchingResponse, error) {
	ctx, span := s.tracer.Start(ctx, "matching.generate", trace.WithAttributes(
		attribute.Int64("matching.assignment_id", int64(assignmentID)),
		attribute.Int("matching.round", payload.Round),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.MatchingResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MatchingResponse{}, ErrAssignmentNotFound
		}
		return dto.MatchingResponse{}, err
	}

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return dto.MatchingResponse{}, err
	}

	entries := make([]matching.Entry, 0, len(submissions))
	for _, submission := range submissions {
		entries = append(entries, matching.Entry{
			SubmissionID: submission.ID,
			SubmitterID:  submission.SubmitterID,
		})
	}

	opts := s.generatorOptions(payload)

	if payload.ExcludePriorEvaluators {
		prior, err := s.evaluations.PriorEvaluators(ctx, assignmentID)
		if err != nil {
			return dto.MatchingResponse{}, err
		}
		opts.Exclude = prior
	}

	pairings, err := matching.Generate(assignmentID, entries, opts)
	if err != nil {
		observability.MatchingRuns().WithLabelValues(string(strategyOrDefault(opts.Strategy)), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation_failed")
		return dto.MatchingResponse{}, err
	}

	// Reject the whole run up front if any pairing would collide with an
	// active record, so a failed run leaves no partial writes behind.
	for _, pairing := range pairings {
		if _, err := s.evaluations.ActiveBySubmissionAndRound(ctx, pairing.SubmissionID, payload.Round); err == nil {
			return dto.MatchingResponse{}, ErrDuplicateEvaluation
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MatchingResponse{}, err
		}
	}

	params := CreationParams{
		AssignmentID:   assignmentID,
		Round:          payload.Round,
		DueDate:        assignment.DueDate,
		MaxTotalScore:  assignment.MaxTotalScore,
		EvaluationType: models.EvaluationType(payload.EvaluationType),
		IsAnonymous:    true,
		Priority:       payload.Priority,
	}
	if payload.IsAnonymous != nil {
		params.IsAnonymous = *payload.IsAnonymous
	}

	created := make([]models.Evaluation, 0, len(pairings))
	for _, pairing := range pairings {
		evaluation, err := s.creator.CreateFromPairing(ctx, pairing, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "materialization_failed")
			return dto.MatchingResponse{}, err
		}
		created = append(created, evaluation)
	}

	observability.MatchingRuns().WithLabelValues(string(strategyOrDefault(opts.Strategy)), "ok").Inc()

	if s.activity != nil {
		assignmentRef := assignmentID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "matching.generated",
			EntityType: "assignment",
			EntityID:   &assignmentRef,
			Metadata: map[string]interface{}{
				"round":       payload.Round,
				"evaluations": len(created),
				"strategy":    string(strategyOrDefault(opts.Strategy)),
			},
		})
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("round", payload.Round).
		Int("evaluations", len(created)).
		Msg("matching run completed")

	return dto.MatchingResponse{
		AssignmentID: assignmentID,
		Round:        payload.Round,
		Strategy:     string(strategyOrDefault(opts.Strategy)),
		Seed:         opts.Seed,
		Evaluations:  dto.NewEvaluationResponseSlice(created),
		GeneratedAt:  s.now().UTC(),
	}, nil
}

// generatorOptions maps the request payload and service configuration onto
// one generator run. A missing seed is drawn per run.
func (s *matchingService) generatorOptions(payload dto.MatchingRequest) matching.Options {
	opts := matching.Options{
		Round:           payload.Round,
		Strategy:        matching.Strategy(payload.Strategy),
		RejectionBudget: s.config.RejectionBudget,
	}
	if payload.Seed != nil {
		opts.Seed = *payload.Seed
	} else {
		opts.Seed = s.seed()
	}
	return opts
}

func strategyOrDefault(strategy matching.Strategy) matching.Strategy {
	if strategy == "" {
		return matching.StrategyShift
	}
	return strategy
}
