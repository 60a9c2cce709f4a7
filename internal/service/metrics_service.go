package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
)

// progressByStatus fixes the progress percentage for each lifecycle state.
var progressByStatus = map[models.EvaluationStatus]int{
	models.EvaluationStatusAssigned:   0,
	models.EvaluationStatusInProgress: 25,
	models.EvaluationStatusSubmitted:  75,
	models.EvaluationStatusReviewed:   90,
	models.EvaluationStatusFinalized:  100,
}

// ProgressPercentage maps a lifecycle state to its fixed progress value.
// Unknown states report zero progress.
func ProgressPercentage(status models.EvaluationStatus) int {
	return progressByStatus[status]
}

// ScorePercentage reports the rounded score ratio, or zero for a non-positive maximum.
func ScorePercentage(total, maxTotal float64) int {
	if maxTotal <= 0 {
		return 0
	}
	return int(math.Round(total / maxTotal * 100))
}

// TimeRemaining reports the duration until dueDate, floored at zero once past due.
func TimeRemaining(dueDate, now time.Time) time.Duration {
	remaining := dueDate.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MetricsService computes derived, read-only metrics over evaluation snapshots.
type MetricsService interface {
	EvaluationMetrics(ctx context.Context, id uint) (dto.EvaluationMetricsResponse, error)
	AssignmentOverview(ctx context.Context, assignmentID uint) (dto.AssignmentOverviewResponse, error)
}

type metricsService struct {
	repo     repository.EvaluationRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMetricsService builds the metrics aggregator.
func NewMetricsService(repo repository.EvaluationRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) MetricsService {
	return &metricsService{
		repo:     repo,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "metrics_service").Logger(),
		now:      time.Now,
	}
}

func (s *metricsService) EvaluationMetrics(ctx context.Context, id uint) (dto.EvaluationMetricsResponse, error) {
	evaluation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationMetricsResponse{}, ErrEvaluationNotFound
		}
		return dto.EvaluationMetricsResponse{}, err
	}

	now := s.now()
	return dto.EvaluationMetricsResponse{
		EvaluationID:       evaluation.ID,
		Status:             string(evaluation.Status),
		ProgressPercentage: ProgressPercentage(evaluation.Status),
		ScorePercentage:    ScorePercentage(evaluation.TotalScore, evaluation.MaxTotalScore),
		TimeRemaining:      int64(TimeRemaining(evaluation.DueDate, now).Seconds()),
		IsLate:             evaluation.IsLate,
		DueDate:            evaluation.DueDate,
		GeneratedAt:        now.UTC(),
	}, nil
}

func (s *metricsService) AssignmentOverview(ctx context.Context, assignmentID uint) (dto.AssignmentOverviewResponse, error) {
	cacheKey := fmt.Sprintf("overview:assignment:%d", assignmentID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.AssignmentOverviewResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				s.logger.Debug().Uint("assignment_id", assignmentID).Msg("overview cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read overview cache")
		}
	}

	evaluations, err := s.repo.List(ctx, repository.EvaluationFilter{
		AssignmentID: &assignmentID,
		ActiveOnly:   true,
	})
	if err != nil {
		return dto.AssignmentOverviewResponse{}, err
	}

	response := s.buildOverview(assignmentID, evaluations)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store overview cache")
			}
		}
	}

	return response, nil
}

func (s *metricsService) buildOverview(assignmentID uint, evaluations []models.Evaluation) dto.AssignmentOverviewResponse {
	response := dto.AssignmentOverviewResponse{
		AssignmentID:     assignmentID,
		TotalEvaluations: len(evaluations),
		StatusCounts:     make(map[string]int, len(progressByStatus)),
		GeneratedAt:      s.now().UTC(),
	}

	if len(evaluations) == 0 {
		return response
	}

	var progressSum, scoreSum int
	for _, evaluation := range evaluations {
		response.StatusCounts[string(evaluation.Status)]++
		progressSum += ProgressPercentage(evaluation.Status)
		scoreSum += ScorePercentage(evaluation.TotalScore, evaluation.MaxTotalScore)

		if evaluation.IsLate {
			response.LateCount++
		}
		if evaluation.IsDisputed {
			response.DisputedCount++
		}
		if evaluation.NeedsReview {
			response.NeedsReviewCount++
		}
		if evaluation.IsIncomplete {
			response.IncompleteCount++
		}
	}

	response.AverageProgress = progressSum / len(evaluations)
	response.AverageScorePercent = scoreSum / len(evaluations)

	return response
}
