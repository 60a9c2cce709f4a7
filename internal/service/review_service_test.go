package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/pkg/events"
)

func boolPtr(v bool) *bool { return &v }

func TestReviewServiceUpdatesFlags(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	publisher := &capturingPublisher{}
	activity := &activityRecorderStub{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, publisher, activity, testLogger())

	seeded := seedEvaluation(t, repo, func(e *models.Evaluation) {
		e.Status = models.EvaluationStatusSubmitted
	})

	notes := "Feedback is one sentence for a 2000 word essay"
	resp, err := svc.UpdateQualityFlags(context.Background(), seeded.ID, dto.QualityFlagsRequest{
		IsIncomplete: boolPtr(true),
		NeedsReview:  boolPtr(true),
		ReviewNotes:  &notes,
		Version:      1,
	}, ActivityActor{ID: 300, Role: "reviewer"})
	require.NoError(t, err)
	require.True(t, resp.IsIncomplete)
	require.True(t, resp.NeedsReview)
	require.False(t, resp.IsDisputed)
	require.Equal(t, notes, resp.ReviewNotes)
	require.Equal(t, uint(2), resp.Version)

	// Flags never touch the lifecycle state.
	require.Equal(t, "submitted", resp.Status)

	require.Len(t, publisher.published, 1)
	require.Equal(t, events.EvaluationFlagged, publisher.published[0].Name)
	require.Len(t, activity.entries, 1)
	require.Equal(t, "evaluation.flagged", activity.entries[0].Action)
}

func TestReviewServicePartialUpdateKeepsOtherFlags(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, nil, nil, testLogger())

	seeded := seedEvaluation(t, repo, func(e *models.Evaluation) {
		e.IsDisputed = true
		e.ReviewNotes = "disputed by submitter"
	})

	resp, err := svc.UpdateQualityFlags(context.Background(), seeded.ID, dto.QualityFlagsRequest{
		NeedsReview: boolPtr(true),
		Version:     1,
	}, ActivityActor{ID: 300, Role: "instructor"})
	require.NoError(t, err)
	require.True(t, resp.IsDisputed)
	require.True(t, resp.NeedsReview)
	require.Equal(t, "disputed by submitter", resp.ReviewNotes)
}

func TestReviewServiceRequiresReviewerRole(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, nil, nil, testLogger())

	seeded := seedEvaluation(t, repo, nil)

	_, err := svc.UpdateQualityFlags(context.Background(), seeded.ID, dto.QualityFlagsRequest{
		IsDisputed: boolPtr(true),
		Version:    1,
	}, ActivityActor{ID: 100, Role: "student"})
	require.ErrorIs(t, err, ErrReviewForbidden)
}

func TestReviewServiceSanitizesNotes(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, nil, nil, testLogger())

	seeded := seedEvaluation(t, repo, nil)

	notes := "<img src=x onerror=alert(1)>Scores contradict the written feedback"
	resp, err := svc.UpdateQualityFlags(context.Background(), seeded.ID, dto.QualityFlagsRequest{
		NeedsReview: boolPtr(true),
		ReviewNotes: &notes,
		Version:     1,
	}, ActivityActor{ID: 300, Role: "reviewer"})
	require.NoError(t, err)
	require.Equal(t, "Scores contradict the written feedback", resp.ReviewNotes)
}

func TestReviewServiceStaleVersion(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, nil, nil, testLogger())

	seeded := seedEvaluation(t, repo, func(e *models.Evaluation) {
		e.Version = 3
	})

	_, err := svc.UpdateQualityFlags(context.Background(), seeded.ID, dto.QualityFlagsRequest{
		IsDisputed: boolPtr(true),
		Version:    1,
	}, ActivityActor{ID: 300, Role: "reviewer"})
	require.ErrorIs(t, err, ErrStaleWrite)
}

func TestReviewServiceNotFound(t *testing.T) {
	repo := newMemoryEvaluationRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewReviewService(repo, validate, nil, nil, testLogger())

	_, err := svc.UpdateQualityFlags(context.Background(), 404, dto.QualityFlagsRequest{
		IsDisputed: boolPtr(true),
		Version:    1,
	}, ActivityActor{ID: 300, Role: "reviewer"})
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}
