package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/config"
	"github.com/noah-isme/peerlens-go-api/internal/dto"
	"github.com/noah-isme/peerlens-go-api/internal/handler"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
	"github.com/noah-isme/peerlens-go-api/internal/router"
	"github.com/noah-isme/peerlens-go-api/internal/service"
)

func setupEvaluationApp(t *testing.T, role string) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Assignment{}, &models.Submission{}, &models.Evaluation{}, &models.ActivityLog{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, validate, nil, logger)
	matchingService := service.NewMatchingService(assignmentRepo, submissionRepo, evaluationRepo, evaluationService, validate, activityService, logger, service.MatchingConfig{RejectionBudget: 1000})
	reviewService := service.NewReviewService(evaluationRepo, validate, nil, activityService, logger)
	metricsService := service.NewMetricsService(evaluationRepo, nil, time.Minute, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "PeerLens Test", JWTSecret: "secret"}, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, reviewService, logger),
		MatchingHandler:   handler.NewMatchingHandler(matchingService, logger),
		MetricsHandler:    handler.NewMetricsHandler(metricsService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			c.Locals("user_role", role)
			return c.Next()
		},
	})

	return app, db
}

func seedCohort(t *testing.T, db *gorm.DB, submitters int) models.Assignment {
	t.Helper()

	assignment := models.Assignment{
		Title:         "Essay Review",
		DueDate:       time.Now().Add(72 * time.Hour),
		MaxTotalScore: 100,
	}
	require.NoError(t, db.Create(&assignment).Error)

	for i := 0; i < submitters; i++ {
		submission := models.Submission{
			AssignmentID: assignment.ID,
			SubmitterID:  uint(100 + i),
		}
		require.NoError(t, db.Create(&submission).Error)
	}

	return assignment
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

type evaluationEnvelope struct {
	Success bool                   `json:"success"`
	Data    dto.EvaluationResponse `json:"data"`
	Message string                 `json:"message"`
}

type matchingEnvelope struct {
	Success bool                 `json:"success"`
	Data    dto.MatchingResponse `json:"data"`
	Message string               `json:"message"`
}

func TestEvaluationLifecycleOverHTTP(t *testing.T) {
	app, db := setupEvaluationApp(t, "instructor")
	assignment := seedCohort(t, db, 4)

	assignmentPath := "/api/v1/assignments/" + strconv.FormatUint(uint64(assignment.ID), 10)

	resp, err := app.Test(jsonRequest(t, "POST", assignmentPath+"/matchings", map[string]interface{}{"round": 1}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var generated matchingEnvelope
	decodeResponse(t, resp, &generated)
	require.True(t, generated.Success)
	require.Len(t, generated.Data.Evaluations, 4)

	evaluation := generated.Data.Evaluations[0]
	require.NotEqual(t, evaluation.SubmitterID, evaluation.EvaluatorID)
	evaluationPath := "/api/v1/evaluations/" + strconv.FormatUint(uint64(evaluation.ID), 10)

	resp, err = app.Test(jsonRequest(t, "POST", evaluationPath+"/transitions", map[string]interface{}{
		"status":  "in_progress",
		"version": 1,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var transitioned evaluationEnvelope
	decodeResponse(t, resp, &transitioned)
	require.Equal(t, "in_progress", transitioned.Data.Status)
	require.NotNil(t, transitioned.Data.StartedAt)

	resp, err = app.Test(jsonRequest(t, "POST", evaluationPath+"/scores", map[string]interface{}{
		"criteria_name": "Clarity",
		"score":         40,
		"max_score":     50,
		"feedback":      "Well structured argument",
		"version":       2,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var scored evaluationEnvelope
	decodeResponse(t, resp, &scored)
	require.Equal(t, float64(40), scored.Data.TotalScore)
	require.Len(t, scored.Data.Scores, 1)

	resp, err = app.Test(jsonRequest(t, "PATCH", evaluationPath+"/feedback", map[string]interface{}{
		"overall_feedback": "Strong essay with minor citation issues",
		"grade":            "B",
		"version":          3,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, "POST", evaluationPath+"/transitions", map[string]interface{}{
		"status":  "submitted",
		"version": 4,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var submitted evaluationEnvelope
	decodeResponse(t, resp, &submitted)
	require.Equal(t, "submitted", submitted.Data.Status)
	require.NotNil(t, submitted.Data.SubmittedAt)
	require.False(t, submitted.Data.IsLate)

	resp, err = app.Test(httptest.NewRequest("GET", evaluationPath+"/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var metrics struct {
		Data dto.EvaluationMetricsResponse `json:"data"`
	}
	decodeResponse(t, resp, &metrics)
	require.Equal(t, 75, metrics.Data.ProgressPercentage)
	require.Equal(t, 40, metrics.Data.ScorePercentage)

	resp, err = app.Test(httptest.NewRequest("GET", assignmentPath+"/overview", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var overview struct {
		Data dto.AssignmentOverviewResponse `json:"data"`
	}
	decodeResponse(t, resp, &overview)
	require.Equal(t, 4, overview.Data.TotalEvaluations)
	require.Equal(t, 1, overview.Data.StatusCounts["submitted"])
	require.Equal(t, 3, overview.Data.StatusCounts["assigned"])
}

func TestEvaluationTransitionConflicts(t *testing.T) {
	app, db := setupEvaluationApp(t, "instructor")
	assignment := seedCohort(t, db, 3)

	assignmentPath := "/api/v1/assignments/" + strconv.FormatUint(uint64(assignment.ID), 10)

	resp, err := app.Test(jsonRequest(t, "POST", assignmentPath+"/matchings", map[string]interface{}{"round": 1}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var generated matchingEnvelope
	decodeResponse(t, resp, &generated)
	evaluation := generated.Data.Evaluations[0]
	evaluationPath := "/api/v1/evaluations/" + strconv.FormatUint(uint64(evaluation.ID), 10)

	// Skipping straight to submitted violates the forward-only order.
	resp, err = app.Test(jsonRequest(t, "POST", evaluationPath+"/transitions", map[string]interface{}{
		"status":  "submitted",
		"version": 1,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	// A stale version is a conflict, not a validation failure.
	resp, err = app.Test(jsonRequest(t, "POST", evaluationPath+"/transitions", map[string]interface{}{
		"status":  "in_progress",
		"version": 7,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Re-running the same round collides with the active records.
	resp, err = app.Test(jsonRequest(t, "POST", assignmentPath+"/matchings", map[string]interface{}{"round": 1}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestQualityFlagsRequireReviewerRole(t *testing.T) {
	app, db := setupEvaluationApp(t, "student")
	assignment := seedCohort(t, db, 2)

	evaluation := models.Evaluation{
		AssignmentID:    assignment.ID,
		SubmissionID:    1,
		SubmitterID:     100,
		EvaluatorID:     101,
		MaxTotalScore:   100,
		EvaluationType:  models.EvaluationTypePeer,
		Status:          models.EvaluationStatusSubmitted,
		AssignedAt:      time.Now(),
		DueDate:         assignment.DueDate,
		AssignmentRound: 1,
		Version:         1,
	}
	require.NoError(t, db.Create(&evaluation).Error)

	evaluationPath := "/api/v1/evaluations/" + strconv.FormatUint(uint64(evaluation.ID), 10)

	resp, err := app.Test(jsonRequest(t, "PATCH", evaluationPath+"/quality-flags", map[string]interface{}{
		"needs_review": true,
		"version":      1,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestQualityFlagsUpdateAsReviewer(t *testing.T) {
	app, db := setupEvaluationApp(t, "reviewer")
	assignment := seedCohort(t, db, 2)

	evaluation := models.Evaluation{
		AssignmentID:    assignment.ID,
		SubmissionID:    1,
		SubmitterID:     100,
		EvaluatorID:     101,
		MaxTotalScore:   100,
		EvaluationType:  models.EvaluationTypePeer,
		Status:          models.EvaluationStatusSubmitted,
		AssignedAt:      time.Now(),
		DueDate:         assignment.DueDate,
		AssignmentRound: 1,
		Version:         1,
	}
	require.NoError(t, db.Create(&evaluation).Error)

	evaluationPath := "/api/v1/evaluations/" + strconv.FormatUint(uint64(evaluation.ID), 10)

	resp, err := app.Test(jsonRequest(t, "PATCH", evaluationPath+"/quality-flags", map[string]interface{}{
		"is_disputed":  true,
		"review_notes": "Submitter contests the clarity score",
		"version":      1,
	}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var flagged evaluationEnvelope
	decodeResponse(t, resp, &flagged)
	require.True(t, flagged.Data.IsDisputed)
	require.Equal(t, "submitted", flagged.Data.Status)
	require.Equal(t, uint(2), flagged.Data.Version)
}

func TestEvaluationGetNotFound(t *testing.T) {
	app, _ := setupEvaluationApp(t, "instructor")

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/evaluations/9999", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
