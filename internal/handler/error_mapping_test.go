package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/peerlens-go-api/internal/service"
)

func TestEvaluationHandlerErrorMapping(t *testing.T) {
	h := NewEvaluationHandler(nil, nil, zerolog.Nop())

	cases := []struct {
		err    error
		status int
	}{
		{service.ErrEvaluationNotFound, fiber.StatusNotFound},
		{service.ErrStaleWrite, fiber.StatusConflict},
		{service.ErrInvalidTransition, fiber.StatusUnprocessableEntity},
		{service.ErrFeedbackRequired, fiber.StatusUnprocessableEntity},
		{service.ErrScoresRequired, fiber.StatusUnprocessableEntity},
		{service.ErrScoresLocked, fiber.StatusUnprocessableEntity},
		{service.ErrScoreOutOfRange, fiber.StatusUnprocessableEntity},
		{service.ErrTotalExceedsMax, fiber.StatusUnprocessableEntity},
		{service.ErrInvalidGrade, fiber.StatusUnprocessableEntity},
		{service.ErrFinalizeForbidden, fiber.StatusForbidden},
		{service.ErrReviewForbidden, fiber.StatusForbidden},
	}

	for _, tc := range cases {
		app := fiber.New()
		app.Get("/fail", func(c *fiber.Ctx) error {
			return h.handleError(c, tc.err)
		})

		resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, "unexpected status for %v", tc.err)
	}
}
