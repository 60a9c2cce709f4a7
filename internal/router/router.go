package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/peerlens-go-api/internal/config"
	"github.com/noah-isme/peerlens-go-api/internal/handler"
	"github.com/noah-isme/peerlens-go-api/internal/middleware"
	"github.com/noah-isme/peerlens-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	MatchingHandler   *handler.MatchingHandler
	MetricsHandler    *handler.MetricsHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	reviewerOnly := middleware.RequireRole("reviewer", "instructor", "admin")

	if deps.EvaluationHandler != nil {
		evaluations := api.Group("/evaluations", jwtMiddleware)
		deps.EvaluationHandler.Register(evaluations, reviewerOnly)

		if deps.MetricsHandler != nil {
			deps.MetricsHandler.RegisterEvaluationRoutes(evaluations)
		}
	}

	assignments := api.Group("/assignments", jwtMiddleware)
	if deps.MatchingHandler != nil {
		matchings := assignments.Group("", reviewerOnly)
		deps.MatchingHandler.Register(matchings)
	}
	if deps.MetricsHandler != nil {
		deps.MetricsHandler.RegisterAssignmentRoutes(assignments)
	}

	if deps.ActivityHandler != nil {
		activity := api.Group("/activity", jwtMiddleware, reviewerOnly)
		deps.ActivityHandler.Register(activity)
	}
}
