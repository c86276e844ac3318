package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gradeflow/gradeflow-api/internal/handler"
	"github.com/gradeflow/gradeflow-api/internal/middleware"
	"github.com/gradeflow/gradeflow-api/internal/observability"
)

// Dependencies carries every handler the router wires up.
type Dependencies struct {
	Submissions *handler.SubmissionHandler
	Reviews     *handler.ReviewHandler
	Admin       *handler.AdminHandler
	Health      *handler.HealthHandler
	JWTSecret   string
}

// Register mounts the full route tree onto the app.
func Register(app *fiber.App, deps Dependencies) {
	app.Get("/health", deps.Health.Live)
	app.Get("/health/ready", deps.Health.Ready)
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1")
	api.Use(middleware.JWTProtected(deps.JWTSecret))

	submissions := api.Group("/submissions")
	submissions.Post("/", middleware.SubmissionRateLimiter(10, time.Minute), deps.Submissions.Submit)
	submissions.Get("/questions/:question_id/latest", deps.Submissions.GetLatest)
	submissions.Get("/questions/:question_id/attempts", deps.Submissions.ListAttempts)
	submissions.Get("/questions/:question_id/attempts/:attempt", deps.Submissions.GetByAttempt)
	submissions.Post("/:id/review-request", deps.Submissions.RequestReview)
	submissions.Post("/:id/feedback", deps.Submissions.SubmitFeedback)

	api.Get("/evaluations", deps.Submissions.ListEvaluations)

	reviews := api.Group("/reviews", middleware.RequireRole("evaluator", "admin"))
	reviews.Get("/", deps.Reviews.Queue)
	reviews.Post("/:id/accept", deps.Reviews.Accept)
	reviews.Post("/:id/submit", deps.Reviews.Submit)

	admin := api.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/submissions/:id/reevaluate", deps.Submissions.Reevaluate)
	admin.Patch("/evaluations/:id", deps.Admin.OverrideEvaluation)
	admin.Patch("/evaluations", deps.Admin.BulkOverrideEvaluation)
	admin.Post("/ocr/sweep", deps.Admin.SweepOCR)
}
