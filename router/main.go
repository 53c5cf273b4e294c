package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/handlers"
	extraction_handlers "github.com/sahilchouksey/icm-reconcile/handlers/extraction"
	score_handlers "github.com/sahilchouksey/icm-reconcile/handlers/scores"
	sheet_handlers "github.com/sahilchouksey/icm-reconcile/handlers/sheets"
	unmatched_handlers "github.com/sahilchouksey/icm-reconcile/handlers/unmatched"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/reconcile"
	"github.com/sahilchouksey/icm-reconcile/services/unmatched"
	"github.com/sahilchouksey/icm-reconcile/utils"
	"github.com/sahilchouksey/icm-reconcile/utils/middleware"
)

// Services are the components the routes are served by
type Services struct {
	Generator  *expectation.Generator
	Reconciler *reconcile.Reconciler
	Extraction extraction_handlers.JobManager
	Scores     score_handlers.Applier
	Unmatched  *unmatched.Store
}

// Options configure the HTTP layer
type Options struct {
	AllowedOrigins    string
	RateLimitRequests int
}

func SetupRoutes(app *fiber.App, store database.Storage, svc Services, opts Options) {
	db := store.GetDB()

	sheetHandler := sheet_handlers.NewSheetHandler(svc.Generator, svc.Reconciler)
	extractionHandler := extraction_handlers.NewExtractionHandler(svc.Extraction)
	scoreHandler := score_handlers.NewScoreHandler(db, svc.Scores)
	unmatchedHandler := unmatched_handlers.NewUnmatchedHandler(svc.Unmatched)

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    opts.AllowedOrigins,
		RateLimitRequests: opts.RateLimitRequests,
		RateLimitWindow:   1 * time.Minute,
		UnlimitedPrefixes: []string{"/api/v1/extraction/callback", "/api/v1/extraction/events"},
	})

	// Health check endpoint
	app.Get("/ping", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	// API v1 group
	api := app.Group("/api/v1")

	// Expected sheets and reconciliation
	exams := api.Group("/exams/:exam_id")
	exams.Get("/sheets/expected", sheetHandler.ExpectedSheets)
	exams.Get("/sheets/compare", sheetHandler.CompareSheets)
	exams.Get("/subjects/:subject_id/score-summary", scoreHandler.ScoreSummary)
	api.Get("/sheets/:token", sheetHandler.DecodeSheet)

	// Score extraction jobs
	extraction := api.Group("/extraction")
	extraction.Post("/submit", extractionHandler.Submit)
	extraction.Get("/outstanding", extractionHandler.Outstanding)
	extraction.Get("/events", extractionHandler.Events)
	extraction.Post("/callback", extractionHandler.Callback)
	extraction.Get("/documents/:document_id/status", extractionHandler.Status)
	extraction.Post("/documents/:document_id/refresh", extractionHandler.Refresh)

	// Applying extracted scores
	api.Post("/documents/:document_id/apply-scores", scoreHandler.ApplyScores)

	// Unmatched rows
	unmatchedGroup := api.Group("/unmatched")
	unmatchedGroup.Get("/", unmatchedHandler.List)
	unmatchedGroup.Get("/counts", unmatchedHandler.Counts)
	unmatchedGroup.Get("/:id", unmatchedHandler.Get)
	unmatchedGroup.Post("/:id/resolve", unmatchedHandler.Resolve)
	unmatchedGroup.Post("/:id/ignore", unmatchedHandler.Ignore)
}
