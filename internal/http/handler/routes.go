package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"capture/internal/service"
	"capture/internal/storage"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal and free of business logic. archive may be nil when
// the raw-content archive is disabled.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, querySvc service.QueryService, sweeper Sweeper, archive storage.Storage) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/documents", CreateDocument(docSvc))
	api.Get("/documents", ListDocuments(docSvc))
	api.Get("/documents/:id", GetDocument(docSvc))
	api.Get("/documents/:id/content", DocumentContent(docSvc, archive))
	api.Post("/chat", Chat(querySvc))
	api.Post("/retry-sweep", RetrySweep(sweeper))
}
