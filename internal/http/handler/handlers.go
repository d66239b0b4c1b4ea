package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"capture/internal/service"
	"capture/internal/storage"
)

// Sweeper triggers one retry sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type createDocumentRequest struct {
	Type      string   `json:"type"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	SourceURL string   `json:"source_url"`
	Tags      []string `json:"tags"`
	LinkTo    string   `json:"link_to"`
}

type chatRequest struct {
	Query        string `json:"query"`
	ContextLimit int    `json:"context_limit"`
}

// CreateDocument accepts a document for asynchronous indexing. It responds
// 202 as soon as the record is stored; indexing happens in the background.
func CreateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createDocumentRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		doc, err := svc.Ingest(c.UserContext(), service.IngestInput{
			Type:      req.Type,
			Title:     req.Title,
			Content:   req.Content,
			SourceURL: req.SourceURL,
			Tags:      req.Tags,
			LinkTo:    req.LinkTo,
		})
		if err != nil {
			if errors.Is(err, service.ErrInvalidInput) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "document accepted for processing",
			"doc_id":  doc.ID,
			"status":  doc.Status,
		})
	}
}

// ListDocuments returns documents with limit & offset pagination.
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetDocument returns a single document by ID, including its lifecycle state.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(doc)
	}
}

// contentURLExpiry bounds how long an archive download link stays valid.
const contentURLExpiry = 15 * time.Minute

// DocumentContent returns a time-limited download URL for the archived raw
// content of a document. 404 when the archive is disabled: the content then
// only exists inside the database record.
func DocumentContent(svc service.DocumentService, archive storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if _, err := svc.Get(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		if archive == nil {
			return writeError(c, fiber.StatusNotFound, "CONTENT_UNAVAILABLE", "raw content archive is not enabled")
		}

		url, err := archive.PresignGet(c.UserContext(), storage.ContentKey(id), contentURLExpiry)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{
			"url":                url,
			"expires_in_seconds": int(contentURLExpiry.Seconds()),
		})
	}
}

// Chat answers a question against the indexed documents.
func Chat(svc service.QueryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req chatRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		res, err := svc.Answer(c.UserContext(), req.Query, req.ContextLimit)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput):
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
			case errors.Is(err, service.ErrUnavailable):
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "knowledge base temporarily unavailable")
			case errors.Is(err, service.ErrNoAnswer):
				return writeError(c, fiber.StatusBadGateway, "NO_ANSWER", "no answer generated")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		return c.JSON(res)
	}
}

// RetrySweep triggers one retry sweep immediately instead of waiting for the
// next scheduled run.
func RetrySweep(sweeper Sweeper) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requeued, err := sweeper.Sweep(c.UserContext())
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"requeued": requeued})
	}
}

// HealthCheck reports readiness by pinging the database.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a bare liveness check with no dependencies.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
