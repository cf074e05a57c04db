package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docsync/internal/model"
	"docsync/internal/service"
)

// Pinger reports whether the record store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// records may be nil when the record store failed to open.
func RegisterRoutes(app *fiber.App, records Pinger, docSvc service.DocumentService, syncer service.Syncer, gatherer prometheus.Gatherer) {
	app.Get("/health", HealthCheck(records))
	app.Get("/healthz", LivenessProbe())
	if gatherer != nil {
		app.Get("/metrics", Metrics(gatherer))
	}

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", SaveDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Get("/documents/:id/content", GetDocumentContent(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))

	app.Post("/sync", RunSync(syncer))
}

// HealthCheck pings the record store.
func HealthCheck(records Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if records == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := records.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Metrics exposes the prometheus registry.
func Metrics(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// saveRequest is what a producer posts.
type saveRequest struct {
	Entry   model.Metadata `json:"entry"`
	DataURI string         `json:"dataUri"`
}

// documentList is the pending listing. Payloads are never included.
type documentList struct {
	Items []model.Document `json:"items"`
	Total int              `json:"total"`
}

// SaveDocument stores a document for later delivery.
func SaveDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Producers do not always label the body as JSON.
		var req saveRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if req.DataURI == "" {
			return writeError(c, fiber.StatusBadRequest, "PAYLOAD_REQUIRED", "dataUri is required")
		}

		res, err := docSvc.Save(c.UserContext(), req.Entry, req.DataURI)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListDocuments returns every pending document.
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := docSvc.ListPending(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(documentList{Items: docs, Total: len(docs)})
	}
}

// GetDocument returns a pending document's metadata.
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.FindByID(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// GetDocumentContent serves the cached PDF bytes.
func GetDocumentContent(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.FindByID(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, model.PDFMediaType)
		c.Set(fiber.HeaderContentDisposition, "inline; filename="+strconv.Quote(doc.FileName))
		return c.Status(fiber.StatusOK).Send(doc.Payload)
	}
}

// DeleteDocument discards a pending document. Deleting twice is not an error.
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docSvc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RunSync runs one sync cycle and returns its report. A cycle that found
// another one in flight answers 202.
func RunSync(syncer service.Syncer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := syncer.RunSync(c.UserContext())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return writeError(c, fiber.StatusServiceUnavailable, "SYNC_INTERRUPTED", "sync interrupted")
			}
			return writeError(c, fiber.StatusInternalServerError, "SYNC_FAILED", "sync failed")
		}
		if report.Skipped {
			return c.Status(fiber.StatusAccepted).JSON(report)
		}
		return c.JSON(report)
	}
}
