package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"resume-pdf/internal/domain"
	"resume-pdf/internal/infra/logging"
	"resume-pdf/internal/infra/postgres"
	"resume-pdf/internal/metrics"
	"resume-pdf/internal/pdfgen"
)

const msgHTMLRequired = "HTML content is required"

// Generator runs the resume pipeline.
type Generator interface {
	Generate(ctx context.Context, req domain.RenderRequest) (pdfgen.Output, error)
}

// AuditRecorder persists one line per request.
type AuditRecorder interface {
	Record(ctx context.Context, ev postgres.RenderEvent) error
}

// GenerateHandler serves POST /generate-pdf.
type GenerateHandler struct {
	gen          Generator
	maxHTMLBytes int
	audit        AuditRecorder
	metrics      *metrics.Recorder
	validate     *validator.Validate
}

// NewGenerateHandler builds the handler. audit and rec may be nil.
func NewGenerateHandler(gen Generator, maxHTMLBytes int, audit AuditRecorder, rec *metrics.Recorder) *GenerateHandler {
	return &GenerateHandler{
		gen:          gen,
		maxHTMLBytes: maxHTMLBytes,
		audit:        audit,
		metrics:      rec,
		validate:     validator.New(),
	}
}

// Handle accepts a JSON or url-encoded body with html and an optional
// username and responds with the PDF as an attachment.
func (h *GenerateHandler) Handle(c *fiber.Ctx) error {
	start := time.Now()
	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	logging.Info("PDF generation request received", "origin", c.Get(fiber.HeaderOrigin), "request_id", requestID)

	var req domain.RenderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logging.Warn("Unreadable PDF request body", "error", err, "request_id", requestID)
			return h.fail(c, fiber.StatusBadRequest, fiber.Map{"error": "Invalid request body"})
		}
	}
	if err := h.validate.Struct(req); err != nil || strings.TrimSpace(req.HTML) == "" {
		return h.fail(c, fiber.StatusBadRequest, fiber.Map{"error": msgHTMLRequired})
	}
	if h.maxHTMLBytes > 0 && len(req.HTML) > h.maxHTMLBytes {
		return h.fail(c, fiber.StatusRequestEntityTooLarge, fiber.Map{
			"error": fmt.Sprintf("HTML content exceeds %d bytes", h.maxHTMLBytes),
		})
	}

	out, err := h.gen.Generate(c.UserContext(), req)
	ev := postgres.RenderEvent{
		RequestID:  requestID,
		Username:   out.Username,
		Tier:       out.Tier,
		Cached:     out.Cached,
		HTMLBytes:  len(req.HTML),
		PDFBytes:   len(out.PDF),
		DurationMS: time.Since(start).Milliseconds(),
	}

	if err != nil {
		status := domain.HTTPStatus(err)
		ev.Outcome = outcome(err)
		ev.Error = err.Error()
		h.record(ev)

		if status == fiber.StatusBadRequest {
			return h.fail(c, status, fiber.Map{"error": msgHTMLRequired})
		}
		logging.Error("PDF generation failed", "error", err, "request_id", requestID, "duration_ms", ev.DurationMS)
		return h.fail(c, status, fiber.Map{
			"error":   "Failed to generate PDF",
			"details": err.Error(),
		})
	}

	ev.Outcome = "success"
	h.record(ev)
	h.metrics.IncRequest(fiber.StatusOK)
	logging.Info("PDF generated",
		"filename", out.Filename,
		"bytes", len(out.PDF),
		"tier", out.Tier,
		"cached", out.Cached,
		"duration_ms", ev.DurationMS,
		"request_id", requestID,
	)

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+out.Filename+`"`)
	c.Set(fiber.HeaderContentLength, strconv.Itoa(len(out.PDF)))
	return c.Send(out.PDF)
}

func (h *GenerateHandler) fail(c *fiber.Ctx, status int, body fiber.Map) error {
	h.metrics.IncRequest(status)
	return c.Status(status).JSON(body)
}

// record writes the audit line off the request path.
func (h *GenerateHandler) record(ev postgres.RenderEvent) {
	if h.audit == nil {
		return
	}
	go func() {
		if err := h.audit.Record(context.Background(), ev); err != nil {
			logging.Warn("Render audit write failed", "error", err, "request_id", ev.RequestID)
		}
	}()
}

func outcome(err error) string {
	var rerr *domain.RenderError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.As(err, &rerr) && rerr.Kind == domain.RenderTimeout:
		return "timeout"
	default:
		return "failure"
	}
}
