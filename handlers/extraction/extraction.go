package extraction

import (
	"bufio"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/handlers"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/extraction"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
	"github.com/sahilchouksey/icm-reconcile/utils/sse"
	"github.com/sahilchouksey/icm-reconcile/utils/validation"
)

// JobManager is the part of extraction.Manager the handler drives
type JobManager interface {
	Submit(ctx context.Context, documentIDs []uint) (*extraction.SubmitResult, error)
	GetStatus(ctx context.Context, documentID uint) (*extraction.JobStatus, error)
	Refresh(ctx context.Context, documentID uint) (*extraction.JobStatus, error)
	ListOutstanding(ctx context.Context) ([]extraction.JobStatus, error)
	HandleCallback(ctx context.Context, cb extraction.Callback) (*extraction.JobStatus, error)
	Bus() extraction.Bus
}

const keepAliveInterval = 15 * time.Second

// ExtractionHandler exposes score extraction jobs
type ExtractionHandler struct {
	manager   JobManager
	validator *validation.Validator
}

// NewExtractionHandler creates a new extraction handler
func NewExtractionHandler(manager JobManager) *ExtractionHandler {
	return &ExtractionHandler{
		manager:   manager,
		validator: validation.NewValidator(),
	}
}

// SubmitRequest represents the request body for submitting documents
type SubmitRequest struct {
	DocumentIDs []uint `json:"document_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

// Submit handles POST /api/v1/extraction/submit
func (h *ExtractionHandler) Submit(c *fiber.Ctx) error {
	var req SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.manager.Submit(c.UserContext(), req.DocumentIDs)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, strconv.Itoa(result.QueuedCount)+" queued, "+strconv.Itoa(result.RejectedCount)+" rejected", result)
}

// Status handles GET /api/v1/extraction/documents/:document_id/status
func (h *ExtractionHandler) Status(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "document_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	status, err := h.manager.GetStatus(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, status)
}

// Refresh handles POST /api/v1/extraction/documents/:document_id/refresh
func (h *ExtractionHandler) Refresh(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "document_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	status, err := h.manager.Refresh(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, status)
}

// Outstanding handles GET /api/v1/extraction/outstanding
func (h *ExtractionHandler) Outstanding(c *fiber.Ctx) error {
	jobs, err := h.manager.ListOutstanding(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"outstanding": len(jobs) > 0,
		"jobs":        jobs,
	})
}

// Callback handles POST /api/v1/extraction/callback, the extraction service's webhook
func (h *ExtractionHandler) Callback(c *fiber.Ctx) error {
	var cb extraction.Callback
	if err := c.BodyParser(&cb); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(cb); err != nil {
		return response.ValidationError(c, err)
	}
	if !cb.Status.IsValid() {
		return response.ValidationError(c, errors.New("status must be one of pending queued processing success error"))
	}

	status, err := h.manager.HandleCallback(c.UserContext(), cb)
	if errors.Is(err, extraction.ErrStaleJob) {
		return c.Status(fiber.StatusAccepted).JSON(response.Response{
			Success: true,
			Message: "Callback ignored: job is no longer current",
			Data:    status,
		})
	}
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, status)
}

// Events handles GET /api/v1/extraction/events.
// It streams a snapshot of outstanding jobs followed by every status change.
// An optional document_id query parameter narrows the stream to one document.
func (h *ExtractionHandler) Events(c *fiber.Ctx) error {
	only, err := handlers.QueryID(c, "document_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	snapshot, err := h.manager.ListOutstanding(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}

	// The fiber context is not valid inside the stream writer
	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe, err := h.manager.Bus().Subscribe(ctx)
	if err != nil {
		cancel()
		return response.FromError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()

		if err := sse.SendSnapshot(w, filterSnapshot(snapshot, only)); err != nil {
			return
		}

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if only != nil && ev.DocumentID != *only {
					continue
				}
				if err := sse.SendStatus(w, eventID(ev), ev); err != nil {
					applog.Debugw("event stream closed", "error", err)
					return
				}
			case <-keepAlive.C:
				if err := sse.SendKeepAlive(w); err != nil {
					return
				}
			}
		}
	})

	return nil
}

func filterSnapshot(jobs []extraction.JobStatus, only *uint) []extraction.JobStatus {
	if only == nil {
		return jobs
	}
	out := []extraction.JobStatus{}
	for _, j := range jobs {
		if j.DocumentID == *only {
			out = append(out, j)
		}
	}
	return out
}

func eventID(ev model.JobEvent) string {
	return strconv.FormatUint(uint64(ev.DocumentID), 10) + ":" + ev.JobID + ":" + string(ev.Status)
}
