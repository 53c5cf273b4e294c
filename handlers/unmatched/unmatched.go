package unmatched

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/handlers"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/unmatched"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
	"github.com/sahilchouksey/icm-reconcile/utils/validation"
)

// UnmatchedHandler lets operators dispose of unmatched extraction rows
type UnmatchedHandler struct {
	store     *unmatched.Store
	validator *validation.Validator
}

// NewUnmatchedHandler creates a new unmatched record handler
func NewUnmatchedHandler(store *unmatched.Store) *UnmatchedHandler {
	return &UnmatchedHandler{
		store:     store,
		validator: validation.NewValidator(),
	}
}

// ListQuery holds the accepted query parameters of List
type ListQuery struct {
	Status string `validate:"omitempty,oneof=pending resolved ignored"`
}

// ResolveRequest represents the request body for resolving a record
type ResolveRequest struct {
	RegistrationID uint `json:"registration_id" validate:"required,gt=0"`
}

// IgnoreRequest represents the request body for ignoring a record
type IgnoreRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// List handles GET /api/v1/unmatched
func (h *UnmatchedHandler) List(c *fiber.Ctx) error {
	q := ListQuery{Status: c.Query("status")}
	if err := h.validator.ValidateStruct(q); err != nil {
		return response.ValidationError(c, err)
	}
	documentID, err := handlers.QueryID(c, "document_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	filter := unmatched.Filter{DocumentID: documentID}
	if q.Status != "" {
		status := model.UnmatchedStatus(q.Status)
		filter.Status = &status
	}

	records, err := h.store.List(c.UserContext(), filter)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"total":   len(records),
		"records": records,
	})
}

// Get handles GET /api/v1/unmatched/:id
func (h *UnmatchedHandler) Get(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	rec, err := h.store.Get(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, rec)
}

// Counts handles GET /api/v1/unmatched/counts
func (h *UnmatchedHandler) Counts(c *fiber.Ctx) error {
	counts, err := h.store.Counts(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, counts)
}

// Resolve handles POST /api/v1/unmatched/:id/resolve
func (h *UnmatchedHandler) Resolve(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	rec, err := h.store.Resolve(c.UserContext(), id, req.RegistrationID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Record resolved", rec)
}

// Ignore handles POST /api/v1/unmatched/:id/ignore
func (h *UnmatchedHandler) Ignore(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var req IgnoreRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	rec, err := h.store.Ignore(c.UserContext(), id, validation.SanitizeString(req.Note))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Record ignored", rec)
}
