package sheets

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/handlers"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
	"github.com/sahilchouksey/icm-reconcile/services/reconcile"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
)

// SheetHandler serves expected-sheet and reconciliation queries
type SheetHandler struct {
	generator  *expectation.Generator
	reconciler *reconcile.Reconciler
}

// NewSheetHandler creates a new sheet handler
func NewSheetHandler(generator *expectation.Generator, reconciler *reconcile.Reconciler) *SheetHandler {
	return &SheetHandler{
		generator:  generator,
		reconciler: reconciler,
	}
}

// ExpectedSheets handles GET /api/v1/exams/:exam_id/sheets/expected
func (h *SheetHandler) ExpectedSheets(c *fiber.Ctx) error {
	examID, err := handlers.ParamID(c, "exam_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	filters, err := handlers.ParseFilters(c)
	if err != nil {
		return response.ValidationError(c, err)
	}

	set, err := h.generator.Generate(c.UserContext(), examID, filters)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, fiber.Map{
		"exam_id": examID,
		"filters": filters,
		"total":   set.Len(),
		"sheets":  set.Tokens(),
	})
}

// CompareSheets handles GET /api/v1/exams/:exam_id/sheets/compare
func (h *SheetHandler) CompareSheets(c *fiber.Ctx) error {
	examID, err := handlers.ParamID(c, "exam_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	filters, err := handlers.ParseFilters(c)
	if err != nil {
		return response.ValidationError(c, err)
	}

	cmp, err := h.reconciler.Compare(c.UserContext(), examID, filters)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, cmp)
}

// DecodeSheet handles GET /api/v1/sheets/:token
func (h *SheetHandler) DecodeSheet(c *fiber.Ctx) error {
	id, err := sheetid.Decode(c.Params("token"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{
		"token":          id.String(),
		"sheet":          id,
		"test_type_name": id.TestType.String(),
	})
}
