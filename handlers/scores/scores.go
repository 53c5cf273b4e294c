package scores

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/icm-reconcile/handlers"
	"github.com/sahilchouksey/icm-reconcile/services/matcher"
	"github.com/sahilchouksey/icm-reconcile/services/scoring"
	"github.com/sahilchouksey/icm-reconcile/utils/response"
	"gorm.io/gorm"
)

// Applier writes a document's extracted rows onto registrations
type Applier interface {
	Apply(ctx context.Context, documentID uint) (*matcher.ApplyResult, error)
}

// ScoreHandler applies extracted scores and reports on them
type ScoreHandler struct {
	db      *gorm.DB
	applier Applier
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(db *gorm.DB, applier Applier) *ScoreHandler {
	return &ScoreHandler{
		db:      db,
		applier: applier,
	}
}

// ApplyScores handles POST /api/v1/documents/:document_id/apply-scores
func (h *ScoreHandler) ApplyScores(c *fiber.Ctx) error {
	id, err := handlers.ParamID(c, "document_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	result, err := h.applier.Apply(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}

// SubjectSummary is the score summary of one subject of an exam
type SubjectSummary struct {
	ExamID    uint `json:"exam_id"`
	SubjectID uint `json:"subject_id"`
	Total     int  `json:"total"`
	scoring.Summary
}

// ScoreSummary handles GET /api/v1/exams/:exam_id/subjects/:subject_id/score-summary
func (h *ScoreHandler) ScoreSummary(c *fiber.Ctx) error {
	examID, err := handlers.ParamID(c, "exam_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	subjectID, err := handlers.ParamID(c, "subject_id")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	ctx := c.UserContext()
	if _, err := scoring.LoadConfig(ctx, h.db, examID, subjectID); err != nil {
		return response.FromError(c, err)
	}
	totals, err := scoring.Totals(ctx, h.db, examID, subjectID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, SubjectSummary{
		ExamID:    examID,
		SubjectID: subjectID,
		Total:     len(totals),
		Summary:   scoring.Summarize(totals),
	})
}
