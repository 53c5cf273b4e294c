// Package matcher binds extracted score rows to subject registrations.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/payload"
	"github.com/sahilchouksey/icm-reconcile/services/scoring"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"github.com/sahilchouksey/icm-reconcile/services/unmatched"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/gorm"
)

// Matcher is the ScoreMatcher
type Matcher struct {
	db     *gorm.DB
	local  *keyedMutex
	remote DistributedLocker
	now    func() time.Time
}

// NewMatcher creates a matcher. remote may be nil when only one replica runs.
func NewMatcher(db *gorm.DB, remote DistributedLocker) *Matcher {
	return &Matcher{
		db:     db,
		local:  newKeyedMutex(),
		remote: remote,
		now:    time.Now,
	}
}

// RowFailure is a row that could not be written or recorded
type RowFailure struct {
	SN          int     `json:"sn"`
	IndexNumber *string `json:"index_number,omitempty"`
	Error       string  `json:"error"`
}

// ApplyResult reports what happened to every row of a document
type ApplyResult struct {
	DocumentID     uint         `json:"document_id"`
	SheetID        string       `json:"sheet_id"`
	RowCount       int          `json:"row_count"`
	UpdatedCount   int          `json:"updated_count"`
	UnmatchedCount int          `json:"unmatched_count"`
	FailedCount    int          `json:"failed_count"`
	Failures       []RowFailure `json:"failures"`
}

type rowOutcome int

const (
	outcomeUpdated rowOutcome = iota
	outcomeUnmatched
)

// Apply writes the extracted rows of a document onto matching registrations.
// Rows that match no registration, or several, or carry an unusable score become
// unmatched records. Each row is committed on its own.
func (m *Matcher) Apply(ctx context.Context, documentID uint) (*ApplyResult, error) {
	unlock, err := m.lockDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := m.loadDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ScoresExtractionStatus != model.ExtractionStatusSuccess {
		return nil, fmt.Errorf("%w: document %d is %s", model.ErrNotExtracted, documentID, statusName(doc.ScoresExtractionStatus))
	}
	sheet, err := sheetid.DecodePtr(doc.ExtractedID)
	if err != nil {
		return nil, err
	}
	cfg, err := scoring.LoadConfig(ctx, m.db, sheet.ExamID, sheet.SubjectID)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured(sheet.TestType) {
		return nil, fmt.Errorf("%w: %s paper of subject %d", model.ErrSubjectNotConfigured, sheet.TestType, sheet.SubjectID)
	}

	rows := payload.Normalize(doc.ScoresExtractionData)
	result := &ApplyResult{
		DocumentID: documentID,
		SheetID:    sheet.String(),
		RowCount:   len(rows),
		Failures:   []RowFailure{},
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := m.applyRow(ctx, doc.ID, sheet, cfg, row)
		if err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, RowFailure{SN: row.SN, IndexNumber: row.IndexNumber, Error: err.Error()})
			applog.Warnw("failed to apply score row", "document_id", documentID, "sn", row.SN, "error", err)
			continue
		}
		switch outcome {
		case outcomeUpdated:
			result.UpdatedCount++
		case outcomeUnmatched:
			result.UnmatchedCount++
		}
	}

	applog.Infow("scores applied",
		"document_id", documentID,
		"sheet_id", result.SheetID,
		"rows", result.RowCount,
		"updated", result.UpdatedCount,
		"unmatched", result.UnmatchedCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (m *Matcher) applyRow(ctx context.Context, documentID uint, sheet sheetid.SheetID, cfg scoring.Config, row payload.CanonicalScoreRow) (rowOutcome, error) {
	var outcome rowOutcome

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		matches, err := candidatesFor(tx, sheet, row.IndexNumber)
		if err != nil {
			return err
		}

		if len(matches) != 1 {
			reason := model.UnmatchedReasonNoMatch
			if len(matches) > 1 {
				reason = model.UnmatchedReasonAmbiguous
			}
			outcome = outcomeUnmatched
			return record(tx, documentID, sheet, row, reason, len(matches), "")
		}

		reg := matches[0]
		err = scoring.Score(tx, &reg, cfg, sheet.TestType, row.RawScore, row.AttendMarker, documentID, m.now())
		if errors.Is(err, scoring.ErrInvalidScore) {
			outcome = outcomeUnmatched
			return record(tx, documentID, sheet, row, model.UnmatchedReasonInvalidScore, 1, err.Error())
		}
		if err != nil {
			return err
		}
		outcome = outcomeUpdated
		return nil
	})
	return outcome, err
}

// candidatesFor finds registrations of the sheet's exam and subject whose candidate
// carries exactly this index number. The rows stay locked until the row's transaction ends.
func candidatesFor(tx *gorm.DB, sheet sheetid.SheetID, indexNumber *string) ([]model.SubjectRegistration, error) {
	matches := []model.SubjectRegistration{}
	if indexNumber == nil {
		return matches, nil
	}
	err := scoring.LockRegistrations(tx).
		Joins("JOIN candidates ON candidates.id = subject_registrations.candidate_id AND candidates.deleted_at IS NULL").
		Where("subject_registrations.exam_id = ? AND subject_registrations.subject_id = ?", sheet.ExamID, sheet.SubjectID).
		Where("candidates.index_number = ?", *indexNumber).
		Order("subject_registrations.id").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to match index number: %w", err)
	}
	return matches, nil
}

func record(tx *gorm.DB, documentID uint, sheet sheetid.SheetID, row payload.CanonicalScoreRow, reason model.UnmatchedReason, matchCount int, note string) error {
	_, err := unmatched.Record(tx, &model.UnmatchedExtractionRecord{
		DocumentID:    documentID,
		SheetID:       sheet.String(),
		SN:            row.SN,
		IndexNumber:   row.IndexNumber,
		CandidateName: row.CandidateName,
		Score:         row.RawScore,
		AttendMarker:  row.AttendMarker,
		VerifyMarker:  row.VerifyMarker,
		Reason:        reason,
		MatchCount:    matchCount,
		Note:          note,
	})
	return err
}

func (m *Matcher) loadDocument(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := m.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", model.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

func statusName(s model.ExtractionStatus) string {
	if s == "" {
		return string(model.ExtractionStatusPending)
	}
	return string(s)
}
