package scoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadConfig reads the scoring configuration of a subject within an exam
func LoadConfig(ctx context.Context, db *gorm.DB, examID, subjectID uint) (Config, error) {
	var es model.ExamSubject
	err := db.WithContext(ctx).
		Preload("GradeRanges", func(tx *gorm.DB) *gorm.DB { return tx.Order("min_score DESC") }).
		Where("exam_id = ? AND subject_id = ?", examID, subjectID).
		First(&es).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Config{}, fmt.Errorf("%w: subject %d in exam %d", model.ErrSubjectNotConfigured, subjectID, examID)
		}
		return Config{}, fmt.Errorf("failed to load subject configuration: %w", err)
	}
	return ConfigFromExamSubject(&es), nil
}

// LockRegistrations row-locks the registrations a query reads until the transaction ends.
// SQLite serializes writers on its own and has no FOR UPDATE.
func LockRegistrations(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "subject_registrations"}})
}

// Score writes one extracted cell onto a registration.
// The row is re-read under lock and only the paper's own columns plus the derived
// total and grade are written, so a concurrent write to another paper survives.
// Nothing is written when the cell is not a valid score. On success reg holds the stored row.
func Score(tx *gorm.DB, reg *model.SubjectRegistration, cfg Config, tt sheetid.TestType, raw, attend *string, documentID uint, at time.Time) error {
	var current model.SubjectRegistration
	if err := LockRegistrations(tx).First(&current, reg.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", model.ErrRegistrationNotFound, reg.ID)
		}
		return fmt.Errorf("failed to load registration %d: %w", reg.ID, err)
	}

	if err := ApplyComponent(&current, cfg, tt, ParseRaw(raw, attend)); err != nil {
		return err
	}
	current.ScoredFromDocumentID = &documentID
	current.ScoredAt = &at

	columns := append(componentColumns(tt), "total_score", "grade", "scored_from_document_id", "scored_at")
	if err := tx.Model(&current).Select(columns).Updates(&current).Error; err != nil {
		return fmt.Errorf("failed to save registration %d: %w", reg.ID, err)
	}
	*reg = current
	return nil
}

func componentColumns(tt sheetid.TestType) []string {
	switch tt {
	case sheetid.TestTypeEssay:
		return []string{"essay_raw_score", "essay_normalized", "essay_absent"}
	case sheetid.TestTypePracticals:
		return []string{"pract_raw_score", "pract_normalized", "pract_absent"}
	default:
		return []string{"obj_raw_score", "obj_normalized", "obj_absent"}
	}
}

// Totals returns the total of every registration of a subject in an exam, in id order
func Totals(ctx context.Context, db *gorm.DB, examID, subjectID uint) ([]*float64, error) {
	var values []sql.NullFloat64
	if err := db.WithContext(ctx).Model(&model.SubjectRegistration{}).
		Where("exam_id = ? AND subject_id = ?", examID, subjectID).
		Order("id").
		Pluck("total_score", &values).Error; err != nil {
		return nil, fmt.Errorf("failed to load totals: %w", err)
	}

	totals := make([]*float64, len(values))
	for i, v := range values {
		if v.Valid {
			f := v.Float64
			totals[i] = &f
		}
	}
	return totals, nil
}
