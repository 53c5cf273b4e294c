// Package unmatched keeps extracted rows that could not be bound to a registration
// until someone resolves or ignores them.
package unmatched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/scoring"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/gorm"
)

// Filter narrows List; zero values match everything
type Filter struct {
	Status     *model.UnmatchedStatus
	DocumentID *uint
}

// Store is the UnmatchedRecordStore
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// List returns records oldest first
func (s *Store) List(ctx context.Context, f Filter) ([]model.UnmatchedExtractionRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.UnmatchedExtractionRecord{})
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.DocumentID != nil {
		q = q.Where("document_id = ?", *f.DocumentID)
	}

	records := []model.UnmatchedExtractionRecord{}
	if err := q.Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list unmatched records: %w", err)
	}
	return records, nil
}

// Get loads one record
func (s *Store) Get(ctx context.Context, id uint) (*model.UnmatchedExtractionRecord, error) {
	return get(s.db.WithContext(ctx), id)
}

// Counts returns the number of records per status
func (s *Store) Counts(ctx context.Context) ([]model.UnmatchedRecordsCount, error) {
	counts := []model.UnmatchedRecordsCount{}
	err := s.db.WithContext(ctx).Model(&model.UnmatchedExtractionRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unmatched records: %w", err)
	}
	return counts, nil
}

// Record inserts rec inside tx unless a pending record already exists for the same
// document, sn and index number. It reports whether a row was created.
func Record(tx *gorm.DB, rec *model.UnmatchedExtractionRecord) (bool, error) {
	q := tx.Model(&model.UnmatchedExtractionRecord{}).
		Where("document_id = ? AND sn = ? AND status = ?", rec.DocumentID, rec.SN, model.UnmatchedStatusPending)
	if rec.IndexNumber == nil {
		q = q.Where("index_number IS NULL")
	} else {
		q = q.Where("index_number = ?", *rec.IndexNumber)
	}

	var existing model.UnmatchedExtractionRecord
	err := q.Order("id").Limit(1).Find(&existing).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up unmatched record: %w", err)
	}
	if existing.ID != 0 {
		*rec = existing
		return false, nil
	}

	rec.Status = model.UnmatchedStatusPending
	if err := tx.Create(rec).Error; err != nil {
		return false, fmt.Errorf("failed to create unmatched record: %w", err)
	}
	return true, nil
}

// Resolve binds a pending record to a registration and writes its score the same way
// the matcher does. On any failure nothing is written.
func (s *Store) Resolve(ctx context.Context, id, registrationID uint) (*model.UnmatchedExtractionRecord, error) {
	var out *model.UnmatchedExtractionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := pending(rec); err != nil {
			return err
		}

		sheet, err := sheetid.Decode(rec.SheetID)
		if err != nil {
			return err
		}

		var reg model.SubjectRegistration
		if err := scoring.LockRegistrations(tx).First(&reg, registrationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", model.ErrRegistrationNotFound, registrationID)
			}
			return fmt.Errorf("failed to load registration: %w", err)
		}
		if reg.ExamID != sheet.ExamID || reg.SubjectID != sheet.SubjectID {
			return fmt.Errorf("%w: registration %d, sheet %s", model.ErrRegistrationMismatch, reg.ID, rec.SheetID)
		}

		at := s.now()
		if err := s.claim(tx, rec, map[string]interface{}{
			"status":                   model.UnmatchedStatusResolved,
			"resolved_registration_id": reg.ID,
			"resolved_at":              at,
		}); err != nil {
			return err
		}

		cfg, err := scoring.LoadConfig(ctx, tx, sheet.ExamID, sheet.SubjectID)
		if err != nil {
			return err
		}
		if err := scoring.Score(tx, &reg, cfg, sheet.TestType, rec.Score, rec.AttendMarker, rec.DocumentID, at); err != nil {
			return err
		}

		out, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	applog.Infow("unmatched record resolved", "record_id", id, "registration_id", registrationID)
	return out, nil
}

// Ignore closes a pending record without touching any score
func (s *Store) Ignore(ctx context.Context, id uint, note string) (*model.UnmatchedExtractionRecord, error) {
	var out *model.UnmatchedExtractionRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := pending(rec); err != nil {
			return err
		}
		if err := s.claim(tx, rec, map[string]interface{}{
			"status": model.UnmatchedStatusIgnored,
			"note":   note,
		}); err != nil {
			return err
		}
		out, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	applog.Infow("unmatched record ignored", "record_id", id)
	return out, nil
}

// claim moves rec out of pending only if it is still pending
func (s *Store) claim(tx *gorm.DB, rec *model.UnmatchedExtractionRecord, updates map[string]interface{}) error {
	res := tx.Model(&model.UnmatchedExtractionRecord{}).
		Where("id = ? AND status = ?", rec.ID, model.UnmatchedStatusPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update unmatched record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := get(tx, rec.ID)
		if err != nil {
			return err
		}
		if err := pending(current); err != nil {
			return err
		}
		return fmt.Errorf("unmatched record %d changed concurrently", rec.ID)
	}
	return nil
}

func get(db *gorm.DB, id uint) (*model.UnmatchedExtractionRecord, error) {
	var rec model.UnmatchedExtractionRecord
	if err := db.First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", model.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to load unmatched record: %w", err)
	}
	return &rec, nil
}

func pending(rec *model.UnmatchedExtractionRecord) error {
	switch rec.Status {
	case model.UnmatchedStatusResolved:
		return fmt.Errorf("%w: %d", model.ErrAlreadyResolved, rec.ID)
	case model.UnmatchedStatusIgnored:
		return fmt.Errorf("%w: %d", model.ErrAlreadyIgnored, rec.ID)
	}
	return nil
}
