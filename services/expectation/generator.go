package expectation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/scoring"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"gorm.io/gorm"
)

// Generator produces the canonical set of sheets an exam should have
type Generator struct {
	db              *gorm.DB
	defaultPerSheet int
}

// NewGenerator creates a generator. defaultPerSheet applies to exams without their own sheet size.
func NewGenerator(db *gorm.DB, defaultPerSheet int) *Generator {
	return &Generator{
		db:              db,
		defaultPerSheet: defaultPerSheet,
	}
}

// SubjectConfig is the part of an exam subject that shapes its sheets
type SubjectConfig struct {
	SubjectID   uint               `json:"subject_id"`
	SubjectType model.SubjectType  `json:"subject_type"`
	TestTypes   []sheetid.TestType `json:"test_types"`
}

// OfferedSubject is a subject taken by at least one candidate of a school
type OfferedSubject struct {
	SubjectID uint `json:"subject_id"`
	Roll      int  `json:"roll"`
}

// SchoolEntry lists the subjects offered at one school
type SchoolEntry struct {
	SchoolID uint             `json:"school_id"`
	Subjects []OfferedSubject `json:"subjects"`
}

// ExamSnapshot is everything Expand needs, read in one go
type ExamSnapshot struct {
	ExamID   uint                   `json:"exam_id"`
	Rule     SheetRule              `json:"rule"`
	Schools  []SchoolEntry          `json:"schools"`
	Subjects map[uint]SubjectConfig `json:"subjects"`
}

// SubjectType returns the type of a configured subject
func (s *ExamSnapshot) SubjectType(subjectID uint) (model.SubjectType, bool) {
	cfg, ok := s.Subjects[subjectID]
	return cfg.SubjectType, ok
}

// Generate loads the exam and expands it into the expected sheet set
func (g *Generator) Generate(ctx context.Context, examID uint, filters Filters) (sheetid.Set, error) {
	snap, err := g.LoadSnapshot(ctx, examID)
	if err != nil {
		return nil, err
	}
	return Expand(snap, filters), nil
}

type rollRow struct {
	SchoolID  uint
	SubjectID uint
	Roll      int
}

// LoadSnapshot reads schools, rolls and subject configuration of an exam
func (g *Generator) LoadSnapshot(ctx context.Context, examID uint) (*ExamSnapshot, error) {
	db := g.db.WithContext(ctx)

	var exam model.Exam
	if err := db.First(&exam, examID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: exam %d does not exist", model.ErrInvalidExam, examID)
		}
		return nil, fmt.Errorf("failed to load exam: %w", err)
	}

	snap := &ExamSnapshot{
		ExamID: exam.ID,
		Rule: SheetRule{
			SeriesCount:        exam.SeriesCount,
			CandidatesPerSheet: exam.CandidatesPerSheet,
		}.Normalized(g.defaultPerSheet),
		Subjects: map[uint]SubjectConfig{},
	}

	var examSubjects []model.ExamSubject
	if err := db.Preload("Subject").
		Where("exam_id = ?", examID).
		Order("subject_id").
		Find(&examSubjects).Error; err != nil {
		return nil, fmt.Errorf("failed to load exam subjects: %w", err)
	}
	for i := range examSubjects {
		es := &examSubjects[i]
		snap.Subjects[es.SubjectID] = SubjectConfig{
			SubjectID:   es.SubjectID,
			SubjectType: es.Subject.SubjectType,
			TestTypes:   scoring.ConfigFromExamSubject(es).TestTypes(),
		}
	}

	var schoolIDs []uint
	if err := db.Model(&model.ExamSchool{}).
		Where("exam_id = ?", examID).
		Order("school_id").
		Pluck("school_id", &schoolIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load exam schools: %w", err)
	}

	var rolls []rollRow
	if err := db.Model(&model.SubjectRegistration{}).
		Select("candidates.school_id AS school_id, subject_registrations.subject_id AS subject_id, COUNT(DISTINCT subject_registrations.candidate_id) AS roll").
		Joins("JOIN candidates ON candidates.id = subject_registrations.candidate_id AND candidates.deleted_at IS NULL").
		Where("subject_registrations.exam_id = ?", examID).
		Group("candidates.school_id, subject_registrations.subject_id").
		Order("candidates.school_id, subject_registrations.subject_id").
		Scan(&rolls).Error; err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}

	bySchool := make(map[uint][]OfferedSubject, len(schoolIDs))
	for _, r := range rolls {
		bySchool[r.SchoolID] = append(bySchool[r.SchoolID], OfferedSubject{SubjectID: r.SubjectID, Roll: r.Roll})
	}
	for _, id := range schoolIDs {
		snap.Schools = append(snap.Schools, SchoolEntry{SchoolID: id, Subjects: bySchool[id]})
	}

	return snap, nil
}

// Expand enumerates the expected sheets of a snapshot. It is pure and deterministic.
// Schools not bound to the exam and subjects without configuration produce nothing.
func Expand(snap *ExamSnapshot, filters Filters) sheetid.Set {
	out := sheetid.NewSet()
	if snap == nil {
		return out
	}

	schools := append([]SchoolEntry(nil), snap.Schools...)
	sort.Slice(schools, func(i, j int) bool { return schools[i].SchoolID < schools[j].SchoolID })

	for _, school := range schools {
		if filters.SchoolID != nil && school.SchoolID != *filters.SchoolID {
			continue
		}
		for _, offered := range school.Subjects {
			cfg, ok := snap.Subjects[offered.SubjectID]
			if !ok || offered.Roll <= 0 {
				continue
			}
			if filters.SubjectID != nil && offered.SubjectID != *filters.SubjectID {
				continue
			}
			if filters.SubjectType != nil && cfg.SubjectType != *filters.SubjectType {
				continue
			}

			sizes := snap.Rule.SeriesSizes(offered.Roll)
			for _, tt := range cfg.TestTypes {
				if filters.TestType != nil && tt != *filters.TestType {
					continue
				}
				for i, n := range sizes {
					for sheet := 1; sheet <= snap.Rule.SheetsFor(n); sheet++ {
						out.Add(sheetid.SheetID{
							ExamID:      snap.ExamID,
							SchoolID:    school.SchoolID,
							SubjectID:   offered.SubjectID,
							Series:      i + 1,
							TestType:    tt,
							SheetNumber: sheet,
						})
					}
				}
			}
		}
	}
	return out
}
