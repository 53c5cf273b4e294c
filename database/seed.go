package database

import (
	"errors"
	"fmt"

	"github.com/sahilchouksey/icm-reconcile/model"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/gorm"
)

// Demo exam identity; seeding is skipped when it already exists
const (
	DemoExamName = "BECE"
	DemoExamYear = 2025
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

type demoSubject struct {
	subject          model.Subject
	obj, essay, prac *float64
}

type demoSchool struct {
	school     model.School
	candidates int
	electives  bool // whether candidates also take the elective subject
}

func ptr(v float64) *float64 { return &v }

// SeedAll creates the demo exam in one transaction
func (s *Seeder) SeedAll() error {
	var existing model.Exam
	err := s.db.Where("name = ? AND year = ?", DemoExamName, DemoExamYear).First(&existing).Error
	if err == nil {
		applog.Infow("demo exam already exists, skipping seed", "exam_id", existing.ID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up demo exam: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		exam := model.Exam{Name: DemoExamName, Year: DemoExamYear, SeriesCount: 2}
		if err := tx.Create(&exam).Error; err != nil {
			return fmt.Errorf("failed to seed exam: %w", err)
		}

		subjects := []demoSubject{
			{subject: model.Subject{Name: "Mathematics", Code: "MATH", SubjectType: model.SubjectTypeCore}, obj: ptr(40), essay: ptr(60)},
			{subject: model.Subject{Name: "English Language", Code: "ENG", SubjectType: model.SubjectTypeCore}, obj: ptr(40), essay: ptr(60)},
			{subject: model.Subject{Name: "Information Technology", Code: "ICT", SubjectType: model.SubjectTypeElective}, obj: ptr(40), prac: ptr(60)},
		}
		for i := range subjects {
			if err := s.seedSubject(tx, exam.ID, &subjects[i]); err != nil {
				return err
			}
		}

		schools := []demoSchool{
			{school: model.School{Name: "Accra Academy", Code: "AA01"}, candidates: 45, electives: true},
			{school: model.School{Name: "Achimota School", Code: "AS02"}, candidates: 23},
		}
		for i := range schools {
			if err := s.seedSchool(tx, exam.ID, &schools[i], subjects); err != nil {
				return err
			}
		}

		applog.Infow("demo exam seeded", "exam_id", exam.ID, "schools", len(schools), "subjects", len(subjects))
		return nil
	})
}

func (s *Seeder) seedSubject(tx *gorm.DB, examID uint, d *demoSubject) error {
	if err := tx.Where(model.Subject{Code: d.subject.Code}).FirstOrCreate(&d.subject).Error; err != nil {
		return fmt.Errorf("failed to seed subject %s: %w", d.subject.Code, err)
	}

	es := model.ExamSubject{
		ExamID:        examID,
		SubjectID:     d.subject.ID,
		ObjMaxScore:   d.obj,
		EssayMaxScore: d.essay,
		PractMaxScore: d.prac,
		GradeRanges: []model.GradeRange{
			{MinScore: 80, MaxScore: 100, Grade: "1"},
			{MinScore: 70, MaxScore: 79.99, Grade: "2"},
			{MinScore: 60, MaxScore: 69.99, Grade: "3"},
			{MinScore: 50, MaxScore: 59.99, Grade: "4"},
			{MinScore: 40, MaxScore: 49.99, Grade: "5"},
			{MinScore: 0, MaxScore: 39.99, Grade: "9"},
		},
	}
	if err := tx.Create(&es).Error; err != nil {
		return fmt.Errorf("failed to seed exam subject %s: %w", d.subject.Code, err)
	}
	return nil
}

func (s *Seeder) seedSchool(tx *gorm.DB, examID uint, d *demoSchool, subjects []demoSubject) error {
	if err := tx.Where(model.School{Code: d.school.Code}).FirstOrCreate(&d.school).Error; err != nil {
		return fmt.Errorf("failed to seed school %s: %w", d.school.Code, err)
	}
	if err := tx.Create(&model.ExamSchool{ExamID: examID, SchoolID: d.school.ID}).Error; err != nil {
		return fmt.Errorf("failed to bind school %s: %w", d.school.Code, err)
	}

	for i := 1; i <= d.candidates; i++ {
		c := model.Candidate{
			ExamID:      examID,
			SchoolID:    d.school.ID,
			IndexNumber: fmt.Sprintf("%s%04d", d.school.Code, i),
			Name:        fmt.Sprintf("Candidate %d", i),
		}
		if err := tx.Create(&c).Error; err != nil {
			return fmt.Errorf("failed to seed candidate: %w", err)
		}

		for _, subj := range subjects {
			if subj.subject.SubjectType == model.SubjectTypeElective && !d.electives {
				continue
			}
			reg := model.SubjectRegistration{ExamID: examID, SubjectID: subj.subject.ID, CandidateID: c.ID}
			if err := tx.Create(&reg).Error; err != nil {
				return fmt.Errorf("failed to seed registration: %w", err)
			}
		}
	}
	return nil
}

// RunSeeds is a convenience function to run all seeds
func RunSeeds(db *gorm.DB) error {
	seeder := NewSeeder(db)
	return seeder.SeedAll()
}
