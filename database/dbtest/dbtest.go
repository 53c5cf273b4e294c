// Package dbtest opens migrated in-memory SQLite databases for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh migrated database that lives until the test ends.
// A single connection keeps every query on the same in-memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Fixture is a small exam used across package tests
type Fixture struct {
	Exam        model.Exam
	School      model.School
	Subject     model.Subject
	ExamSubject model.ExamSubject
	Candidates  []model.Candidate
	Regs        []model.SubjectRegistration
}

func ptr(v float64) *float64 { return &v }

// Seed creates one exam with one school and one CORE subject carrying only an
// objectives paper out of 40, and registers n candidates numbered 1000+i.
func Seed(t testing.TB, db *gorm.DB, n int) *Fixture {
	t.Helper()

	f := &Fixture{
		Exam:    model.Exam{Name: "BECE", Year: 2025, SeriesCount: 1},
		School:  model.School{Name: "Accra Academy", Code: "AA01"},
		Subject: model.Subject{Name: "Mathematics", Code: "MATH", SubjectType: model.SubjectTypeCore},
	}
	require.NoError(t, db.Create(&f.Exam).Error)
	require.NoError(t, db.Create(&f.School).Error)
	require.NoError(t, db.Create(&f.Subject).Error)
	require.NoError(t, db.Create(&model.ExamSchool{ExamID: f.Exam.ID, SchoolID: f.School.ID}).Error)

	f.ExamSubject = model.ExamSubject{
		ExamID:      f.Exam.ID,
		SubjectID:   f.Subject.ID,
		ObjMaxScore: ptr(40),
		GradeRanges: []model.GradeRange{
			{MinScore: 80, MaxScore: 100, Grade: "1"},
			{MinScore: 50, MaxScore: 79.99, Grade: "2"},
			{MinScore: 0, MaxScore: 49.99, Grade: "9"},
		},
	}
	require.NoError(t, db.Create(&f.ExamSubject).Error)

	for i := 0; i < n; i++ {
		c := model.Candidate{
			ExamID:      f.Exam.ID,
			SchoolID:    f.School.ID,
			IndexNumber: IndexNumber(i),
			Name:        "Candidate " + IndexNumber(i),
		}
		require.NoError(t, db.Create(&c).Error)
		f.Candidates = append(f.Candidates, c)

		r := model.SubjectRegistration{ExamID: f.Exam.ID, SubjectID: f.Subject.ID, CandidateID: c.ID}
		require.NoError(t, db.Create(&r).Error)
		f.Regs = append(f.Regs, r)
	}
	return f
}

// IndexNumber is the index number Seed gives the i-th candidate
func IndexNumber(i int) string {
	return fmt.Sprintf("10%03d", i)
}
