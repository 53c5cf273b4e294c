package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/icm-reconcile/database"
	"github.com/sahilchouksey/icm-reconcile/database/dbtest"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/expectation"
)

func TestRunSeedsIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)

	require.NoError(t, database.RunSeeds(db))
	require.NoError(t, database.RunSeeds(db))

	var exams, candidates, regs int64
	require.NoError(t, db.Model(&model.Exam{}).Count(&exams).Error)
	require.NoError(t, db.Model(&model.Candidate{}).Count(&candidates).Error)
	require.NoError(t, db.Model(&model.SubjectRegistration{}).Count(&regs).Error)
	assert.Equal(t, int64(1), exams)
	assert.Equal(t, int64(68), candidates)
	// 45 candidates take three subjects, 23 take the two core ones
	assert.Equal(t, int64(45*3+23*2), regs)
}

func TestDemoExamExpectedSheets(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, database.RunSeeds(db))

	var exam model.Exam
	require.NoError(t, db.Where("name = ? AND year = ?", database.DemoExamName, database.DemoExamYear).First(&exam).Error)

	set, err := expectation.NewGenerator(db, 20).Generate(context.Background(), exam.ID, expectation.Filters{})
	require.NoError(t, err)

	// AA01: 45 candidates over 2 series (23 + 22) -> 2 sheets per series per paper.
	// AS02: 23 candidates over 2 series (12 + 11) -> 1 sheet per series per paper.
	// Every subject has exactly two papers.
	aa01 := 3 * 2 * 2 * 2
	as02 := 2 * 2 * 2 * 1
	assert.Equal(t, aa01+as02, set.Len())

	for _, id := range set.Sorted() {
		assert.True(t, id.TestType.IsValid())
		assert.LessOrEqual(t, id.Series, 2)
	}
}
