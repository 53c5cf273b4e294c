package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/sahilchouksey/icm-reconcile/database/dbtest"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
)

func useDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	prev := openDB
	openDB = func() (*gorm.DB, func(), error) { return db, func() {}, nil }
	t.Cleanup(func() { openDB = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	token := sheetid.SheetID{ExamID: 1, SchoolID: 2, SubjectID: 3, Series: 1, TestType: sheetid.TestTypeEssay, SheetNumber: 4}.String()

	out, err := execute(t, "decode", token, "ICM-bad")
	require.NoError(t, err)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, token, got[0]["token"])
	assert.Equal(t, "Essay", got[0]["test_type_name"])
	assert.Contains(t, got[1]["error"], "malformed")
}

func TestDecodeCommandYAML(t *testing.T) {
	out, err := execute(t, "decode", "--output", "yaml", "ICM-1-2-3-1-1-1")
	require.NoError(t, err)

	var got []map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	sheet, ok := got[0]["sheet"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, sheet["school_id"])
	assert.Equal(t, "Objectives", got[0]["test_type_name"])
}

func TestRejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "decode", "--output", "xml", "ICM-1-2-3-1-1-1")
	assert.ErrorContains(t, err, "--output")
}

func TestExpectedCommand(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 25)
	useDB(t, db)

	out, err := execute(t, "expected", "--per-sheet", "20", "1")
	require.NoError(t, err)

	var got struct {
		ExamID uint     `json:"exam_id"`
		Total  int      `json:"total"`
		Sheets []string `json:"sheets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, fx.Exam.ID, got.ExamID)
	assert.Equal(t, 2, got.Total)
	assert.Len(t, got.Sheets, 2)

	out, err = execute(t, "expected", "--per-sheet", "20", "--test-type", "2", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 0, got.Total)
}

func TestExpectedCommandErrors(t *testing.T) {
	useDB(t, dbtest.Open(t))

	_, err := execute(t, "expected", "abc")
	assert.ErrorContains(t, err, "invalid exam id")

	_, err = execute(t, "expected", "--per-sheet", "20", "--test-type", "7", "1")
	assert.Error(t, err)

	_, err = execute(t, "expected", "--per-sheet", "20", "404")
	assert.ErrorIs(t, err, model.ErrInvalidExam)
}

func TestCompareCommand(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 25)
	useDB(t, db)

	uploaded := sheetid.SheetID{
		ExamID: fx.Exam.ID, SchoolID: fx.School.ID, SubjectID: fx.Subject.ID,
		Series: 1, TestType: sheetid.TestTypeObjectives, SheetNumber: 1,
	}.String()
	require.NoError(t, db.Create(&model.Document{ExamID: &fx.Exam.ID, FileName: "a.pdf", ExtractedID: &uploaded}).Error)

	out, err := execute(t, "compare", "--per-sheet", "20", "1")
	require.NoError(t, err)

	var got struct {
		TotalExpected int      `json:"total_expected"`
		Matched       int      `json:"matched"`
		Missing       []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.TotalExpected)
	assert.Equal(t, 1, got.Matched)
	assert.Len(t, got.Missing, 1)
	assert.NotEqual(t, uploaded, got.Missing[0])
}

func TestOutstandingCommand(t *testing.T) {
	db := dbtest.Open(t)
	useDB(t, db)

	out, err := execute(t, "outstanding")
	require.NoError(t, err)
	assert.Contains(t, out, `"outstanding": false`)

	doc := model.Document{FileName: "a.pdf", ScoresExtractionStatus: model.ExtractionStatusQueued, ScoresExtractionJobID: "job-1"}
	require.NoError(t, db.Create(&doc).Error)

	out, err = execute(t, "outstanding")
	require.NoError(t, err)
	assert.Contains(t, out, `"outstanding": true`)
	assert.Contains(t, out, `"job_id": "job-1"`)
}

func TestSeedCommand(t *testing.T) {
	db := dbtest.Open(t)
	useDB(t, db)

	for i := 0; i < 2; i++ {
		out, err := execute(t, "seed")
		require.NoError(t, err)
		assert.Contains(t, out, `"exam_id"`)
	}

	var exams int64
	require.NoError(t, db.Model(&model.Exam{}).Count(&exams).Error)
	assert.Equal(t, int64(1), exams)
}
