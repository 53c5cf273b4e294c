package matcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sahilchouksey/icm-reconcile/database/dbtest"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/sheetid"
	"github.com/sahilchouksey/icm-reconcile/utils/cache"
)

func sheetFor(fx *dbtest.Fixture, tt sheetid.TestType) string {
	return sheetid.SheetID{
		ExamID:      fx.Exam.ID,
		SchoolID:    fx.School.ID,
		SubjectID:   fx.Subject.ID,
		Series:      1,
		TestType:    tt,
		SheetNumber: 1,
	}.String()
}

func createDocument(t *testing.T, db *gorm.DB, token string, status model.ExtractionStatus, data string) model.Document {
	t.Helper()
	doc := model.Document{
		FileName:               "icm.pdf",
		ExtractedID:            &token,
		ScoresExtractionStatus: status,
		ScoresExtractionData:   datatypes.JSON(data),
	}
	require.NoError(t, db.Create(&doc).Error)
	return doc
}

func pendingRecords(t *testing.T, db *gorm.DB, documentID uint) []model.UnmatchedExtractionRecord {
	t.Helper()
	var records []model.UnmatchedExtractionRecord
	require.NoError(t, db.Where("document_id = ? AND status = ?", documentID, model.UnmatchedStatusPending).Order("sn").Find(&records).Error)
	return records
}

func TestApplySingleMatchUpdatesScore(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 2)
	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"sn":1,"index_number":"`+dbtest.IndexNumber(0)+`","name":"Jane Doe","score":"36"}]}`)

	res, err := NewMatcher(db, nil).Apply(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 0, res.UnmatchedCount)
	assert.Equal(t, 0, res.FailedCount)

	var reg model.SubjectRegistration
	require.NoError(t, db.First(&reg, fx.Regs[0].ID).Error)
	assert.Equal(t, 36.0, *reg.ObjRawScore)
	assert.Equal(t, 90.0, *reg.ObjNormalized)
	assert.Equal(t, 90.0, *reg.TotalScore)
	assert.Equal(t, "1", *reg.Grade)
	assert.Equal(t, doc.ID, *reg.ScoredFromDocumentID)
	assert.Empty(t, pendingRecords(t, db, doc.ID))
}

func TestApplyNoMatchCreatesPendingRecord(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"sn":4,"index_number":"99999","candidate_name":"Nobody","score":"12"}]}`)

	res, err := NewMatcher(db, nil).Apply(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 1, res.UnmatchedCount)

	records := pendingRecords(t, db, doc.ID)
	require.Len(t, records, 1)
	assert.Equal(t, model.UnmatchedReasonNoMatch, records[0].Reason)
	assert.Equal(t, 4, records[0].SN)
	assert.Equal(t, "99999", *records[0].IndexNumber)
	assert.Equal(t, "Nobody", *records[0].CandidateName)
	assert.Equal(t, "12", *records[0].Score)
	assert.Equal(t, sheetFor(fx, sheetid.TestTypeObjectives), records[0].SheetID)
}

func TestApplyAmbiguousAndInvalidRows(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 2)

	twin := model.Candidate{ExamID: fx.Exam.ID, SchoolID: fx.School.ID, IndexNumber: dbtest.IndexNumber(1), Name: "Twin"}
	require.NoError(t, db.Create(&twin).Error)
	require.NoError(t, db.Create(&model.SubjectRegistration{ExamID: fx.Exam.ID, SubjectID: fx.Subject.ID, CandidateID: twin.ID}).Error)

	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess, `{"tables":[{"rows":[
		{"index_number":"`+dbtest.IndexNumber(0)+`","score":"x"},
		{"index_number":"`+dbtest.IndexNumber(1)+`","score":"20"},
		{"score":"20"}
	]}]}`)

	res, err := NewMatcher(db, nil).Apply(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, 3, res.UnmatchedCount)

	records := pendingRecords(t, db, doc.ID)
	require.Len(t, records, 3)
	assert.Equal(t, model.UnmatchedReasonInvalidScore, records[0].Reason)
	assert.Equal(t, model.UnmatchedReasonAmbiguous, records[1].Reason)
	assert.Equal(t, 2, records[1].MatchCount)
	assert.Equal(t, model.UnmatchedReasonNoMatch, records[2].Reason)
	assert.Nil(t, records[2].IndexNumber)

	var reg model.SubjectRegistration
	require.NoError(t, db.First(&reg, fx.Regs[0].ID).Error)
	assert.Nil(t, reg.ObjRawScore)
}

func TestApplyAbsentMarker(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"index_number":"`+dbtest.IndexNumber(0)+`","score":"","attendance":"ABS"}]}`)

	res, err := NewMatcher(db, nil).Apply(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)

	var reg model.SubjectRegistration
	require.NoError(t, db.First(&reg, fx.Regs[0].ID).Error)
	assert.True(t, reg.ObjAbsent)
	assert.Nil(t, reg.ObjRawScore)
	assert.True(t, reg.IsAbsent())
	assert.Nil(t, reg.Grade)
}

func TestApplyTwiceDoesNotDuplicateRecords(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"index_number":"`+dbtest.IndexNumber(0)+`","score":"30"},{"index_number":"55555","score":"10"}]}`)

	m := NewMatcher(db, nil)
	for i := 0; i < 2; i++ {
		res, err := m.Apply(context.Background(), doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.UpdatedCount)
		assert.Equal(t, 1, res.UnmatchedCount)
	}
	assert.Len(t, pendingRecords(t, db, doc.ID), 1)
}

func TestApplyValidation(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	m := NewMatcher(db, nil)
	ctx := context.Background()
	rows := `{"candidates":[{"index_number":"1","score":"1"}]}`

	_, err := m.Apply(ctx, 4242)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)

	queued := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusQueued, rows)
	_, err = m.Apply(ctx, queued.ID)
	assert.ErrorIs(t, err, model.ErrNotExtracted)

	garbled := createDocument(t, db, "ICM-1-x", model.ExtractionStatusSuccess, rows)
	_, err = m.Apply(ctx, garbled.ID)
	assert.ErrorIs(t, err, model.ErrMalformedID)

	essay := createDocument(t, db, sheetFor(fx, sheetid.TestTypeEssay), model.ExtractionStatusSuccess, rows)
	_, err = m.Apply(ctx, essay.ID)
	assert.ErrorIs(t, err, model.ErrSubjectNotConfigured)
}

// countingLocker stands in for Redis and tracks how many holders a key has
type countingLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	maxSeen int32
	active  int32
}

func (l *countingLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true
	n := atomic.AddInt32(&l.active, 1)
	if n > atomic.LoadInt32(&l.maxSeen) {
		atomic.StoreInt32(&l.maxSeen, n)
	}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		atomic.AddInt32(&l.active, -1)
		l.mu.Unlock()
	}, nil
}

func TestConcurrentApplySameDocument(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	doc := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"index_number":"`+dbtest.IndexNumber(0)+`","score":"30"},{"index_number":"55555","score":"10"}]}`)

	locker := &countingLocker{held: map[string]bool{}}
	m := NewMatcher(db, locker)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Apply(context.Background(), doc.ID)
			if assert.NoError(t, err) {
				assert.Equal(t, 1, res.UpdatedCount)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&locker.maxSeen))
	assert.Len(t, pendingRecords(t, db, doc.ID), 1)
}

func TestApplyObjectiveAndEssayDocumentsKeepBothPapers(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db, 1)
	require.NoError(t, db.Model(&fx.ExamSubject).Update("essay_max_score", 60).Error)

	index := dbtest.IndexNumber(0)
	obj := createDocument(t, db, sheetFor(fx, sheetid.TestTypeObjectives), model.ExtractionStatusSuccess,
		`{"candidates":[{"index_number":"`+index+`","score":"30"}]}`)
	essay := createDocument(t, db, sheetFor(fx, sheetid.TestTypeEssay), model.ExtractionStatusSuccess,
		`{"candidates":[{"index_number":"`+index+`","score":"45"}]}`)

	m := NewMatcher(db, nil)
	var wg sync.WaitGroup
	for _, id := range []uint{obj.ID, essay.ID} {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			res, err := m.Apply(context.Background(), id)
			if assert.NoError(t, err) {
				assert.Equal(t, 1, res.UpdatedCount)
			}
		}(id)
	}
	wg.Wait()

	var reg model.SubjectRegistration
	require.NoError(t, db.First(&reg, fx.Regs[0].ID).Error)
	require.NotNil(t, reg.ObjRawScore)
	require.NotNil(t, reg.EssayRawScore)
	assert.Equal(t, 30.0, *reg.ObjRawScore)
	assert.Equal(t, 45.0, *reg.EssayRawScore)
	require.NotNil(t, reg.TotalScore)
	assert.Equal(t, 75.0, *reg.TotalScore)
	assert.Equal(t, "2", *reg.Grade)
	assert.Empty(t, pendingRecords(t, db, obj.ID))
	assert.Empty(t, pendingRecords(t, db, essay.ID))
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.lock(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := k.lock(context.Background(), 8)
	require.NoError(t, err)
	other()

	unlock()
	again, err := k.lock(context.Background(), 7)
	require.NoError(t, err)
	again()
	assert.Empty(t, k.slots)
}
