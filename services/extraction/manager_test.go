package extraction

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sahilchouksey/icm-reconcile/database/dbtest"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/payload"
	"github.com/sahilchouksey/icm-reconcile/services/storage"
	"github.com/sahilchouksey/icm-reconcile/utils/pdfvalidation/pdftest"
)

type fakeService struct {
	mu        sync.Mutex
	submitted []SubmitRequest
	submitErr error
	statuses  map[string]RemoteStatus
	statusErr error
	results   map[string][]byte
	calls     int
}

func newFakeService() *fakeService {
	return &fakeService{statuses: map[string]RemoteStatus{}, results: map[string][]byte{}}
}

func (f *fakeService) Submit(_ context.Context, req SubmitRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return nil
}

func (f *fakeService) Status(_ context.Context, jobID string) (*RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st, ok := f.statuses[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return &st, nil
}

func (f *fakeService) Result(_ context.Context, jobID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results[jobID], nil
}

func (f *fakeService) report(jobID string, status model.ExtractionStatus, method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = RemoteStatus{JobID: jobID, Status: status, Method: method}
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var fileSeq int64

type env struct {
	db      *gorm.DB
	svc     *fakeService
	files   *storage.MemoryStore
	bus     *MemoryBus
	manager *Manager
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{
		db:    dbtest.Open(t),
		svc:   newFakeService(),
		files: storage.NewMemoryStore(),
		bus:   NewMemoryBus(),
	}
	e.manager = NewManager(e.db, e.svc, e.files, e.bus, Options{Concurrency: 2})

	var seq int64
	e.manager.newJobID = func() string { return fmt.Sprintf("job-%d", atomic.AddInt64(&seq, 1)) }
	return e
}

func (e *env) document(t *testing.T, status model.ExtractionStatus, content []byte) model.Document {
	t.Helper()
	key := fmt.Sprintf("sheets/%d.pdf", atomic.AddInt64(&fileSeq, 1))
	_, err := e.files.Upload(context.Background(), key, content, "application/pdf")
	require.NoError(t, err)

	doc := model.Document{
		FileName:               "sheet.pdf",
		MimeType:               "application/pdf",
		StorageKey:             key,
		ScoresExtractionStatus: status,
	}
	require.NoError(t, e.db.Create(&doc).Error)
	return doc
}

func (e *env) reload(t *testing.T, id uint) model.Document {
	t.Helper()
	var doc model.Document
	require.NoError(t, e.db.First(&doc, id).Error)
	return doc
}

func TestSubmitAcceptsAndRejectsPerDocument(t *testing.T) {
	e := setup(t)
	events, cancel, err := e.bus.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	kicks := 0
	e.manager.OnSubmit(func() { kicks++ })

	fresh := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	busy := e.document(t, model.ExtractionStatusQueued, pdftest.Build(1))
	broken := e.document(t, model.ExtractionStatusPending, []byte("not a pdf"))
	failed := e.document(t, model.ExtractionStatusError, pdftest.Build(1))

	res, err := e.manager.Submit(context.Background(), []uint{fresh.ID, busy.ID, 999, broken.ID, failed.ID, fresh.ID})
	require.NoError(t, err)

	assert.Equal(t, 2, res.QueuedCount)
	assert.Equal(t, 3, res.RejectedCount)
	assert.Equal(t, []uint{fresh.ID, failed.ID}, []uint{res.Queued[0].DocumentID, res.Queued[1].DocumentID})

	reasons := map[uint]string{}
	for _, r := range res.Rejected {
		reasons[r.DocumentID] = r.Reason
	}
	assert.Equal(t, ReasonInFlight, reasons[busy.ID])
	assert.Equal(t, ReasonNotFound, reasons[999])
	assert.Equal(t, ReasonInvalidFile, reasons[broken.ID])

	got := e.reload(t, fresh.ID)
	assert.Equal(t, model.ExtractionStatusQueued, got.ScoresExtractionStatus)
	assert.Equal(t, res.Queued[0].JobID, got.ScoresExtractionJobID)
	assert.Equal(t, model.ExtractionStatusPending, e.reload(t, broken.ID).ScoresExtractionStatus)

	assert.Len(t, e.svc.submitted, 2)
	assert.Equal(t, 1, kicks)

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, model.ExtractionStatusQueued, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("expected a queued event")
		}
	}
}

func TestSubmitServiceUnavailableLeavesStatus(t *testing.T) {
	e := setup(t)
	e.svc.submitErr = fmt.Errorf("%w: connection refused", model.ErrTransient)

	doc := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	res, err := e.manager.Submit(context.Background(), []uint{doc.ID})
	require.NoError(t, err)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, ReasonUnavailable, res.Rejected[0].Reason)
	assert.True(t, res.Rejected[0].Transient)

	got := e.reload(t, doc.ID)
	assert.Equal(t, model.ExtractionStatusPending, got.ScoresExtractionStatus)
	assert.Empty(t, got.ScoresExtractionJobID)
}

func TestRefreshThroughToSuccess(t *testing.T) {
	e := setup(t)
	doc := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	res, err := e.manager.Submit(context.Background(), []uint{doc.ID})
	require.NoError(t, err)
	jobID := res.Queued[0].JobID

	e.svc.report(jobID, model.ExtractionStatusProcessing, "")
	st, err := e.manager.Refresh(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionStatusProcessing, st.Status)

	e.svc.results[jobID] = []byte(`{"candidates":[{"index_number":"12345","name":"Jane Doe","score":"78"}]}`)
	e.svc.report(jobID, model.ExtractionStatusSuccess, "vision")
	st, err = e.manager.Refresh(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, model.ExtractionStatusSuccess, st.Status)
	assert.Equal(t, []string{"vision"}, st.Methods)
	assert.Equal(t, 1, st.RowCount)
	assert.NotNil(t, st.ExtractedAt)

	got := e.reload(t, doc.ID)
	rows := payload.Normalize(got.ScoresExtractionData)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jane Doe", *rows[0].CandidateName)

	has, err := e.manager.HasOutstanding(context.Background())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRefreshEmptyPayloadBecomesError(t *testing.T) {
	e := setup(t)
	doc := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	res, err := e.manager.Submit(context.Background(), []uint{doc.ID})
	require.NoError(t, err)
	jobID := res.Queued[0].JobID

	e.svc.results[jobID] = []byte(`{"tables":[]}`)
	e.svc.report(jobID, model.ExtractionStatusSuccess, "")

	st, err := e.manager.Refresh(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionStatusError, st.Status)
	assert.Equal(t, payload.ErrNoRows.Error(), st.Error)
	assert.Nil(t, e.reload(t, doc.ID).ScoresExtractedAt)
}

func TestRefreshTransientLeavesStatus(t *testing.T) {
	e := setup(t)
	doc := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	_, err := e.manager.Submit(context.Background(), []uint{doc.ID})
	require.NoError(t, err)

	e.svc.statusErr = fmt.Errorf("%w: timeout", model.ErrTransient)
	_, err = e.manager.Refresh(context.Background(), doc.ID)
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.Equal(t, model.ExtractionStatusQueued, e.reload(t, doc.ID).ScoresExtractionStatus)

	has, err := e.manager.HasOutstanding(context.Background())
	require.NoError(t, err)
	assert.True(t, has)

	n, err := e.manager.RefreshOutstanding(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetStatusHasNoSideEffects(t *testing.T) {
	e := setup(t)
	doc := e.document(t, model.ExtractionStatusQueued, pdftest.Build(1))

	st, err := e.manager.GetStatus(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionStatusQueued, st.Status)
	assert.Equal(t, []string{}, st.Methods)
	assert.Zero(t, e.svc.callCount())

	_, err = e.manager.GetStatus(context.Background(), 12345)
	assert.ErrorIs(t, err, model.ErrDocumentNotFound)
}

func TestCallbacks(t *testing.T) {
	e := setup(t)
	doc := e.document(t, model.ExtractionStatusPending, pdftest.Build(1))
	res, err := e.manager.Submit(context.Background(), []uint{doc.ID})
	require.NoError(t, err)
	jobID := res.Queued[0].JobID

	t.Run("stale job is ignored", func(t *testing.T) {
		_, err := e.manager.HandleCallback(context.Background(), Callback{JobID: "old", DocumentID: doc.ID, Status: model.ExtractionStatusError})
		assert.ErrorIs(t, err, ErrStaleJob)
		assert.Equal(t, model.ExtractionStatusQueued, e.reload(t, doc.ID).ScoresExtractionStatus)
	})

	t.Run("failure is recorded", func(t *testing.T) {
		st, err := e.manager.HandleCallback(context.Background(), Callback{JobID: jobID, DocumentID: doc.ID, Status: model.ExtractionStatusError, Error: "unreadable scan"})
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionStatusError, st.Status)
		assert.Equal(t, "unreadable scan", st.Error)
	})

	t.Run("late duplicate keeps terminal state", func(t *testing.T) {
		st, err := e.manager.HandleCallback(context.Background(), Callback{JobID: jobID, DocumentID: doc.ID, Status: model.ExtractionStatusProcessing})
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionStatusError, st.Status)
	})

	t.Run("resubmission starts a new job", func(t *testing.T) {
		res, err := e.manager.Submit(context.Background(), []uint{doc.ID})
		require.NoError(t, err)
		require.Equal(t, 1, res.QueuedCount)
		assert.NotEqual(t, jobID, res.Queued[0].JobID)

		got := e.reload(t, doc.ID)
		assert.Equal(t, model.ExtractionStatusQueued, got.ScoresExtractionStatus)
		assert.Empty(t, got.ScoresExtractionError)
	})
}

func TestListOutstandingAndStale(t *testing.T) {
	e := setup(t)
	queued := e.document(t, model.ExtractionStatusQueued, pdftest.Build(1))
	processing := e.document(t, model.ExtractionStatusProcessing, pdftest.Build(1))
	e.document(t, model.ExtractionStatusSuccess, pdftest.Build(1))

	jobs, err := e.manager.ListOutstanding(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, queued.ID, jobs[0].DocumentID)
	assert.Equal(t, processing.ID, jobs[1].DocumentID)

	stale, err := e.manager.StaleJobs(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)

	e.manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	stale, err = e.manager.StaleJobs(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Len(t, stale, 2)
}
