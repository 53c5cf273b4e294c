package extraction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/payload"
	"github.com/sahilchouksey/icm-reconcile/services/storage"
	"github.com/sahilchouksey/icm-reconcile/utils/pdfvalidation"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrStaleJob means a report names a job that is no longer the document's current job
var ErrStaleJob = errors.New("extraction job is no longer current")

// Rejection reasons returned by Submit
const (
	ReasonNotFound    = "document not found"
	ReasonInFlight    = "extraction already in progress"
	ReasonNoFile      = "document has no stored sheet file"
	ReasonInvalidFile = "invalid sheet file"
	ReasonUnavailable = "extraction service unavailable"
	ReasonRejected    = "rejected by extraction service"
	ReasonConflict    = "document status changed concurrently"
)

// FileStore returns the bytes of a stored sheet
type FileStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Options tune the manager
type Options struct {
	CallbackURL string
	Concurrency int
	Limits      pdfvalidation.PDFLimits
}

// Manager owns the extraction job of every document
type Manager struct {
	db      *gorm.DB
	service Service
	files   FileStore
	bus     Bus
	opts    Options

	newJobID func() string
	now      func() time.Time

	hooksMu  sync.RWMutex
	onSubmit []func()
}

// NewManager creates a new extraction job manager
func NewManager(db *gorm.DB, service Service, files FileStore, bus Bus, opts Options) *Manager {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Limits.MaxPages == 0 {
		opts.Limits = pdfvalidation.SheetLimits
	}
	if bus == nil {
		bus = NewMemoryBus()
	}
	return &Manager{
		db:       db,
		service:  service,
		files:    files,
		bus:      bus,
		opts:     opts,
		newJobID: uuid.NewString,
		now:      time.Now,
	}
}

// Bus returns the bus events are published on
func (m *Manager) Bus() Bus {
	return m.bus
}

// OnSubmit registers a hook run after a submission queued at least one job
func (m *Manager) OnSubmit(hook func()) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onSubmit = append(m.onSubmit, hook)
}

// QueuedJob is an accepted submission
type QueuedJob struct {
	DocumentID uint   `json:"document_id"`
	JobID      string `json:"job_id"`
}

// Rejection is a refused submission
type Rejection struct {
	DocumentID uint   `json:"document_id"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
	Transient  bool   `json:"transient,omitempty"`
}

// SubmitResult reports a batch submission
type SubmitResult struct {
	QueuedCount   int         `json:"queued_count"`
	RejectedCount int         `json:"rejected_count"`
	Queued        []QueuedJob `json:"queued"`
	Rejected      []Rejection `json:"rejected"`
}

// JobStatus is the read model of a document's extraction job
type JobStatus struct {
	DocumentID  uint                   `json:"document_id"`
	JobID       string                 `json:"job_id,omitempty"`
	Status      model.ExtractionStatus `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Methods     []string               `json:"methods"`
	ExtractedAt *time.Time             `json:"extracted_at,omitempty"`
	RowCount    int                    `json:"row_count"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func statusOf(doc *model.Document) *JobStatus {
	st := &JobStatus{
		DocumentID:  doc.ID,
		JobID:       doc.ScoresExtractionJobID,
		Status:      doc.ScoresExtractionStatus,
		Error:       doc.ScoresExtractionError,
		Methods:     []string(doc.ScoresExtractionMethods),
		ExtractedAt: doc.ScoresExtractedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if st.Status == "" {
		st.Status = model.ExtractionStatusPending
	}
	if st.Methods == nil {
		st.Methods = []string{}
	}
	if st.Status == model.ExtractionStatusSuccess {
		st.RowCount = len(payload.Normalize(doc.ScoresExtractionData))
	}
	return st
}

// Submit queues documents for score extraction. Each document is accepted or rejected
// on its own; the error return is reserved for failures that affect the whole batch.
func (m *Manager) Submit(ctx context.Context, documentIDs []uint) (*SubmitResult, error) {
	ids := dedupe(documentIDs)

	var docs []model.Document
	if len(ids) > 0 {
		if err := m.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
			return nil, fmt.Errorf("failed to load documents: %w", err)
		}
	}
	byID := make(map[uint]*model.Document, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	result := &SubmitResult{Queued: []QueuedJob{}, Rejected: []Rejection{}}
	var mu sync.Mutex
	reject := func(r Rejection) {
		mu.Lock()
		result.Rejected = append(result.Rejected, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for _, id := range ids {
		doc, ok := byID[id]
		if !ok {
			reject(Rejection{DocumentID: id, Reason: ReasonNotFound})
			continue
		}
		if doc.ScoresExtractionStatus.IsInFlight() {
			reject(Rejection{DocumentID: id, Reason: ReasonInFlight})
			continue
		}

		g.Go(func() error {
			job, rej := m.submitOne(gctx, doc)
			if rej != nil {
				reject(*rej)
				return nil
			}
			mu.Lock()
			result.Queued = append(result.Queued, *job)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Queued, func(i, j int) bool { return result.Queued[i].DocumentID < result.Queued[j].DocumentID })
	sort.Slice(result.Rejected, func(i, j int) bool { return result.Rejected[i].DocumentID < result.Rejected[j].DocumentID })
	result.QueuedCount = len(result.Queued)
	result.RejectedCount = len(result.Rejected)

	logger().Infow("extraction submission", "requested", len(ids), "queued", result.QueuedCount, "rejected", result.RejectedCount)

	if result.QueuedCount > 0 {
		m.hooksMu.RLock()
		for _, hook := range m.onSubmit {
			hook()
		}
		m.hooksMu.RUnlock()
	}
	return result, nil
}

// submitOne validates, claims and posts one document
func (m *Manager) submitOne(ctx context.Context, doc *model.Document) (*QueuedJob, *Rejection) {
	rej := func(reason string, err error) *Rejection {
		r := &Rejection{DocumentID: doc.ID, Reason: reason}
		if err != nil {
			r.Detail = err.Error()
			r.Transient = errors.Is(err, model.ErrTransient)
		}
		return r
	}

	if doc.StorageKey == "" || m.files == nil {
		return nil, rej(ReasonNoFile, nil)
	}
	content, err := m.files.Download(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, rej(ReasonNoFile, err)
		}
		return nil, rej(ReasonUnavailable, err)
	}

	if v := pdfvalidation.ValidateSheet(content, doc.FileName, doc.MimeType, m.opts.Limits); !v.Valid {
		return nil, rej(ReasonInvalidFile, errors.New(v.Error))
	}

	from := doc.ScoresExtractionStatus
	if from == "" {
		from = model.ExtractionStatusPending
	}
	next, err := Reduce(from, EventSubmit)
	if err != nil {
		return nil, rej(ReasonInFlight, err)
	}

	// claim the document before posting so an early callback finds the new job id
	jobID := m.newJobID()
	claimed, err := m.claim(ctx, doc, from, next, jobID)
	if err != nil {
		return nil, rej(ReasonUnavailable, fmt.Errorf("%w: %v", model.ErrTransient, err))
	}
	if !claimed {
		return nil, rej(ReasonConflict, nil)
	}

	err = m.service.Submit(ctx, SubmitRequest{
		JobID:       jobID,
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		ContentType: doc.MimeType,
		Content:     content,
		CallbackURL: m.opts.CallbackURL,
	})
	if err != nil {
		m.release(doc, from, jobID)
		if errors.Is(err, model.ErrTransient) {
			return nil, rej(ReasonUnavailable, err)
		}
		return nil, rej(ReasonRejected, err)
	}

	m.publish(ctx, model.JobEvent{DocumentID: doc.ID, JobID: jobID, From: from, Status: next, At: m.now()})
	return &QueuedJob{DocumentID: doc.ID, JobID: jobID}, nil
}

// claim moves the document to queued under a new job id if nobody changed it since it was read
func (m *Manager) claim(ctx context.Context, doc *model.Document, from, next model.ExtractionStatus, jobID string) (bool, error) {
	res := m.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND scores_extraction_status = ? AND scores_extraction_job_id = ?", doc.ID, from, doc.ScoresExtractionJobID).
		Updates(map[string]interface{}{
			"scores_extraction_status": next,
			"scores_extraction_job_id": jobID,
			"scores_extraction_error":  "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// release undoes a claim whose post never reached the service, leaving the document as it was
func (m *Manager) release(doc *model.Document, from model.ExtractionStatus, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND scores_extraction_job_id = ? AND scores_extraction_status = ?", doc.ID, jobID, model.ExtractionStatusQueued).
		Updates(map[string]interface{}{
			"scores_extraction_status": from,
			"scores_extraction_job_id": doc.ScoresExtractionJobID,
			"scores_extraction_error":  doc.ScoresExtractionError,
		}).Error
	if err != nil {
		logger().Errorw("failed to release extraction claim", "document_id", doc.ID, "job_id", jobID, "error", err)
	}
}

// GetStatus reads a document's job state without contacting the service
func (m *Manager) GetStatus(ctx context.Context, documentID uint) (*JobStatus, error) {
	doc, err := m.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return statusOf(doc), nil
}

// Refresh asks the service for the job's state and applies it. An unreachable service
// yields ErrTransient and leaves the document untouched; nothing is retried here.
func (m *Manager) Refresh(ctx context.Context, documentID uint) (*JobStatus, error) {
	doc, err := m.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.ScoresExtractionStatus.IsInFlight() {
		return statusOf(doc), nil
	}

	remote, err := m.service.Status(ctx, doc.ScoresExtractionJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh document %d: %w", documentID, err)
	}
	if remote.JobID == "" {
		remote.JobID = doc.ScoresExtractionJobID
	}
	return m.apply(ctx, doc, *remote)
}

// Callback is the service's push notification for a job
type Callback struct {
	JobID      string                 `json:"job_id" validate:"required"`
	DocumentID uint                   `json:"document_id" validate:"required"`
	Status     model.ExtractionStatus `json:"status" validate:"required"`
	Error      string                 `json:"error"`
	Method     string                 `json:"method"`
}

// HandleCallback applies a pushed status. Reports for a superseded job return ErrStaleJob.
func (m *Manager) HandleCallback(ctx context.Context, cb Callback) (*JobStatus, error) {
	if !cb.Status.IsValid() {
		return nil, fmt.Errorf("unknown extraction status %q", cb.Status)
	}
	doc, err := m.load(ctx, cb.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.ScoresExtractionJobID != cb.JobID {
		logger().Infow("ignoring callback for stale job", "document_id", doc.ID, "job_id", cb.JobID, "current_job_id", doc.ScoresExtractionJobID)
		return statusOf(doc), ErrStaleJob
	}
	return m.apply(ctx, doc, RemoteStatus{JobID: cb.JobID, Status: cb.Status, Error: cb.Error, Method: cb.Method})
}

// apply moves a document according to a remote status. Successful jobs only become
// success once their payload normalizes to at least one row.
func (m *Manager) apply(ctx context.Context, doc *model.Document, remote RemoteStatus) (*JobStatus, error) {
	if remote.JobID != doc.ScoresExtractionJobID {
		return statusOf(doc), ErrStaleJob
	}

	ev, ok := eventFor(remote.Status)
	if !ok || (ev == EventStart && doc.ScoresExtractionStatus == model.ExtractionStatusProcessing) {
		return statusOf(doc), nil
	}

	updates := map[string]interface{}{}
	errMsg := remote.Error

	if ev == EventComplete {
		raw, err := m.service.Result(ctx, remote.JobID)
		switch {
		case errors.Is(err, model.ErrTransient):
			return nil, fmt.Errorf("failed to fetch result of job %s: %w", remote.JobID, err)
		case err != nil:
			ev, errMsg = EventFail, fmt.Sprintf("failed to fetch extraction result: %v", err)
		case payload.Validate(raw) != nil:
			ev, errMsg = EventFail, payload.ErrNoRows.Error()
		default:
			now := m.now()
			updates["scores_extraction_data"] = datatypes.JSON(raw)
			updates["scores_extracted_at"] = &now
			errMsg = ""
		}
	}
	if ev == EventFail && errMsg == "" {
		errMsg = "extraction failed"
	}

	next, err := Reduce(doc.ScoresExtractionStatus, ev)
	if err != nil {
		// duplicate or late report for a job that already moved on
		logger().Debugw("ignoring report", "document_id", doc.ID, "job_id", remote.JobID, "error", err)
		return statusOf(doc), nil
	}

	updates["scores_extraction_status"] = next
	updates["scores_extraction_error"] = errMsg
	if remote.Method != "" {
		methods := append(append([]string{}, doc.ScoresExtractionMethods...), remote.Method)
		updates["scores_extraction_methods"] = datatypes.JSONSlice[string](methods)
	}

	res := m.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND scores_extraction_status = ? AND scores_extraction_job_id = ?", doc.ID, doc.ScoresExtractionStatus, doc.ScoresExtractionJobID).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update extraction status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// someone else moved it first; report what is stored now
		return m.GetStatus(ctx, doc.ID)
	}

	from := doc.ScoresExtractionStatus
	logger().Infow("extraction status changed", "document_id", doc.ID, "job_id", remote.JobID, "from", from, "to", next)
	m.publish(ctx, model.JobEvent{DocumentID: doc.ID, JobID: remote.JobID, From: from, Status: next, Error: errMsg, At: m.now()})

	return m.GetStatus(ctx, doc.ID)
}

// ListOutstanding returns documents whose job is queued or processing
func (m *Manager) ListOutstanding(ctx context.Context) ([]JobStatus, error) {
	var docs []model.Document
	if err := m.db.WithContext(ctx).
		Where("scores_extraction_status IN ?", []model.ExtractionStatus{model.ExtractionStatusQueued, model.ExtractionStatusProcessing}).
		Order("id").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list outstanding jobs: %w", err)
	}

	out := make([]JobStatus, 0, len(docs))
	for i := range docs {
		out = append(out, *statusOf(&docs[i]))
	}
	return out, nil
}

// HasOutstanding reports whether any document is waiting on the service
func (m *Manager) HasOutstanding(ctx context.Context) (bool, error) {
	var statuses []model.ExtractionStatus
	if err := m.db.WithContext(ctx).Model(&model.Document{}).
		Distinct().
		Pluck("scores_extraction_status", &statuses).Error; err != nil {
		return false, fmt.Errorf("failed to read extraction statuses: %w", err)
	}
	return HasOutstandingJobs(statuses), nil
}

// RefreshOutstanding refreshes every outstanding job once. Transient failures are
// logged and left for the next round.
func (m *Manager) RefreshOutstanding(ctx context.Context) (refreshed int, err error) {
	jobs, err := m.ListOutstanding(ctx)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := m.Refresh(ctx, job.DocumentID); err != nil {
			logger().Warnw("refresh failed", "document_id", job.DocumentID, "job_id", job.JobID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// StaleJobs lists outstanding jobs not updated since before olderThan
func (m *Manager) StaleJobs(ctx context.Context, olderThan time.Duration) ([]JobStatus, error) {
	var docs []model.Document
	if err := m.db.WithContext(ctx).
		Where("scores_extraction_status IN ? AND updated_at < ?",
			[]model.ExtractionStatus{model.ExtractionStatusQueued, model.ExtractionStatusProcessing},
			m.now().Add(-olderThan)).
		Order("id").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	out := make([]JobStatus, 0, len(docs))
	for i := range docs {
		out = append(out, *statusOf(&docs[i]))
	}
	return out, nil
}

func (m *Manager) load(ctx context.Context, documentID uint) (*model.Document, error) {
	var doc model.Document
	if err := m.db.WithContext(ctx).First(&doc, documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", model.ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

func (m *Manager) publish(ctx context.Context, ev model.JobEvent) {
	if err := m.bus.Publish(ctx, ev); err != nil {
		logger().Warnw("failed to publish job event", "document_id", ev.DocumentID, "error", err)
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
