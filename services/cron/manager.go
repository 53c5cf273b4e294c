package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/icm-reconcile/model"
	"github.com/sahilchouksey/icm-reconcile/services/extraction"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StaleSource lists extraction jobs that stopped making progress
type StaleSource interface {
	StaleJobs(ctx context.Context, olderThan time.Duration) ([]extraction.JobStatus, error)
}

// Kicker re-arms the extraction poller
type Kicker interface {
	Kick()
}

// Options configures the scheduled jobs
type Options struct {
	StaleAfter      time.Duration
	SweepSchedule   string        // six-field spec, seconds first
	LogRetention    time.Duration // how long cron_job_logs rows are kept
	CleanupSchedule string
}

const (
	JobStaleSweep  = "stale_extraction_sweep"
	JobCleanupLogs = "cleanup_cron_logs"
	defaultCleanup = "0 0 2 * * *"
	defaultRetain  = 30 * 24 * time.Hour
	jobRunTimeout  = 5 * time.Minute
)

// CronManager runs the background jobs that keep extraction moving when no
// webhook or client traffic arrives
type CronManager struct {
	cron   *cron.Cron
	db     *gorm.DB
	stale  StaleSource
	poller Kicker
	opts   Options
	log    *zap.SugaredLogger
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, stale StaleSource, poller Kicker, opts Options) *CronManager {
	if opts.CleanupSchedule == "" {
		opts.CleanupSchedule = defaultCleanup
	}
	if opts.LogRetention <= 0 {
		opts.LogRetention = defaultRetain
	}

	return &CronManager{
		// seconds precision
		cron:   cron.New(cron.WithSeconds()),
		db:     db,
		stale:  stale,
		poller: poller,
		opts:   opts,
		log:    applog.Named("cron"),
	}
}

// Start registers all jobs and starts the scheduler
func (m *CronManager) Start() error {
	if err := m.registerJobs(); err != nil {
		return err
	}
	m.cron.Start()
	m.log.Infow("cron jobs started", "entries", len(m.cron.Entries()))
	return nil
}

// Stop waits for running jobs to finish
func (m *CronManager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron jobs stopped")
}

func (m *CronManager) registerJobs() error {
	if _, err := m.cron.AddFunc(m.opts.SweepSchedule, func() { m.run(JobStaleSweep, m.SweepStaleJobs) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", m.opts.SweepSchedule, err)
	}
	if _, err := m.cron.AddFunc(m.opts.CleanupSchedule, func() { m.run(JobCleanupLogs, m.CleanupLogs) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", m.opts.CleanupSchedule, err)
	}
	return nil
}

// run wraps a job with a timeout and a cron_job_logs row
func (m *CronManager) run(name string, job func(ctx context.Context) (string, map[string]interface{}, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
	defer cancel()

	entry := m.logJobStart(name)
	message, meta, err := job(ctx)
	if err != nil {
		m.logJobError(entry, err)
		return
	}
	m.logJobComplete(entry, message, meta)
}

// SweepStaleJobs reports queued or processing jobs that have not moved for
// StaleAfter and re-arms the poller so they get refreshed
func (m *CronManager) SweepStaleJobs(ctx context.Context) (string, map[string]interface{}, error) {
	jobs, err := m.stale.StaleJobs(ctx, m.opts.StaleAfter)
	if err != nil {
		return "", nil, err
	}
	if len(jobs) == 0 {
		return "no stale jobs", nil, nil
	}

	ids := make([]uint, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.DocumentID)
		m.log.Warnw("extraction job looks stale",
			"document_id", j.DocumentID,
			"job_id", j.JobID,
			"status", j.Status,
			"updated_at", j.UpdatedAt,
		)
	}
	m.poller.Kick()

	return fmt.Sprintf("%d stale jobs, poller kicked", len(jobs)), map[string]interface{}{"document_ids": ids}, nil
}

// CleanupLogs drops cron_job_logs rows older than the retention period
func (m *CronManager) CleanupLogs(ctx context.Context) (string, map[string]interface{}, error) {
	cutoff := time.Now().Add(-m.opts.LogRetention)
	res := m.db.WithContext(ctx).Where("started_at < ?", cutoff).Delete(&model.CronJobLog{})
	if res.Error != nil {
		return "", nil, fmt.Errorf("failed to delete old cron logs: %w", res.Error)
	}
	return fmt.Sprintf("deleted %d log rows", res.RowsAffected), nil, nil
}

func (m *CronManager) logJobStart(name string) *model.CronJobLog {
	m.log.Debugw("job starting", "job", name)

	entry := &model.CronJobLog{
		JobName:   name,
		Status:    model.CronJobStatusRunning,
		StartedAt: time.Now(),
		Metadata:  datatypes.JSON("{}"),
	}
	if err := m.db.Create(entry).Error; err != nil {
		m.log.Errorw("failed to record job start", "job", name, "error", err)
	}
	return entry
}

func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string, meta map[string]interface{}) {
	m.log.Infow("job completed", "job", entry.JobName, "message", message)

	now := time.Now()
	updates := map[string]interface{}{
		"status":       model.CronJobStatusCompleted,
		"completed_at": now,
		"duration":     now.Sub(entry.StartedAt).Milliseconds(),
		"message":      message,
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			updates["metadata"] = datatypes.JSON(raw)
		}
	}
	m.finish(entry, updates)
}

func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	m.log.Errorw("job failed", "job", entry.JobName, "error", err)

	now := time.Now()
	m.finish(entry, map[string]interface{}{
		"status":       model.CronJobStatusFailed,
		"completed_at": now,
		"duration":     now.Sub(entry.StartedAt).Milliseconds(),
		"error_msg":    err.Error(),
	})
}

func (m *CronManager) finish(entry *model.CronJobLog, updates map[string]interface{}) {
	if entry.ID == 0 {
		return
	}
	if err := m.db.Model(&model.CronJobLog{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
		m.log.Errorw("failed to record job result", "job", entry.JobName, "error", err)
	}
}
