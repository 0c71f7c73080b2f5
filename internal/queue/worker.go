package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/pkg/retry"
)

// Deliverer executes one delivery against a pre-existing publication
// record. Implemented by the orchestrator.
type Deliverer interface {
	// Deliver re-runs the single-target publish flow for the record.
	// An error return means the attempt could not complete and the job
	// should be retried.
	Deliver(ctx context.Context, publicationID string) (*models.Publication, error)

	// FailDelivery force-fails the record once the job's retry budget is
	// exhausted, so it is never left stuck mid-flight.
	FailDelivery(ctx context.Context, publicationID, reason string) error
}

// WorkerConfig controls the polling worker pool.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	Backoff      retry.Config
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  4,
		PollInterval: 2 * time.Second,
		BatchSize:    16,
		Backoff:      retry.DeliveryConfig(),
	}
}

// Worker polls the job table for due deliveries and executes them on a
// bounded goroutine pool. Claiming is a conditional update keyed on the
// queued status, so multiple worker processes can share one table.
type Worker struct {
	db        *gorm.DB
	logger    *zap.Logger
	deliverer Deliverer
	config    WorkerConfig
	ticker    *time.Ticker
	slots     chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewWorker(db *gorm.DB, logger *zap.Logger, deliverer Deliverer, config WorkerConfig) *Worker {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.BatchSize < 1 {
		config.BatchSize = 16
	}
	return &Worker{
		db:        db,
		logger:    logger,
		deliverer: deliverer,
		config:    config,
		slots:     make(chan struct{}, config.Concurrency),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.ticker = time.NewTicker(w.config.PollInterval)

	go func() {
		defer close(w.doneCh)
		w.logger.Info("Starting delivery worker",
			zap.Int("concurrency", w.config.Concurrency),
			zap.Duration("poll_interval", w.config.PollInterval))

		for {
			select {
			case <-w.ticker.C:
				w.poll(ctx)
			case <-w.stopCh:
				w.logger.Info("Delivery worker stopped")
				return
			case <-ctx.Done():
				w.logger.Info("Delivery worker context cancelled")
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)
	<-w.doneCh

	// Drain in-flight deliveries
	for i := 0; i < w.config.Concurrency; i++ {
		w.slots <- struct{}{}
	}
	w.logger.Info("Delivery worker shutdown completed")
}

// poll claims due jobs and dispatches them onto the pool.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.dueJobs(ctx)
	if err != nil {
		w.logger.Error("Failed to load due delivery jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		claimed, err := w.claim(ctx, job)
		if err != nil {
			w.logger.Error("Failed to claim delivery job",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			// Another worker got there first
			continue
		}

		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func(job *models.DeliveryJob) {
			defer func() { <-w.slots }()
			w.process(ctx, job)
		}(job)
	}
}

func (w *Worker) dueJobs(ctx context.Context) ([]*models.DeliveryJob, error) {
	var jobs []*models.DeliveryJob
	err := w.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", models.JobQueued, time.Now().UTC()).
		Order("next_run_at").
		Limit(w.config.BatchSize).
		Find(&jobs).Error
	return jobs, err
}

// claim transitions the job queued -> running; the conditional write keeps
// two pollers from running the same job.
func (w *Worker) claim(ctx context.Context, job *models.DeliveryJob) (bool, error) {
	now := time.Now().UTC()
	result := w.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobQueued).
		Updates(map[string]interface{}{
			"status":     models.JobRunning,
			"started_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	job.Attempts++
	return true, nil
}

// RunJob executes one claimed job to completion. Exposed for tests and for
// single-shot draining.
func (w *Worker) RunJob(ctx context.Context, job *models.DeliveryJob) {
	w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job *models.DeliveryJob) {
	_, err := w.deliverer.Deliver(ctx, job.PublicationID)
	if err == nil {
		w.finish(ctx, job, models.JobDone, "")
		return
	}

	w.logger.Warn("Delivery job attempt failed",
		zap.String("job_id", job.ID),
		zap.String("publication_id", job.PublicationID),
		zap.Int("attempt", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.Error(err))

	if job.Attempts >= job.MaxAttempts {
		w.finish(ctx, job, models.JobDead, err.Error())

		reason := fmt.Sprintf("delivery could not be completed after %d attempts: %v", job.Attempts, err)
		if failErr := w.deliverer.FailDelivery(ctx, job.PublicationID, reason); failErr != nil {
			w.logger.Error("Failed to mark publication failed for dead job",
				zap.String("job_id", job.ID),
				zap.String("publication_id", job.PublicationID),
				zap.Error(failErr))
		}
		return
	}

	// Requeue with backoff
	nextRun := time.Now().UTC().Add(w.config.Backoff.DelayFor(job.Attempts))
	updateErr := w.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":      models.JobQueued,
			"next_run_at": nextRun,
			"last_error":  err.Error(),
		}).Error
	if updateErr != nil {
		w.logger.Error("Failed to requeue delivery job",
			zap.String("job_id", job.ID),
			zap.Error(updateErr))
	}
}

func (w *Worker) finish(ctx context.Context, job *models.DeliveryJob, status, lastError string) {
	err := w.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
	if err != nil {
		w.logger.Error("Failed to update delivery job status",
			zap.String("job_id", job.ID),
			zap.String("status", status),
			zap.Error(err))
	}
}
