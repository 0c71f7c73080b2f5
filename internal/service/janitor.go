package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

// Janitor handles periodic cleanup sweeps: it fails publications abandoned
// mid-flight, requeues delivery jobs orphaned by a worker crash, and prunes
// old monitoring data.
type Janitor struct {
	db             *gorm.DB
	logger         *zap.Logger
	orchestrator   *Orchestrator
	monitoring     *MonitoringService
	stuckThreshold time.Duration
	retentionDays  int
	ticker         *time.Ticker
	done           chan bool
}

func NewJanitor(db *gorm.DB, logger *zap.Logger, orchestrator *Orchestrator, monitoring *MonitoringService, interval, stuckThreshold time.Duration, retentionDays int) *Janitor {
	return &Janitor{
		db:             db,
		logger:         logger,
		orchestrator:   orchestrator,
		monitoring:     monitoring,
		stuckThreshold: stuckThreshold,
		retentionDays:  retentionDays,
		ticker:         time.NewTicker(interval),
		done:           make(chan bool),
	}
}

// Start begins the periodic sweep process
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		j.logger.Info("Starting janitor",
			zap.Duration("stuck_threshold", j.stuckThreshold))
		for {
			select {
			case <-j.done:
				j.logger.Info("Janitor stopped")
				return
			case <-ctx.Done():
				j.logger.Info("Janitor stopped due to context cancellation")
				return
			case <-j.ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

// Stop stops the janitor
func (j *Janitor) Stop() {
	j.ticker.Stop()
	close(j.done)
}

// sweep performs one full cleanup pass
func (j *Janitor) sweep(ctx context.Context) {
	j.logger.Debug("Running janitor sweep")

	if err := j.failStuckPublications(ctx); err != nil {
		j.logger.Error("Failed to sweep stuck publications", zap.Error(err))
	}

	if err := j.requeueStaleJobs(ctx); err != nil {
		j.logger.Error("Failed to requeue stale delivery jobs", zap.Error(err))
	}

	if err := j.monitoring.CleanupOldData(j.retentionDays); err != nil {
		j.logger.Error("Failed to cleanup old monitoring data", zap.Error(err))
	}
}

// failStuckPublications resolves records abandoned in the publishing state,
// e.g. by a process crash between the in-flight write and the terminal one.
func (j *Janitor) failStuckPublications(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.stuckThreshold)

	var stuck []*models.Publication
	err := j.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PublicationPublishing, cutoff).
		Find(&stuck).Error
	if err != nil {
		return err
	}

	for _, record := range stuck {
		j.logger.Warn("Failing publication stuck in publishing state",
			zap.String("publication_id", record.ID),
			zap.Time("updated_at", record.UpdatedAt))
		if err := j.orchestrator.FailDelivery(ctx, record.ID, "delivery attempt abandoned in flight"); err != nil {
			j.logger.Error("Failed to fail stuck publication",
				zap.String("publication_id", record.ID),
				zap.Error(err))
		}
	}

	return nil
}

// requeueStaleJobs returns crashed workers' claimed jobs to the queue. The
// delivery path is idempotent, so rerunning a job that partially completed
// only overwrites the record again.
func (j *Janitor) requeueStaleJobs(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.stuckThreshold)

	result := j.db.WithContext(ctx).Model(&models.DeliveryJob{}).
		Where("status = ? AND started_at < ?", models.JobRunning, cutoff).
		Updates(map[string]interface{}{
			"status":      models.JobQueued,
			"next_run_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		j.logger.Warn("Requeued stale delivery jobs",
			zap.Int64("count", result.RowsAffected))
	}
	return nil
}
