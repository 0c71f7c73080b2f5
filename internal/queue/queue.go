// Package queue provides the asynchronous delivery path: a database-backed
// job queue with at-least-once semantics and the worker pool that drains it.
package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

// Payload identifies one queued delivery.
type Payload struct {
	ContentID     string `json:"content_id"`
	IntegrationID string `json:"integration_id"`
	PublicationID string `json:"publication_id"`
}

// Queue accepts delivery jobs. Enqueued jobs are delivered at least once;
// redelivery after a crash is expected and the delivery path is idempotent.
type Queue interface {
	Enqueue(ctx context.Context, payload Payload) error
}

// GormQueue stores jobs in the same database as the publication records, so
// the pending record and its job share durability.
type GormQueue struct {
	db          *gorm.DB
	logger      *zap.Logger
	maxAttempts int
}

func NewGormQueue(db *gorm.DB, logger *zap.Logger, maxAttempts int) *GormQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &GormQueue{
		db:          db,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

func (q *GormQueue) Enqueue(ctx context.Context, payload Payload) error {
	job := &models.DeliveryJob{
		ContentID:     payload.ContentID,
		IntegrationID: payload.IntegrationID,
		PublicationID: payload.PublicationID,
		Status:        models.JobQueued,
		MaxAttempts:   q.maxAttempts,
		NextRunAt:     time.Now().UTC(),
	}

	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to enqueue delivery job: %w", err)
	}

	q.logger.Debug("Delivery job enqueued",
		zap.String("job_id", job.ID),
		zap.String("content_id", payload.ContentID),
		zap.String("integration_id", payload.IntegrationID))
	return nil
}
