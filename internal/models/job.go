package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryJob statuses. Queued jobs are picked up by the worker, marked
// running while a delivery is in flight, and end up done or dead.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobDead    = "dead"
)

// DeliveryJob is one queued async delivery for a (content, integration)
// pair. It lives in the same database as the publication record so the
// enqueue and the pending-record write share durability.
type DeliveryJob struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	ContentID     string     `gorm:"size:36;not null;index" json:"content_id"`
	IntegrationID string     `gorm:"size:36;not null;index" json:"integration_id"`
	PublicationID string     `gorm:"size:36;not null;index" json:"publication_id"`
	Status        string     `gorm:"size:20;not null;default:'queued';index" json:"status"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	MaxAttempts   int        `gorm:"default:3" json:"max_attempts"`
	NextRunAt     time.Time  `gorm:"not null;index" json:"next_run_at"`
	StartedAt     *time.Time `json:"started_at"`
	LastError     string     `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (j *DeliveryJob) BeforeCreate(*gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}
