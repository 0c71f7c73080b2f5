package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PublicationStatus tracks one delivery attempt-set through its lifecycle.
type PublicationStatus string

const (
	PublicationPending    PublicationStatus = "pending"
	PublicationPublishing PublicationStatus = "publishing"
	PublicationPublished  PublicationStatus = "published"
	PublicationFailed     PublicationStatus = "failed"
)

// Terminal reports whether status is a final state for the current attempt.
func (s PublicationStatus) Terminal() bool {
	return s == PublicationPublished || s == PublicationFailed
}

// Publication is the durable record of the latest delivery attempt for one
// (content, integration) pair. The pair is unique: re-publishing overwrites
// the prior record instead of appending.
//
// Invariants kept by the orchestrator:
//   - PublishedAt is non-nil iff Status == published
//   - ErrorMessage is non-empty only when Status == failed
type Publication struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	ContentID     string            `gorm:"size:36;not null;uniqueIndex:idx_publications_pair,priority:1" json:"content_id"`
	IntegrationID string            `gorm:"size:36;not null;uniqueIndex:idx_publications_pair,priority:2" json:"integration_id"`
	Status        PublicationStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ExternalID    string            `gorm:"size:500" json:"external_id"`
	ExternalURL   string            `gorm:"size:1000" json:"external_url"`
	PayloadSent   datatypes.JSON    `gorm:"type:jsonb" json:"payload_sent"`
	Response      string            `gorm:"type:text" json:"response"`
	ErrorMessage  string            `gorm:"type:text" json:"error_message"`
	PublishedAt   *time.Time        `json:"published_at"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Integration Integration `gorm:"foreignKey:IntegrationID" json:"integration"`
}

func (p *Publication) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
