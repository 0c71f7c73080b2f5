package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Article is the content item the platform produces and publishes. The
// orchestrator only needs its identifier; publishers consume the rest.
type Article struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string         `gorm:"size:36;not null;index" json:"project_id"`
	Title     string         `gorm:"size:500;not null" json:"title"`
	Slug      string         `gorm:"size:200;index" json:"slug"`
	Body      string         `gorm:"type:text" json:"body"`
	Summary   string         `gorm:"type:text" json:"summary"`
	Author    string         `gorm:"size:200" json:"author"`
	Tags      datatypes.JSON `gorm:"type:jsonb" json:"tags"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (a *Article) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
