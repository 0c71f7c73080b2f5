package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Integration is a configured external destination content can be
// published to. Credentials are opaque to the orchestration core and only
// interpreted by the publisher matching Type.
type Integration struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	ProjectID       string         `gorm:"size:36;not null;index" json:"project_id"`
	Type            string         `gorm:"size:50;not null;index" json:"type"`
	Name            string         `gorm:"size:200;not null" json:"name"`
	Credentials     datatypes.JSON `gorm:"type:jsonb" json:"-"`
	IsActive        bool           `gorm:"default:true" json:"is_active"`
	LastConnectedAt *time.Time     `json:"last_connected_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (i *Integration) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
