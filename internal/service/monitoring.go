package service

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

// MonitoringService records operational errors and metric samples in the
// database for the dashboard.
type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordError writes an error log entry.
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// ErrorLogOption customizes an error log entry.
type ErrorLogOption func(*models.ErrorLog)

// WithIntegrationType tags the entry with the integration type involved.
func WithIntegrationType(integrationType string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.IntegrationType = integrationType
	}
}

// WithContent links the entry to a content item.
func WithContent(contentID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ContentID = contentID
	}
}

// WithPublication links the entry to a publication record.
func WithPublication(publicationID string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PublicationID = publicationID
	}
}

// WithContext attaches arbitrary context to the entry.
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = contextBytes
		}
	}
}

// RecordMetric stores one metric sample.
func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	sample := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Timestamp:  time.Now().UTC(),
	}

	if tags != nil {
		if tagBytes, err := json.Marshal(tags); err == nil {
			sample.Tags = tagBytes
		}
	}

	return m.db.Create(sample).Error
}

// CleanupOldData removes resolved errors and metric samples older than the
// retention window.
func (m *MonitoringService) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if err := m.db.Where("resolved = ? AND created_at < ?", true, cutoff).
		Delete(&models.ErrorLog{}).Error; err != nil {
		return err
	}

	return m.db.Where("timestamp < ?", cutoff).
		Delete(&models.MetricsSample{}).Error
}
