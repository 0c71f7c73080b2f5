package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/syndicatehq/syndicate/internal/models"
)

// PublicationStore is the durable record of delivery attempts, keyed by the
// (content, integration) pair.
type PublicationStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPublicationStore(db *gorm.DB, logger *zap.Logger) *PublicationStore {
	return &PublicationStore{
		db:     db,
		logger: logger,
	}
}

// pairColumns are the fields a re-publish overwrites on the existing row.
// The row identity (id, content_id, integration_id, created_at) survives.
var pairAssignments = []string{
	"status", "external_id", "external_url", "payload_sent",
	"response", "error_message", "published_at", "updated_at",
}

// UpsertByPair writes the record for (content, integration), overwriting
// the prior attempt if one exists. Returns the stored row, which keeps its
// original ID on conflict.
func (s *PublicationStore) UpsertByPair(ctx context.Context, pub *models.Publication) (*models.Publication, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "integration_id"}},
		DoUpdates: clause.AssignmentColumns(pairAssignments),
	}).Create(pub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert publication: %w", err)
	}

	return s.FindByPair(ctx, pub.ContentID, pub.IntegrationID)
}

// Update applies fields to one publication by ID.
func (s *PublicationStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update publication %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("publication %s not found: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *PublicationStore) FindByID(ctx context.Context, id string) (*models.Publication, error) {
	var pub models.Publication
	if err := s.db.WithContext(ctx).Preload("Integration").Where("id = ?", id).First(&pub).Error; err != nil {
		return nil, fmt.Errorf("publication %s not found: %w", id, err)
	}
	return &pub, nil
}

func (s *PublicationStore) FindByPair(ctx context.Context, contentID, integrationID string) (*models.Publication, error) {
	var pub models.Publication
	err := s.db.WithContext(ctx).Preload("Integration").
		Where("content_id = ? AND integration_id = ?", contentID, integrationID).
		First(&pub).Error
	if err != nil {
		return nil, fmt.Errorf("publication for pair (%s, %s) not found: %w", contentID, integrationID, err)
	}
	return &pub, nil
}

// ListByContent returns the delivery records for one content item, most
// recent attempt first, with integration metadata preloaded for display.
func (s *PublicationStore) ListByContent(ctx context.Context, contentID string) ([]*models.Publication, error) {
	var pubs []*models.Publication
	err := s.db.WithContext(ctx).Preload("Integration").
		Where("content_id = ?", contentID).
		Order("updated_at DESC").
		Find(&pubs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list publications for content %s: %w", contentID, err)
	}
	return pubs, nil
}

// CountByIntegration reports how many delivery records reference the given
// integration, used to decide deactivate-vs-delete.
func (s *PublicationStore) CountByIntegration(ctx context.Context, integrationID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Publication{}).
		Where("integration_id = ?", integrationID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count publications for integration %s: %w", integrationID, err)
	}
	return count, nil
}
