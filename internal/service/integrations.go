package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

// IntegrationStore manages the configured external destinations.
type IntegrationStore struct {
	db           *gorm.DB
	logger       *zap.Logger
	publications *PublicationStore
}

func NewIntegrationStore(db *gorm.DB, logger *zap.Logger, publications *PublicationStore) *IntegrationStore {
	return &IntegrationStore{
		db:           db,
		logger:       logger,
		publications: publications,
	}
}

func (s *IntegrationStore) Create(ctx context.Context, integration *models.Integration) error {
	if err := s.db.WithContext(ctx).Create(integration).Error; err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	s.logger.Info("Integration created",
		zap.String("integration_id", integration.ID),
		zap.String("type", integration.Type),
		zap.String("name", integration.Name))
	return nil
}

func (s *IntegrationStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Integration{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update integration %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("integration %s not found: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *IntegrationStore) FindByID(ctx context.Context, id string) (*models.Integration, error) {
	var integration models.Integration
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&integration).Error; err != nil {
		return nil, fmt.Errorf("integration %s not found: %w", id, err)
	}
	return &integration, nil
}

func (s *IntegrationStore) List(ctx context.Context, projectID string) ([]*models.Integration, error) {
	var integrations []*models.Integration
	query := s.db.WithContext(ctx).Order("created_at")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if err := query.Find(&integrations).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return integrations, nil
}

// ListActive returns the active integrations of a project, in creation
// order. This is the target set for publish-to-all requests.
func (s *IntegrationStore) ListActive(ctx context.Context, projectID string) ([]*models.Integration, error) {
	var integrations []*models.Integration
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Order("created_at").
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active integrations: %w", err)
	}
	return integrations, nil
}

// TouchConnected records a successful connection, after a publish or a
// connectivity test. Never called on failure.
func (s *IntegrationStore) TouchConnected(ctx context.Context, id string, at time.Time) error {
	return s.Update(ctx, id, map[string]interface{}{"last_connected_at": at})
}

// Remove deletes an integration, or merely deactivates it when delivery
// history still references it so the history stays readable.
func (s *IntegrationStore) Remove(ctx context.Context, id string) error {
	count, err := s.publications.CountByIntegration(ctx, id)
	if err != nil {
		return err
	}

	if count > 0 {
		s.logger.Info("Integration referenced by history, deactivating instead of deleting",
			zap.String("integration_id", id),
			zap.Int64("publications", count))
		return s.Update(ctx, id, map[string]interface{}{"is_active": false})
	}

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Integration{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete integration %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("integration %s not found: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
