package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/internal/queue"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
	"github.com/syndicatehq/syndicate/pkg/util"
)

// ErrInvalidState is returned when a retry is requested for a publication
// whose content or integration can no longer be resolved.
var ErrInvalidState = errors.New("publication is not retryable")

// Error snapshots on publication records are capped.
const maxErrorBytes = 2000

// Orchestrator is the publishing control core. It owns every write to the
// publication records: publishers only perform the external call and report
// a result, the orchestrator interprets it, applies the state transition,
// and emits the matching event.
type Orchestrator struct {
	logger       *zap.Logger
	registry     *publisher.Registry
	publications *PublicationStore
	integrations *IntegrationStore
	content      ContentProvider
	queue        queue.Queue
	events       *EventBus
	monitoring   *MonitoringService
}

func NewOrchestrator(
	logger *zap.Logger,
	registry *publisher.Registry,
	publications *PublicationStore,
	integrations *IntegrationStore,
	content ContentProvider,
	q queue.Queue,
	events *EventBus,
	monitoring *MonitoringService,
) *Orchestrator {
	return &Orchestrator{
		logger:       logger,
		registry:     registry,
		publications: publications,
		integrations: integrations,
		content:      content,
		queue:        q,
		events:       events,
		monitoring:   monitoring,
	}
}

// PublishOne synchronously publishes one content item to one integration
// and returns the terminal publication record. Resolution failures (unknown
// integration, unknown content, unregistered type) propagate before any
// record is written; delivery failures are captured into the record.
func (o *Orchestrator) PublishOne(ctx context.Context, contentID, integrationID string) (*models.Publication, error) {
	integration, err := o.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	content, err := o.content.Resolve(ctx, contentID)
	if err != nil {
		return nil, err
	}

	pub, err := o.registry.Resolve(integration.Type)
	if err != nil {
		return nil, err
	}

	record, err := o.publications.UpsertByPair(ctx, &models.Publication{
		ContentID:     contentID,
		IntegrationID: integrationID,
		Status:        models.PublicationPublishing,
	})
	if err != nil {
		return nil, err
	}

	return o.execute(ctx, record, content, integration, pub)
}

// PublishMany publishes one content item to a set of integrations, in
// caller-supplied order. Targets are independent: a failure on one never
// aborts delivery to the others. The returned list mixes published and
// failed records; integrations that could not even be resolved are absent
// from the list and reported through the joined error.
func (o *Orchestrator) PublishMany(ctx context.Context, contentID string, integrationIDs []string) ([]*models.Publication, error) {
	var (
		records []*models.Publication
		errs    []error
	)

	for _, integrationID := range integrationIDs {
		record, err := o.PublishOne(ctx, contentID, integrationID)
		if err != nil {
			o.logger.Error("Publish target could not be resolved",
				zap.String("content_id", contentID),
				zap.String("integration_id", integrationID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("integration %s: %w", integrationID, err))
			continue
		}
		records = append(records, record)
	}

	return records, errors.Join(errs...)
}

// PublishOneAsync writes a pending record, enqueues the delivery, and
// returns immediately. The worker performs the actual delivery out of band.
func (o *Orchestrator) PublishOneAsync(ctx context.Context, contentID, integrationID string) (*models.Publication, error) {
	integration, err := o.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	if !o.registry.Supports(integration.Type) {
		return nil, fmt.Errorf("%w: %s", publisher.ErrUnknownType, integration.Type)
	}

	if _, err := o.content.Resolve(ctx, contentID); err != nil {
		return nil, err
	}

	record, err := o.publications.UpsertByPair(ctx, &models.Publication{
		ContentID:     contentID,
		IntegrationID: integrationID,
		Status:        models.PublicationPending,
	})
	if err != nil {
		return nil, err
	}

	err = o.queue.Enqueue(ctx, queue.Payload{
		ContentID:     contentID,
		IntegrationID: integrationID,
		PublicationID: record.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue delivery: %w", err)
	}

	o.logger.Info("Delivery queued",
		zap.String("content_id", contentID),
		zap.String("integration_id", integrationID),
		zap.String("publication_id", record.ID))
	return record, nil
}

// PublishManyAsync fans out PublishOneAsync over the integration set and
// returns one pending record per resolvable integration.
func (o *Orchestrator) PublishManyAsync(ctx context.Context, contentID string, integrationIDs []string) ([]*models.Publication, error) {
	var (
		records []*models.Publication
		errs    []error
	)

	for _, integrationID := range integrationIDs {
		record, err := o.PublishOneAsync(ctx, contentID, integrationID)
		if err != nil {
			errs = append(errs, fmt.Errorf("integration %s: %w", integrationID, err))
			continue
		}
		records = append(records, record)
	}

	return records, errors.Join(errs...)
}

// PublishToAllActive publishes one content item to every active integration
// of the owning project.
func (o *Orchestrator) PublishToAllActive(ctx context.Context, contentID, projectID string, async bool) ([]*models.Publication, error) {
	integrations, err := o.integrations.ListActive(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(integrations))
	for _, integration := range integrations {
		ids = append(ids, integration.ID)
	}

	if async {
		return o.PublishManyAsync(ctx, contentID, ids)
	}
	return o.PublishMany(ctx, contentID, ids)
}

// Test performs a connectivity check against one integration. A successful
// check updates last_connected_at; publication records are never touched.
func (o *Orchestrator) Test(ctx context.Context, integrationID string) (*publisher.Result, error) {
	integration, err := o.integrations.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}

	pub, err := o.registry.Resolve(integration.Type)
	if err != nil {
		return nil, err
	}

	result, err := pub.Test(ctx, integration)
	if err != nil {
		return nil, err
	}

	if result.Success {
		if err := o.integrations.TouchConnected(ctx, integration.ID, time.Now().UTC()); err != nil {
			o.logger.Error("Failed to update last_connected_at",
				zap.String("integration_id", integration.ID),
				zap.Error(err))
		}
	}

	return result, nil
}

// Retry re-runs delivery for an existing failed (or terminal) publication
// on the same record. It fails with ErrInvalidState, leaving the record
// unchanged, when the content or integration no longer resolves.
func (o *Orchestrator) Retry(ctx context.Context, publicationID string) (*models.Publication, error) {
	record, err := o.publications.FindByID(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	integration, err := o.integrations.FindByID(ctx, record.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("%w: integration %s no longer exists", ErrInvalidState, record.IntegrationID)
	}

	content, err := o.content.Resolve(ctx, record.ContentID)
	if err != nil {
		return nil, fmt.Errorf("%w: content %s no longer exists", ErrInvalidState, record.ContentID)
	}

	pub, err := o.registry.Resolve(integration.Type)
	if err != nil {
		return nil, err
	}

	if err := o.markPublishing(ctx, record.ID); err != nil {
		return nil, err
	}

	o.logger.Info("Retrying publication",
		zap.String("publication_id", record.ID),
		zap.String("content_id", record.ContentID),
		zap.String("integration_id", record.IntegrationID))
	return o.execute(ctx, record, content, integration, pub)
}

// History returns the delivery records for one content item, most recent
// first, with integration metadata for display.
func (o *Orchestrator) History(ctx context.Context, contentID string) ([]*models.Publication, error) {
	return o.publications.ListByContent(ctx, contentID)
}

// Deliver executes one queued delivery against its pre-written record. It
// implements queue.Deliverer; redelivery of an already-terminal record
// simply overwrites it, which is what makes the queue's at-least-once
// semantics safe.
func (o *Orchestrator) Deliver(ctx context.Context, publicationID string) (*models.Publication, error) {
	record, err := o.publications.FindByID(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	integration, err := o.integrations.FindByID(ctx, record.IntegrationID)
	if err != nil {
		return nil, err
	}

	content, err := o.content.Resolve(ctx, record.ContentID)
	if err != nil {
		return nil, err
	}

	pub, err := o.registry.Resolve(integration.Type)
	if err != nil {
		return nil, err
	}

	if err := o.markPublishing(ctx, record.ID); err != nil {
		return nil, err
	}

	return o.execute(ctx, record, content, integration, pub)
}

// FailDelivery force-fails a publication whose delivery job exhausted its
// retry budget, unless a late attempt already reached a terminal state.
func (o *Orchestrator) FailDelivery(ctx context.Context, publicationID, reason string) error {
	record, err := o.publications.FindByID(ctx, publicationID)
	if err != nil {
		return err
	}

	if record.Status.Terminal() {
		return nil
	}

	err = o.publications.Update(ctx, record.ID, map[string]interface{}{
		"status":        models.PublicationFailed,
		"error_message": util.Truncate(reason, maxErrorBytes),
		"published_at":  nil,
	})
	if err != nil {
		return err
	}

	refreshed, err := o.publications.FindByID(ctx, record.ID)
	if err != nil {
		return err
	}

	o.monitoring.RecordMetric("publish_failure", "counter", 1, map[string]interface{}{
		"integration_id": record.IntegrationID,
		"content_id":     record.ContentID,
	})
	o.events.Emit(Event{
		Kind:        EventPublishFailed,
		ContentID:   record.ContentID,
		Publication: refreshed,
		Reason:      reason,
	})
	return nil
}

// markPublishing starts a new attempt on an existing record: in-flight
// status, prior error and publish timestamp cleared.
func (o *Orchestrator) markPublishing(ctx context.Context, publicationID string) error {
	return o.publications.Update(ctx, publicationID, map[string]interface{}{
		"status":        models.PublicationPublishing,
		"error_message": "",
		"published_at":  nil,
	})
}

// execute runs one delivery attempt and applies the terminal transition.
func (o *Orchestrator) execute(ctx context.Context, record *models.Publication, content *publisher.Content, integration *models.Integration, pub publisher.Publisher) (*models.Publication, error) {
	o.logger.Info("Publishing content",
		zap.String("content_id", content.ID),
		zap.String("integration_id", integration.ID),
		zap.String("type", integration.Type))

	result := o.attempt(ctx, pub, content, integration)
	now := time.Now().UTC()

	var fields map[string]interface{}
	if result.Success {
		fields = map[string]interface{}{
			"status":        models.PublicationPublished,
			"external_id":   result.ExternalID,
			"external_url":  result.ExternalURL,
			"payload_sent":  datatypes.JSON(result.Payload),
			"response":      result.Response,
			"error_message": "",
			"published_at":  now,
		}
	} else {
		fields = map[string]interface{}{
			"status":        models.PublicationFailed,
			"external_id":   "",
			"external_url":  "",
			"payload_sent":  datatypes.JSON(result.Payload),
			"response":      result.Response,
			"error_message": util.Truncate(result.ErrorMessage, maxErrorBytes),
			"published_at":  nil,
		}
	}

	if err := o.publications.Update(ctx, record.ID, fields); err != nil {
		return nil, err
	}

	refreshed, err := o.publications.FindByID(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	if result.Success {
		if err := o.integrations.TouchConnected(ctx, integration.ID, now); err != nil {
			o.logger.Error("Failed to update last_connected_at",
				zap.String("integration_id", integration.ID),
				zap.Error(err))
		}

		o.monitoring.RecordMetric("publish_success", "counter", 1, map[string]interface{}{
			"type":           integration.Type,
			"integration_id": integration.ID,
			"content_id":     content.ID,
		})
		o.events.Emit(Event{
			Kind:        EventPublished,
			ContentID:   content.ID,
			Integration: integration,
			Publication: refreshed,
		})
	} else {
		o.monitoring.RecordMetric("publish_failure", "counter", 1, map[string]interface{}{
			"type":           integration.Type,
			"integration_id": integration.ID,
			"content_id":     content.ID,
		})
		o.monitoring.RecordError("ERROR", "orchestrator",
			fmt.Sprintf("Failed to publish to %s", integration.Name),
			result.ErrorMessage,
			WithIntegrationType(integration.Type),
			WithContent(content.ID),
			WithPublication(refreshed.ID))
		o.events.Emit(Event{
			Kind:        EventPublishFailed,
			ContentID:   content.ID,
			Integration: integration,
			Publication: refreshed,
			Reason:      result.ErrorMessage,
		})
	}

	o.logger.Info("Publishing completed",
		zap.String("publication_id", refreshed.ID),
		zap.String("type", integration.Type),
		zap.Bool("success", result.Success))
	return refreshed, nil
}

// attempt invokes the publisher and normalizes every failure mode into a
// result, so an unexpected publisher fault can never leave the record stuck
// in the publishing state.
func (o *Orchestrator) attempt(ctx context.Context, pub publisher.Publisher, content *publisher.Content, integration *models.Integration) (result *publisher.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Publisher panicked",
				zap.String("type", integration.Type),
				zap.Any("panic", r))
			result = &publisher.Result{
				Success:      false,
				ErrorMessage: fmt.Sprintf("internal publisher error: %v", r),
			}
		}
	}()

	res, err := pub.Publish(ctx, content, integration)
	if err != nil {
		return &publisher.Result{
			Success:      false,
			ErrorMessage: err.Error(),
		}
	}
	return res
}
