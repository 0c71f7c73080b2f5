package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

func newIntegrationStore(t *testing.T) (*IntegrationStore, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop()
	publications := NewPublicationStore(db, logger)
	return NewIntegrationStore(db, logger, publications), db
}

func TestIntegrationCreateAssignsID(t *testing.T) {
	store, _ := newIntegrationStore(t)

	integration := &models.Integration{
		ProjectID:   "p1",
		Type:        "webhook",
		Name:        "primary hook",
		Credentials: datatypes.JSON(`{"url":"https://example.com/hook"}`),
		IsActive:    true,
	}
	require.NoError(t, store.Create(context.Background(), integration))
	assert.NotEmpty(t, integration.ID)

	found, err := store.FindByID(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, "primary hook", found.Name)
	assert.JSONEq(t, `{"url":"https://example.com/hook"}`, string(found.Credentials))
}

func TestListActiveFiltersProjectAndState(t *testing.T) {
	store, _ := newIntegrationStore(t)
	ctx := context.Background()

	active := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "active", IsActive: true}
	require.NoError(t, store.Create(ctx, active))

	paused := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "paused", IsActive: true}
	require.NoError(t, store.Create(ctx, paused))
	require.NoError(t, store.Update(ctx, paused.ID, map[string]interface{}{"is_active": false}))

	other := &models.Integration{ProjectID: "p2", Type: "webhook", Name: "other", IsActive: true}
	require.NoError(t, store.Create(ctx, other))

	got, err := store.ListActive(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestTouchConnected(t *testing.T) {
	store, _ := newIntegrationStore(t)
	ctx := context.Background()

	integration := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "dest", IsActive: true}
	require.NoError(t, store.Create(ctx, integration))
	assert.Nil(t, integration.LastConnectedAt)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.TouchConnected(ctx, integration.ID, at))

	found, err := store.FindByID(ctx, integration.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastConnectedAt)
	assert.WithinDuration(t, at, *found.LastConnectedAt, time.Second)
}

func TestRemoveDeletesWhenUnreferenced(t *testing.T) {
	store, db := newIntegrationStore(t)
	ctx := context.Background()

	integration := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "dest", IsActive: true}
	require.NoError(t, store.Create(ctx, integration))

	require.NoError(t, store.Remove(ctx, integration.ID))

	_, err := store.FindByID(ctx, integration.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Soft deleted, so the row survives for auditing.
	var count int64
	require.NoError(t, db.Unscoped().Model(&models.Integration{}).
		Where("id = ?", integration.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRemoveDeactivatesWhenHistoryExists(t *testing.T) {
	store, db := newIntegrationStore(t)
	ctx := context.Background()

	integration := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "dest", IsActive: true}
	require.NoError(t, store.Create(ctx, integration))

	require.NoError(t, db.Create(&models.Publication{
		ContentID:     "c1",
		IntegrationID: integration.ID,
		Status:        models.PublicationPublished,
	}).Error)

	require.NoError(t, store.Remove(ctx, integration.ID))

	found, err := store.FindByID(ctx, integration.ID)
	require.NoError(t, err, "referenced integrations stay resolvable for history display")
	assert.False(t, found.IsActive)
}

func TestIntegrationUpdateNotFound(t *testing.T) {
	store, _ := newIntegrationStore(t)

	err := store.Update(context.Background(), "missing-id", map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
