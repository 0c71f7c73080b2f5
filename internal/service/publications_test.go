package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
)

func TestUpsertByPairKeepsOneRow(t *testing.T) {
	db := newTestDB(t)
	store := NewPublicationStore(db, zap.NewNop())
	ctx := context.Background()

	integration := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "dest"}
	require.NoError(t, db.Create(integration).Error)

	first, err := store.UpsertByPair(ctx, &models.Publication{
		ContentID:     "c1",
		IntegrationID: integration.ID,
		Status:        models.PublicationPending,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PublicationPending, first.Status)

	now := time.Now().UTC()
	second, err := store.UpsertByPair(ctx, &models.Publication{
		ContentID:     "c1",
		IntegrationID: integration.ID,
		Status:        models.PublicationPublished,
		ExternalID:    "ext-1",
		PublishedAt:   &now,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.PublicationPublished, second.Status)
	assert.Equal(t, "ext-1", second.ExternalID)

	var count int64
	require.NoError(t, db.Model(&models.Publication{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertByPairDistinctPairs(t *testing.T) {
	db := newTestDB(t)
	store := NewPublicationStore(db, zap.NewNop())
	ctx := context.Background()

	a := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "a"}
	b := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "b"}
	require.NoError(t, db.Create(a).Error)
	require.NoError(t, db.Create(b).Error)

	pairs := []struct{ content, integration string }{
		{"c1", a.ID},
		{"c1", b.ID},
		{"c2", a.ID},
	}
	for _, pair := range pairs {
		_, err := store.UpsertByPair(ctx, &models.Publication{
			ContentID:     pair.content,
			IntegrationID: pair.integration,
			Status:        models.PublicationPending,
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.Publication{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestPublicationUpdateNotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewPublicationStore(db, zap.NewNop())

	err := store.Update(context.Background(), "missing-id", map[string]interface{}{
		"status": models.PublicationFailed,
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindByPairNotFound(t *testing.T) {
	db := newTestDB(t)
	store := NewPublicationStore(db, zap.NewNop())

	record, err := store.FindByPair(context.Background(), "c1", "i1")
	assert.Nil(t, record)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCountByIntegration(t *testing.T) {
	db := newTestDB(t)
	store := NewPublicationStore(db, zap.NewNop())
	ctx := context.Background()

	integration := &models.Integration{ProjectID: "p1", Type: "webhook", Name: "dest"}
	require.NoError(t, db.Create(integration).Error)

	count, err := store.CountByIntegration(ctx, integration.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	for _, contentID := range []string{"c1", "c2"} {
		_, err := store.UpsertByPair(ctx, &models.Publication{
			ContentID:     contentID,
			IntegrationID: integration.ID,
			Status:        models.PublicationPending,
		})
		require.NoError(t, err)
	}

	count, err = store.CountByIntegration(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
