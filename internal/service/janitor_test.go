package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/syndicatehq/syndicate/internal/models"
)

func newTestJanitor(env *testEnv) *Janitor {
	monitoring := NewMonitoringService(env.db, zap.NewNop())
	return NewJanitor(env.db, zap.NewNop(), env.orchestrator, monitoring,
		time.Hour, 10*time.Minute, 90)
}

func TestJanitorFailsStuckPublications(t *testing.T) {
	env := newTestEnv(t)
	janitor := newTestJanitor(env)
	ctx := context.Background()

	article := env.createArticle(t, "p1", "Launch Post")
	integration := env.createIntegration(t, "p1", "stub", "primary hook")

	stuck, err := env.publications.UpsertByPair(ctx, &models.Publication{
		ContentID:     article.ID,
		IntegrationID: integration.ID,
		Status:        models.PublicationPublishing,
	})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Publication{}).
		Where("id = ?", stuck.ID).
		Update("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	janitor.sweep(ctx)

	swept, err := env.publications.FindByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationFailed, swept.Status)
	assert.Contains(t, swept.ErrorMessage, "abandoned")
	assert.Nil(t, swept.PublishedAt)
}

func TestJanitorLeavesRecentInFlightAlone(t *testing.T) {
	env := newTestEnv(t)
	janitor := newTestJanitor(env)
	ctx := context.Background()

	article := env.createArticle(t, "p1", "Launch Post")
	integration := env.createIntegration(t, "p1", "stub", "primary hook")

	record, err := env.publications.UpsertByPair(ctx, &models.Publication{
		ContentID:     article.ID,
		IntegrationID: integration.ID,
		Status:        models.PublicationPublishing,
	})
	require.NoError(t, err)

	janitor.sweep(ctx)

	fresh, err := env.publications.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PublicationPublishing, fresh.Status,
		"deliveries still within the threshold stay untouched")
}

func TestJanitorRequeuesStaleJobs(t *testing.T) {
	env := newTestEnv(t)
	janitor := newTestJanitor(env)
	ctx := context.Background()

	staleStart := time.Now().UTC().Add(-time.Hour)
	stale := &models.DeliveryJob{
		ContentID:     "c1",
		IntegrationID: "i1",
		PublicationID: "pub1",
		Status:        models.JobRunning,
		StartedAt:     &staleStart,
		NextRunAt:     staleStart,
	}
	require.NoError(t, env.db.Create(stale).Error)

	freshStart := time.Now().UTC()
	running := &models.DeliveryJob{
		ContentID:     "c2",
		IntegrationID: "i2",
		PublicationID: "pub2",
		Status:        models.JobRunning,
		StartedAt:     &freshStart,
		NextRunAt:     freshStart,
	}
	require.NoError(t, env.db.Create(running).Error)

	janitor.sweep(ctx)

	var swept models.DeliveryJob
	require.NoError(t, env.db.Where("id = ?", stale.ID).First(&swept).Error)
	assert.Equal(t, models.JobQueued, swept.Status)
	assert.WithinDuration(t, time.Now().UTC(), swept.NextRunAt, 5*time.Second)

	var untouched models.DeliveryJob
	require.NoError(t, env.db.Where("id = ?", running.ID).First(&untouched).Error)
	assert.Equal(t, models.JobRunning, untouched.Status)
}

func TestJanitorPrunesOldMonitoringData(t *testing.T) {
	env := newTestEnv(t)
	janitor := newTestJanitor(env)
	ctx := context.Background()

	old := &models.ErrorLog{
		Level:    "ERROR",
		Source:   "orchestrator",
		Title:    "old resolved failure",
		Message:  "gone",
		Resolved: true,
	}
	require.NoError(t, env.db.Create(old).Error)
	require.NoError(t, env.db.Model(&models.ErrorLog{}).
		Where("id = ?", old.ID).
		Update("created_at", time.Now().AddDate(0, 0, -120)).Error)

	recent := &models.ErrorLog{
		Level:   "ERROR",
		Source:  "orchestrator",
		Title:   "recent failure",
		Message: "keep me",
	}
	require.NoError(t, env.db.Create(recent).Error)

	janitor.sweep(ctx)

	var count int64
	require.NoError(t, env.db.Model(&models.ErrorLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
