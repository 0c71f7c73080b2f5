package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syndicatehq/syndicate/internal/config"
	"github.com/syndicatehq/syndicate/internal/queue"
	"github.com/syndicatehq/syndicate/internal/service"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
	"github.com/syndicatehq/syndicate/internal/service/publisher/webhook"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, service.Migrate(db))

	publications := service.NewPublicationStore(db, logger)
	integrations := service.NewIntegrationStore(db, logger, publications)
	articles := service.NewArticleStore(db, logger)

	registry := publisher.NewRegistry(logger)
	require.NoError(t, registry.Register("webhook", func() publisher.Publisher {
		return webhook.NewWebhookPublisher(logger)
	}))

	events := service.NewEventBus(logger)
	monitoring := service.NewMonitoringService(db, logger)
	jobQueue := queue.NewGormQueue(db, logger, 3)
	orchestrator := service.NewOrchestrator(logger, registry, publications, integrations, articles, jobQueue, events, monitoring)

	srv := &Server{
		Config:       &config.Config{},
		DB:           db,
		Router:       gin.New(),
		Logger:       logger,
		Registry:     registry,
		Orchestrator: orchestrator,
		Articles:     articles,
		Integrations: integrations,
		Publications: publications,
		Events:       events,
		Monitoring:   monitoring,
	}
	srv.setupRoutes()
	return srv
}

func (s *Server) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	s.Router.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func (s *Server) createTestArticle(t *testing.T) string {
	t.Helper()

	recorder := s.doJSON(t, http.MethodPost, "/api/v1/articles", map[string]any{
		"project_id": "p1",
		"title":      "Launch Post",
		"body":       "body",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	body := decodeBody(t, recorder)
	article := body["article"].(map[string]any)
	return article["id"].(string)
}

func (s *Server) createTestIntegration(t *testing.T, endpointURL string) string {
	t.Helper()

	recorder := s.doJSON(t, http.MethodPost, "/api/v1/integrations", map[string]any{
		"project_id":  "p1",
		"type":        "webhook",
		"name":        "test endpoint",
		"credentials": map[string]any{"url": endpointURL},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	body := decodeBody(t, recorder)
	integration := body["integration"].(map[string]any)
	return integration["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.doJSON(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", decodeBody(t, recorder)["status"])
}

func TestPublishEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"remote-1","url":"https://blog.example.com/posts/remote-1"}`)
	}))
	defer endpoint.Close()

	articleID := srv.createTestArticle(t)
	integrationID := srv.createTestIntegration(t, endpoint.URL)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      articleID,
		"integration_ids": []string{integrationID},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	publications := body["publications"].([]any)
	require.Len(t, publications, 1)

	record := publications[0].(map[string]any)
	assert.Equal(t, "published", record["status"])
	assert.Equal(t, "remote-1", record["external_id"])
	assert.NotNil(t, record["published_at"])

	// History reflects the delivery
	recorder = srv.doJSON(t, http.MethodGet, "/api/v1/contents/"+articleID+"/publications", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	history := decodeBody(t, recorder)["publications"].([]any)
	assert.Len(t, history, 1)
}

func TestPublishRecordsEndpointFailure(t *testing.T) {
	srv := newTestServer(t)

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer endpoint.Close()

	articleID := srv.createTestArticle(t)
	integrationID := srv.createTestIntegration(t, endpoint.URL)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      articleID,
		"integration_ids": []string{integrationID},
	})
	require.Equal(t, http.StatusOK, recorder.Code, "delivery failures surface in the record, not the status code")

	body := decodeBody(t, recorder)
	publications := body["publications"].([]any)
	require.Len(t, publications, 1)

	record := publications[0].(map[string]any)
	assert.Equal(t, "failed", record["status"])
	assert.Contains(t, record["error_message"], "HTTP 502")
}

func TestPublishAsyncQueuesDelivery(t *testing.T) {
	srv := newTestServer(t)

	articleID := srv.createTestArticle(t)
	integrationID := srv.createTestIntegration(t, "https://example.com/hook")

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      articleID,
		"integration_ids": []string{integrationID},
		"async":           true,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	publications := body["publications"].([]any)
	require.Len(t, publications, 1)
	assert.Equal(t, "pending", publications[0].(map[string]any)["status"])

	var jobs int64
	require.NoError(t, srv.DB.Table("delivery_jobs").Count(&jobs).Error)
	assert.Equal(t, int64(1), jobs)
}

func TestPublishValidation(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      "c1",
		"integration_ids": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPublishUnknownContent(t *testing.T) {
	srv := newTestServer(t)
	integrationID := srv.createTestIntegration(t, "https://example.com/hook")

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      "no-such-content",
		"integration_ids": []string{integrationID},
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRetryUnknownPublication(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publications/no-such-id/retry", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCreateIntegrationUnsupportedType(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/integrations", map[string]any{
		"project_id": "p1",
		"type":       "carrier-pigeon",
		"name":       "nope",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Contains(t, body["supported_types"], "webhook")
}

func TestRemoveIntegrationWithHistoryDeactivates(t *testing.T) {
	srv := newTestServer(t)

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	articleID := srv.createTestArticle(t)
	integrationID := srv.createTestIntegration(t, endpoint.URL)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/publish", map[string]any{
		"content_id":      articleID,
		"integration_ids": []string{integrationID},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = srv.doJSON(t, http.MethodDelete, "/api/v1/integrations/"+integrationID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = srv.doJSON(t, http.MethodGet, "/api/v1/integrations?project_id=p1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	listed := decodeBody(t, recorder)["integrations"].([]any)
	require.Len(t, listed, 1)
	assert.Equal(t, false, listed[0].(map[string]any)["is_active"])
}

func TestPublisherTypesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	recorder := srv.doJSON(t, http.MethodGet, "/api/v1/publisher/types", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, []any{"webhook"}, body["types"])
}

func TestTestIntegrationEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var event string
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event = r.Header.Get("X-Syndicate-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer endpoint.Close()

	integrationID := srv.createTestIntegration(t, endpoint.URL)

	recorder := srv.doJSON(t, http.MethodPost, "/api/v1/integrations/"+integrationID+"/test", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "ping", event)
}
