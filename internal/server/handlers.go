package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/internal/service"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
)

type publishRequest struct {
	ContentID      string   `json:"content_id" binding:"required"`
	IntegrationIDs []string `json:"integration_ids" binding:"required,min=1"`
	Async          bool     `json:"async"`
}

type publishAllRequest struct {
	ContentID string `json:"content_id" binding:"required"`
	ProjectID string `json:"project_id" binding:"required"`
	Async     *bool  `json:"async"`
}

type createIntegrationRequest struct {
	ProjectID   string         `json:"project_id" binding:"required"`
	Type        string         `json:"type" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Credentials map[string]any `json:"credentials"`
}

type createArticleRequest struct {
	ProjectID string            `json:"project_id" binding:"required"`
	Title     string            `json:"title" binding:"required"`
	Body      string            `json:"body"`
	Summary   string            `json:"summary"`
	Author    string            `json:"author"`
	Tags      []string          `json:"tags"`
	Metadata  map[string]string `json:"metadata"`
}

// statusForError maps the orchestrator's error taxonomy onto HTTP codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, publisher.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		records []*models.Publication
		err     error
	)
	if req.Async {
		records, err = s.Orchestrator.PublishManyAsync(c.Request.Context(), req.ContentID, req.IntegrationIDs)
	} else {
		records, err = s.Orchestrator.PublishMany(c.Request.Context(), req.ContentID, req.IntegrationIDs)
	}

	if err != nil && len(records) == 0 {
		s.Logger.Error("Publish request failed", zap.String("content_id", req.ContentID), zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"publications": records}
	if err != nil {
		// Some targets could not be resolved; the rest went through
		response["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handlePublishToAll(c *gin.Context) {
	var req publishAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	async := true
	if req.Async != nil {
		async = *req.Async
	}

	records, err := s.Orchestrator.PublishToAllActive(c.Request.Context(), req.ContentID, req.ProjectID, async)
	if err != nil && len(records) == 0 {
		s.Logger.Error("Publish-all request failed", zap.String("content_id", req.ContentID), zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"publications": records}
	if err != nil {
		response["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleRetryPublication(c *gin.Context) {
	record, err := s.Orchestrator.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.Logger.Error("Retry failed", zap.String("publication_id", c.Param("id")), zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publication": record})
}

func (s *Server) handlePublicationStatus(c *gin.Context) {
	records, err := s.Orchestrator.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.Logger.Error("Failed to get publication history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get publications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publications": records})
}

func (s *Server) handleCreateIntegration(c *gin.Context) {
	var req createIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.Registry.Supports(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "unsupported integration type",
			"supported_types": s.Registry.Types(),
		})
		return
	}

	integration := &models.Integration{
		ProjectID: req.ProjectID,
		Type:      req.Type,
		Name:      req.Name,
		IsActive:  true,
	}
	if req.Credentials != nil {
		creds, err := json.Marshal(req.Credentials)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials payload"})
			return
		}
		integration.Credentials = datatypes.JSON(creds)
	}

	if err := s.Integrations.Create(c.Request.Context(), integration); err != nil {
		s.Logger.Error("Failed to create integration", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create integration"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"integration": integration})
}

func (s *Server) handleListIntegrations(c *gin.Context) {
	integrations, err := s.Integrations.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		s.Logger.Error("Failed to list integrations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list integrations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func (s *Server) handleRemoveIntegration(c *gin.Context) {
	if err := s.Integrations.Remove(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Integration removed"})
}

func (s *Server) handleTestIntegration(c *gin.Context) {
	result, err := s.Orchestrator.Test(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.Logger.Error("Integration test failed", zap.String("integration_id", c.Param("id")), zap.Error(err))
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleCreateArticle(c *gin.Context) {
	var req createArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	article := &models.Article{
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Body:      req.Body,
		Summary:   req.Summary,
		Author:    req.Author,
	}
	if req.Tags != nil {
		if tags, err := json.Marshal(req.Tags); err == nil {
			article.Tags = datatypes.JSON(tags)
		}
	}
	if req.Metadata != nil {
		if metadata, err := json.Marshal(req.Metadata); err == nil {
			article.Metadata = datatypes.JSON(metadata)
		}
	}

	if err := s.Articles.Create(c.Request.Context(), article); err != nil {
		s.Logger.Error("Failed to create article", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create article"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"article": article})
}

func (s *Server) handleListArticles(c *gin.Context) {
	articles, err := s.Articles.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		s.Logger.Error("Failed to list articles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list articles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) handleGetArticle(c *gin.Context) {
	article, err := s.Articles.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"article": article})
}

func (s *Server) handlePublisherTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": s.Registry.Types()})
}
