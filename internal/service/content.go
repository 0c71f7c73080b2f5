package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
	"github.com/syndicatehq/syndicate/pkg/util"
)

// ContentProvider resolves a content identifier into the fields a publisher
// needs. The orchestrator treats content as opaque beyond its identifier.
type ContentProvider interface {
	Resolve(ctx context.Context, contentID string) (*publisher.Content, error)
}

// ArticleStore owns the platform's article records and acts as the default
// ContentProvider.
type ArticleStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewArticleStore(db *gorm.DB, logger *zap.Logger) *ArticleStore {
	return &ArticleStore{
		db:     db,
		logger: logger,
	}
}

func (s *ArticleStore) Create(ctx context.Context, article *models.Article) error {
	if article.Slug == "" {
		article.Slug = util.GenerateSlug(article.Title)
	}
	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

func (s *ArticleStore) FindByID(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&article).Error; err != nil {
		return nil, fmt.Errorf("article %s not found: %w", id, err)
	}
	return &article, nil
}

func (s *ArticleStore) List(ctx context.Context, projectID string) ([]*models.Article, error) {
	var articles []*models.Article
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// Resolve implements ContentProvider.
func (s *ArticleStore) Resolve(ctx context.Context, contentID string) (*publisher.Content, error) {
	article, err := s.FindByID(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return publisher.FromArticle(article), nil
}
