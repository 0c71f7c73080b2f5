package publisher

import (
	"context"
	"encoding/json"

	"github.com/syndicatehq/syndicate/internal/models"
)

// Content represents the content to be published
type Content struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Slug     string            `json:"slug"`
	Body     string            `json:"body"`
	Summary  string            `json:"summary"`
	Tags     []string          `json:"tags"`
	Author   string            `json:"author"`
	Metadata map[string]string `json:"metadata"`
}

// Result represents the outcome of one delivery attempt. Ordinary delivery
// failures (endpoint errors, timeouts, rejected payloads) are reported as
// Success=false with ErrorMessage set, not as error returns; error returns
// are reserved for configuration and programming faults.
type Result struct {
	Success      bool            `json:"success"`
	ExternalID   string          `json:"external_id,omitempty"`
	ExternalURL  string          `json:"external_url,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Response     string          `json:"response,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Publisher is the capability that knows how to deliver content to one
// integration type. Implementations are stateless: the publication record
// is owned by the orchestrator, never written here.
type Publisher interface {
	// Type returns the integration type tag this publisher serves.
	Type() string

	// Publish delivers one content item to one integration.
	Publish(ctx context.Context, content *Content, integration *models.Integration) (*Result, error)

	// Test performs a lightweight connectivity and credential check
	// without creating durable content on the destination.
	Test(ctx context.Context, integration *models.Integration) (*Result, error)
}

// FromArticle converts an Article to publishable Content
func FromArticle(article *models.Article) *Content {
	var tags []string
	if len(article.Tags) > 0 {
		_ = json.Unmarshal(article.Tags, &tags)
	}

	metadata := map[string]string{
		"project_id": article.ProjectID,
	}
	if len(article.Metadata) > 0 {
		var extra map[string]string
		if err := json.Unmarshal(article.Metadata, &extra); err == nil {
			for k, v := range extra {
				metadata[k] = v
			}
		}
	}

	return &Content{
		ID:       article.ID,
		Title:    article.Title,
		Slug:     article.Slug,
		Body:     article.Body,
		Summary:  article.Summary,
		Tags:     tags,
		Author:   article.Author,
		Metadata: metadata,
	}
}
