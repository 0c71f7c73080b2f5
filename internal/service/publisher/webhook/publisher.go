package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/syndicatehq/syndicate/internal/models"
	"github.com/syndicatehq/syndicate/internal/service/publisher"
)

const (
	eventPublish = "content.publish"
	eventPing    = "ping"

	// Response bodies are snapshotted for diagnostics only,
	// so they are capped.
	maxResponseBytes = 64 * 1024
)

// Credentials is the decoded credential payload of a webhook integration.
type Credentials struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Headers map[string]string `json:"headers"`
}

// Payload is the request body delivered to the configured endpoint.
type Payload struct {
	Event     string             `json:"event"`
	Timestamp time.Time          `json:"timestamp"`
	Content   *publisher.Content `json:"content,omitempty"`
}

// endpointResponse is the shape a receiver may answer with. Both fields are
// optional; a bare 2xx is still a successful delivery.
type endpointResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookPublisher delivers content as a signed JSON POST to the
// integration's configured endpoint.
type WebhookPublisher struct {
	logger    *zap.Logger
	client    *http.Client
	userAgent string
}

type Option func(*WebhookPublisher)

// WithTimeout overrides the per-delivery HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *WebhookPublisher) {
		p.client.Timeout = d
	}
}

// WithUserAgent overrides the User-Agent header sent with deliveries.
func WithUserAgent(ua string) Option {
	return func(p *WebhookPublisher) {
		p.userAgent = ua
	}
}

func NewWebhookPublisher(logger *zap.Logger, opts ...Option) publisher.Publisher {
	p := &WebhookPublisher{
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "Syndicate-Webhook/1.0",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *WebhookPublisher) Type() string {
	return "webhook"
}

func (p *WebhookPublisher) Publish(ctx context.Context, content *publisher.Content, integration *models.Integration) (*publisher.Result, error) {
	creds, err := p.credentials(integration)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		Event:     eventPublish,
		Timestamp: time.Now().UTC(),
		Content:   content,
	}

	return p.deliver(ctx, creds, payload)
}

func (p *WebhookPublisher) Test(ctx context.Context, integration *models.Integration) (*publisher.Result, error) {
	creds, err := p.credentials(integration)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		Event:     eventPing,
		Timestamp: time.Now().UTC(),
	}

	return p.deliver(ctx, creds, payload)
}

// credentials decodes and validates the integration's credential payload.
// Failures here are configuration errors and propagate as error returns.
func (p *WebhookPublisher) credentials(integration *models.Integration) (*Credentials, error) {
	if len(integration.Credentials) == 0 {
		return nil, fmt.Errorf("webhook integration %s has no credentials", integration.ID)
	}

	var creds Credentials
	if err := json.Unmarshal(integration.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("invalid webhook credentials: %w", err)
	}

	parsed, err := url.Parse(creds.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid webhook endpoint URL: %q", creds.URL)
	}

	return &creds, nil
}

// deliver posts the payload and maps the outcome onto a Result. Network
// errors, timeouts and non-2xx responses all come back as failed results,
// never as error returns.
func (p *WebhookPublisher) deliver(ctx context.Context, creds *Credentials, payload *Payload) (*publisher.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("X-Syndicate-Event", payload.Event)
	if creds.Secret != "" {
		req.Header.Set("X-Syndicate-Signature", sign(creds.Secret, body))
	}
	for k, v := range creds.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Webhook delivery failed",
			zap.String("url", creds.URL),
			zap.String("event", payload.Event),
			zap.Error(err))
		return &publisher.Result{
			Success:      false,
			Payload:      body,
			ErrorMessage: fmt.Sprintf("request failed: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("Webhook endpoint rejected delivery",
			zap.String("url", creds.URL),
			zap.Int("status", resp.StatusCode))
		return &publisher.Result{
			Success:      false,
			Payload:      body,
			Response:     string(respBody),
			ErrorMessage: fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode),
		}, nil
	}

	result := &publisher.Result{
		Success:  true,
		Payload:  body,
		Response: string(respBody),
	}

	// Receivers may echo back where the content ended up
	var echo endpointResponse
	if err := json.Unmarshal(respBody, &echo); err == nil {
		result.ExternalID = echo.ID
		result.ExternalURL = echo.URL
	}

	p.logger.Info("Webhook delivered",
		zap.String("url", creds.URL),
		zap.String("event", payload.Event),
		zap.Int("status", resp.StatusCode))

	return result, nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
