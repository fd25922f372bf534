package blogger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ChartAggregator/internal/config"
	"ChartAggregator/internal/ports"
)

// Publisher inserts posts through the Blogger v3 API. The access token is issued externally.
type Publisher struct {
	endpoint    string
	blogID      string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher builds a publisher from configuration.
func NewPublisher(cfg config.BloggerConfig, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		blogID:      cfg.BlogID,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		logger:      log,
	}
}

// Name identifies the channel in logs.
func (p *Publisher) Name() string { return "blogger" }

// Publish inserts post as a live (non-draft) blog post.
func (p *Publisher) Publish(ctx context.Context, post ports.Post) error {
	if p.endpoint == "" || p.blogID == "" || p.accessToken == "" {
		return fmt.Errorf("blogger publisher misconfigured")
	}

	body, err := json.Marshal(map[string]string{
		"kind":    "blogger#post",
		"title":   post.Title,
		"content": post.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	endpoint := fmt.Sprintf("%s/blogs/%s/posts?isDraft=false", p.endpoint, url.PathEscape(p.blogID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("blogger error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&created); err != nil {
		p.logger.Warn("blogger response not decoded", "error", err)
		return nil
	}
	p.logger.Info("blog post published", "title", post.Title, "url", created.URL)
	return nil
}
