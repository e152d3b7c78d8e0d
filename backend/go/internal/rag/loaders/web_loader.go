package loaders

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/rag/schema"
	pkghttp "CaseForAI/backend/go/pkg/http"

	"github.com/google/uuid"
)

// maxPageBytes 限制单个网页的下载大小。
const maxPageBytes = 10 << 20

// WebLoader fetches evidence pages (press coverage, award announcements) by URL.
type WebLoader struct {
	client *pkghttp.Client
}

// NewWebLoader creates a WebLoader on top of the given client. The client decides
// which destinations are reachable; tests pass an unrestricted one.
func NewWebLoader(client *pkghttp.Client) *WebLoader {
	return &WebLoader{client: client}
}

// NewPublicWebLoader creates a WebLoader for user-submitted URLs. It gets its own
// client without a circuit breaker, only dials public addresses and re-checks redirects.
func NewPublicWebLoader(timeout time.Duration) (*WebLoader, error) {
	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{}, timeout, pkghttp.WithPublicOnly())
	if err != nil {
		return nil, err
	}
	return &WebLoader{client: client}, nil
}

// Fetch downloads the raw HTML of a page. Only http and https URLs are accepted.
func (l *WebLoader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %q", rawURL)
	}
	return l.client.Download(ctx, u.String(), nil, maxPageBytes)
}

// Load fetches content from a URL, converts it to Markdown, and returns it as a single Document.
func (l *WebLoader) Load(ctx context.Context, rawURL string) ([]*schema.Document, error) {
	body, err := l.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	text, err := htmlToMarkdown(body)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", rawURL, err)
	}
	return []*schema.Document{{
		ID:   uuid.NewString(),
		Text: text,
		Metadata: map[string]interface{}{
			schema.MetadataKeySourceURL: rawURL,
		},
	}}, nil
}
