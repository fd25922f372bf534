package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

const maxDocumentBytes = 16 << 20

// HTTPFetcher implements StaticFetch with a single GET request.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	rawDir    string
	logger    *slog.Logger
}

var _ ports.StaticFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; a nil client gets a 30s default timeout.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = "ChartAggregator/1.0"
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, logger: slog.Default()}
}

// WithRawCapture saves every response body, including error pages, under dir for diagnosis.
// An empty dir disables capture.
func (f *HTTPFetcher) WithRawCapture(dir string, log *slog.Logger) *HTTPFetcher {
	f.rawDir = dir
	if log != nil {
		f.logger = log
	}
	return f
}

// FetchStatic downloads target. Transport failures and non-200 answers wrap domain.ErrNetwork;
// cancellation of ctx is returned as is.
func (f *HTTPFetcher) FetchStatic(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: request %s: %v", domain.ErrNetwork, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && f.rawDir == "" {
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrNetwork, target, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	f.saveRaw(target, resp.StatusCode, body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", domain.ErrNetwork, target, resp.Status)
	}
	return body, nil
}

func (f *HTTPFetcher) saveRaw(target string, status int, body []byte) {
	if f.rawDir == "" {
		return
	}
	if err := os.MkdirAll(f.rawDir, 0o755); err != nil {
		f.logger.Warn("raw capture failed", "url", target, "error", err)
		return
	}
	path := filepath.Join(f.rawDir, rawBaseName(target, time.Now())+".raw")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		f.logger.Warn("raw capture failed", "url", target, "error", err)
		return
	}
	f.logger.Debug("saved raw payload", "url", target, "status", status, "path", path, "bytes", len(body))
}

// rawBaseName keeps host and path so per-region requests to one API land in separate files.
func rawBaseName(target string, at time.Time) string {
	name := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = "page"
	}
	return "raw_" + name + "_" + at.UTC().Format("20060102T150405")
}
