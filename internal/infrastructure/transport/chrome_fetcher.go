package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"ChartAggregator/internal/config"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
	"ChartAggregator/pkg/logger"
)

const (
	dismissTimeout = 5 * time.Second
	captureTimeout = 10 * time.Second
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ChromeFetcher implements RenderedFetch with a shared headless browser; each fetch uses its own tab.
type ChromeFetcher struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	launch func() (context.Context, context.CancelFunc, error)

	mu         sync.Mutex
	browserCtx context.Context
	release    context.CancelFunc
}

var _ ports.RenderedFetcher = (*ChromeFetcher)(nil)

// NewChromeFetcher prepares the fetcher; the browser starts on first use.
func NewChromeFetcher(cfg config.BrowserConfig, log *slog.Logger) *ChromeFetcher {
	if log == nil {
		log = slog.Default()
	}
	c := &ChromeFetcher{cfg: cfg, logger: log}
	c.launch = c.launchBrowser
	return c
}

// FetchRendered opens req.URL (following req.FollowLink when set), waits until req.ReadyMarker
// is present and returns the page HTML. A marker that does not appear within req.Timeout yields
// domain.ErrRenderTimeout; the partially loaded page is never returned.
func (c *ChromeFetcher) FetchRendered(ctx context.Context, req ports.RenderedRequest) ([]byte, error) {
	if req.ReadyMarker == "" {
		return nil, fmt.Errorf("rendered fetch of %s has no ready marker", req.URL)
	}
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("rendered fetch of %s has no timeout", req.URL)
	}

	browserCtx, err := c.browser()
	if err != nil {
		return nil, fmt.Errorf("%w: start browser: %v", domain.ErrNetwork, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	waitCtx, cancelWait := context.WithTimeout(tabCtx, req.Timeout)
	defer cancelWait()

	target := req.URL
	if req.FollowLink != "" {
		target, err = c.discoverLink(waitCtx, req.URL, req.FollowLink)
		if err != nil {
			return nil, c.classify(ctx, waitCtx, err)
		}
		c.logger.Debug("following chart link", "from", req.URL, "to", target)
	}

	if err := chromedp.Run(waitCtx, chromedp.Navigate(target)); err != nil {
		return nil, c.classify(ctx, waitCtx, err)
	}

	if req.DismissSelector != "" {
		c.dismiss(waitCtx, req.DismissSelector)
	}

	if req.ScrollToBottom {
		if err := chromedp.Run(waitCtx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
			return nil, c.classify(ctx, waitCtx, err)
		}
	}

	if err := chromedp.Run(waitCtx, chromedp.WaitReady(req.ReadyMarker, chromedp.ByQuery)); err != nil {
		classified := c.classify(ctx, waitCtx, err)
		if errors.Is(classified, domain.ErrRenderTimeout) {
			c.capture(tabCtx, target)
		}
		return nil, classified
	}

	var html string
	if err := chromedp.Run(waitCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, c.classify(ctx, waitCtx, err)
	}

	return []byte(html), nil
}

// Close shuts down the browser if it was started.
func (c *ChromeFetcher) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown()
}

// browser returns the shared browser context, launching Chrome when none is running or the
// previous instance has died. A failed launch is not cached; the next fetch tries again.
func (c *ChromeFetcher) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		if c.browserCtx.Err() == nil {
			return c.browserCtx, nil
		}
		c.logger.Warn("browser exited, relaunching", "error", context.Cause(c.browserCtx))
		c.shutdown()
	}

	browserCtx, release, err := c.launch()
	if err != nil {
		return nil, err
	}
	c.browserCtx = browserCtx
	c.release = release
	return browserCtx, nil
}

func (c *ChromeFetcher) shutdown() {
	if c.release != nil {
		c.release()
	}
	c.browserCtx = nil
	c.release = nil
}

func (c *ChromeFetcher) launchBrowser() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 3000),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if bin := findChromeBinary(c.cfg.ChromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Printf(c.logger, slog.LevelDebug, "chromedp")),
		chromedp.WithErrorf(logger.Printf(c.logger, slog.LevelWarn, "chromedp")),
	)
	release := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := chromedp.Run(browserCtx); err != nil {
		release()
		return nil, nil, err
	}
	return browserCtx, release, nil
}

func (c *ChromeFetcher) discoverLink(ctx context.Context, landing, contains string) (string, error) {
	var href string
	script := `(function(needle) {
		var links = document.querySelectorAll('a[href]');
		for (var i = 0; i < links.length; i++) {
			if (links[i].href.indexOf(needle) !== -1) { return links[i].href; }
		}
		return '';
	})(` + strconv.Quote(contains) + `)`

	err := chromedp.Run(ctx,
		chromedp.Navigate(landing),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(script, &href),
	)
	if err != nil {
		return "", err
	}
	if href == "" {
		return "", fmt.Errorf("%w: no link containing %q on %s", domain.ErrNetwork, contains, landing)
	}
	return href, nil
}

func (c *ChromeFetcher) dismiss(ctx context.Context, selector string) {
	dismissCtx, cancel := context.WithTimeout(ctx, dismissTimeout)
	defer cancel()

	if err := chromedp.Run(dismissCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		c.logger.Debug("no dismissible overlay", "selector", selector)
		return
	}
	c.logger.Debug("overlay dismissed", "selector", selector)
}

// capture stores the page source and a screenshot for post-mortem debugging of a timeout.
func (c *ChromeFetcher) capture(tabCtx context.Context, pageURL string) {
	if c.cfg.DebugDir == "" {
		return
	}
	ctx, cancel := context.WithTimeout(tabCtx, captureTimeout)
	defer cancel()

	var (
		source     string
		screenshot []byte
	)
	if err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &source, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&screenshot),
	); err != nil {
		c.logger.Warn("debug capture failed", "url", pageURL, "error", err)
		return
	}

	if err := os.MkdirAll(c.cfg.DebugDir, 0o755); err != nil {
		c.logger.Warn("debug capture failed", "url", pageURL, "error", err)
		return
	}

	base := debugBaseName(pageURL, time.Now())
	sourcePath := filepath.Join(c.cfg.DebugDir, base+".html")
	shotPath := filepath.Join(c.cfg.DebugDir, base+".png")
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		c.logger.Warn("write page source", "path", sourcePath, "error", err)
	}
	if err := os.WriteFile(shotPath, screenshot, 0o644); err != nil {
		c.logger.Warn("write screenshot", "path", shotPath, "error", err)
	}
	c.logger.Info("saved timeout debug capture", "source", sourcePath, "screenshot", shotPath)
}

// classify maps chromedp failures onto the transport error taxonomy.
func (c *ChromeFetcher) classify(parent, waitCtx context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if errors.Is(err, domain.ErrNetwork) {
		return err
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrRenderTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}

func debugBaseName(pageURL string, at time.Time) string {
	host := "page"
	if parsed, err := url.Parse(pageURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return "debug_" + unsafeFileChars.ReplaceAllString(host, "_") + "_" + at.Format("20060102T150405")
}

// findChromeBinary locates Chrome/Chromium; an empty result lets chromedp use its own lookup.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}
