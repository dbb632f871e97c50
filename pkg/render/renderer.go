// Package render implements the Renderer: a full-browser fetch of a
// candidate URL using a headless engine, extracting contact artifacts
// and content for the LLM Verifier. Adapted from the browser automation
// style in internal/browser (go-rod/rod session management): a shared,
// bounded browser pool with a launcher fallback, human-like pacing, and
// user-agent rotation.
package render

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/webleads/ingestion/pkg/errclass"
)

// ErrorKind enumerates RenderError's kind field.
type ErrorKind string

const (
	ErrorTimeout          ErrorKind = "timeout"
	ErrorNavigationFailed ErrorKind = "navigation-failed"
	ErrorBlockedByBotWall ErrorKind = "blocked-by-bot-wall"
)

// RenderError is the Renderer's typed failure.
type RenderError struct {
	Kind ErrorKind
	Err  error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render: %s: %v", e.Kind, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// Config controls pool size, timeouts, and the human-like pacing the
// Renderer uses to avoid looking like a bot.
type Config struct {
	MaxConcurrent   int           // default 8
	NavTimeout      time.Duration // default 30s
	AcquireTimeout  time.Duration // default 10s
	UserAgentPool   []string      // >=5 entries
	LaunchPath      string        // optional explicit browser binary
	Headless        bool
}

// Renderer owns a bounded pool of browser pages.
type Renderer struct {
	cfg     Config
	sem     chan struct{}
	mu      sync.Mutex
	browser *rod.Browser
	store   ArtifactStore
	nowFunc func() int64
}

// New builds a Renderer. The browser process is launched lazily on first
// Render call so construction never touches the network or filesystem.
func New(cfg Config) *Renderer {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if len(cfg.UserAgentPool) == 0 {
		cfg.UserAgentPool = defaultUserAgents
	}
	return &Renderer{
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		nowFunc: func() int64 { return time.Now().UnixMilli() },
	}
}

// WithArtifactStore attaches an ArtifactStore used to persist screenshots.
// Optional — a Renderer with no store simply drops screenshot bytes.
func (r *Renderer) WithArtifactStore(store ArtifactStore) *Renderer {
	r.store = store
	return r
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

func (r *Renderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.LaunchPath != "" {
		l = l.Bin(r.cfg.LaunchPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("render: launch browser: %w", err)
	}
	r.browser = rod.New().ControlURL(controlURL)
	if err := r.browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connect browser: %w", err)
	}
	return r.browser, nil
}

// acquire blocks for a free pool slot up to AcquireTimeout. A timed-out
// acquisition returns a RenderError{Kind: ErrorTimeout}.
func (r *Renderer) acquire(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.AcquireTimeout)
	defer timer.Stop()
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &RenderError{Kind: ErrorTimeout, Err: fmt.Errorf("render pool: acquire timed out after %s", r.cfg.AcquireTimeout)}
	}
}

func (r *Renderer) release() { <-r.sem }

func (r *Renderer) randomUserAgent() string {
	return r.cfg.UserAgentPool[rand.IntN(len(r.cfg.UserAgentPool))]
}

// humanDelay sleeps a random 200-1500ms between actions so the Renderer
// does not look like a bot.
func humanDelay(ctx context.Context) {
	d := time.Duration(200+rand.IntN(1300)) * time.Millisecond
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// Render performs a full-browser fetch of rawURL and extracts contact
// artifacts and content facts. businessID is used only as the screenshot
// artifact's storage key prefix.
func (r *Renderer) Render(ctx context.Context, businessID, rawURL string) (*RenderedPage, error) {
	if err := r.acquire(ctx); err != nil {
		var rerr *RenderError
		if asRenderError(err, &rerr) {
			return nil, rerr
		}
		return nil, errclass.Transient(err)
	}
	defer r.release()

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, errclass.Transient(&RenderError{Kind: ErrorNavigationFailed, Err: err})
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()

	page, err := browser.Context(navCtx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errclass.Transient(&RenderError{Kind: ErrorNavigationFailed, Err: err})
	}
	defer page.Close()

	ua := r.randomUserAgent()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		return nil, errclass.Transient(&RenderError{Kind: ErrorNavigationFailed, Err: err})
	}
	// Spoof the small set of navigator properties that common bot walls
	// check for (webdriver flag, plugin count).
	if _, err := page.EvalOnNewDocument(navigatorSpoofScript); err != nil {
		return nil, errclass.Transient(&RenderError{Kind: ErrorNavigationFailed, Err: err})
	}

	humanDelay(navCtx)

	if err := page.Navigate(rawURL); err != nil {
		if navCtx.Err() != nil {
			return nil, &RenderError{Kind: ErrorTimeout, Err: err}
		}
		return nil, &RenderError{Kind: ErrorNavigationFailed, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		if navCtx.Err() != nil {
			return nil, &RenderError{Kind: ErrorTimeout, Err: err}
		}
		return nil, &RenderError{Kind: ErrorNavigationFailed, Err: err}
	}

	humanDelay(navCtx)

	html, err := page.HTML()
	if err != nil {
		return nil, errclass.Transient(&RenderError{Kind: ErrorNavigationFailed, Err: err})
	}

	info := page.MustInfo()
	finalURL := info.URL

	if looksBlockedByBotWall(html) {
		return nil, &RenderError{Kind: ErrorBlockedByBotWall, Err: fmt.Errorf("challenge page detected at %s", finalURL)}
	}

	page.MustWaitStable()
	screenshot, err := page.Screenshot(false, nil)
	if err != nil {
		// Non-fatal: a screenshot failure should not sink an otherwise
		// successful render.
		screenshot = nil
	}

	result := extract(html, finalURL, info.Title, screenshot)
	StoreScreenshot(ctx, r.store, result, businessID, r.nowFunc(), screenshot)
	return result, nil
}

// navigatorSpoofScript overrides the small set of navigator properties
// naive bot walls probe: the automation flag and an empty plugins array.
const navigatorSpoofScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

func asRenderError(err error, target **RenderError) bool {
	if r, ok := err.(*RenderError); ok {
		*target = r
		return true
	}
	return false
}

// Close shuts down the underlying browser process.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
