package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/franklinjsmith-create/SupplyVerify/model"
	"github.com/franklinjsmith-create/SupplyVerify/pkg/logger"
)

// BrowserConfig controls the headless browser used to render registry pages.
type BrowserConfig struct {
	Bin               string // chrome binary, empty lets the launcher pick or download one
	DebuggerURL       string // attach to a running browser instead of launching
	Headless          bool
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	ScopeTimeout      time.Duration
}

func (c *BrowserConfig) withDefaults() BrowserConfig {
	out := *c
	if out.NavigationTimeout <= 0 {
		out.NavigationTimeout = 30 * time.Second
	}
	if out.ElementTimeout <= 0 {
		out.ElementTimeout = 10 * time.Second
	}
	if out.ScopeTimeout <= 0 {
		out.ScopeTimeout = 15 * time.Second
	}
	return out
}

const (
	operationLabelJS = `() => !!document.body && document.body.innerText.includes("Operation Name")`
	scopeLabelJS     = `(labels) => {
		const text = document.body ? document.body.innerText : "";
		return labels.some((label) => text.includes(label));
	}`
)

// BrowserSource renders registry pages in a shared headless browser. The
// browser starts on first use; each fetch gets its own incognito context so
// concurrent fetches never share cookies or storage.
type BrowserSource struct {
	cfg BrowserConfig

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewBrowserSource(cfg BrowserConfig) *BrowserSource {
	return &BrowserSource{cfg: cfg.withDefaults()}
}

func (s *BrowserSource) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		s.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher = nil
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = browser
	return browser, nil
}

// Document implements DocumentSource.
func (s *BrowserSource) Document(ctx context.Context, url string) (*goquery.Document, error) {
	browser, err := s.ensureBrowser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("%w: incognito context: %v", ErrRegistryUnavailable, err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: create page: %v", ErrRegistryUnavailable, err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Timeout(s.cfg.NavigationTimeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("%w: navigate: %v", ErrRegistryUnavailable, err)
	}

	if err := page.Timeout(s.cfg.ElementTimeout).Wait(rod.Eval(operationLabelJS)); err != nil {
		return nil, fmt.Errorf("%w: page never showed operation details: %v", ErrRegistryUnavailable, err)
	}

	// Records without any scope table are legitimate; extraction decides.
	if err := page.Timeout(s.cfg.ScopeTimeout).Wait(rod.Eval(scopeLabelJS, model.ScopeNames)); err != nil {
		if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waiting for scope table: %v", ErrRegistryUnavailable, err)
		}
		logger.Debug(ctx, "scope labels not rendered, extracting anyway", "url", url)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read page: %v", ErrRegistryUnavailable, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", ErrRegistryUnavailable, err)
	}
	return doc, nil
}

// Close shuts the browser down. A later Document call starts a new one.
func (s *BrowserSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
	return err
}
