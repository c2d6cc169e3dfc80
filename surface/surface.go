// Package surface owns the embedded browser window rendering the
// third-party site. The host observes it only through script evaluation
// and an exposed completion callback; the site has no native hooks.
package surface

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/ekvall/kartklickare/bridge"
	"github.com/ekvall/kartklickare/logger"
)

// Options configures the embedded browser window.
type Options struct {
	StartURL          string
	DataDir           string // persistent profile dir, keeps the signed-in session
	Width             int
	Height            int
	Headless          bool
	NavigationTimeout time.Duration
}

// Surface is a live embedded browser window.
type Surface struct {
	browser    *rod.Browser
	page       *rod.Page
	stopExpose func() error
}

// Launch starts the browser with a persistent profile and opens the
// start URL.
func Launch(ctx context.Context, opts Options) (*Surface, error) {
	l := launcher.New().
		Headless(opts.Headless).
		UserDataDir(opts.DataDir)
	if opts.Width > 0 && opts.Height > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: opts.StartURL})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if opts.Width > 0 && opts.Height > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			logger.Warn("failed to set viewport", "error", err)
		}
	}

	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		// The poller tolerates a slow first load; it samples every tick.
		logger.Warn("initial page load not confirmed", "error", err)
	}

	return &Surface{browser: browser, page: page}, nil
}

// ExposeCompletion binds the host completion entry point into the page
// under bridge.CallbackName. The binding survives navigations. Each
// callback runs on its own short-lived goroutine so a slow consumer
// never stalls the page's event loop.
func (s *Surface) ExposeCompletion(fn func(id string, payload map[string]any)) error {
	stop, err := s.page.Expose(bridge.CallbackName, func(g gson.JSON) (interface{}, error) {
		id := g.Get("id").Str()
		payload, _ := g.Get("payload").Val().(map[string]any)
		go fn(id, payload)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose completion callback: %w", err)
	}
	s.stopExpose = stop
	return nil
}

// Eval runs a self-contained script in the page without awaiting its
// result. Satisfies bridge.Evaluator.
func (s *Surface) Eval(js string) error {
	_, err := s.page.Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: false,
	})
	if err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// CurrentPath returns the path of the page's displayed location.
func (s *Surface) CurrentPath() (string, error) {
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("read page info: %w", err)
	}
	return pathFromURL(info.URL), nil
}

// Close tears down the page and the browser.
func (s *Surface) Close() error {
	if s.stopExpose != nil {
		_ = s.stopExpose()
	}
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

func pathFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}
