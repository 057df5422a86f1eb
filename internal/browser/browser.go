// Package browser drives a live Chromium page with Rod and exposes it through
// the dom capability interfaces the iframe bridge works against.
package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// Options configures how the browser is started or attached to.
type Options struct {
	// Bin is the Chromium binary. Empty lets Rod pick or download one.
	Bin string
	// ControlURL attaches to an already running browser instead of launching.
	ControlURL string
	Headless   bool
	// Stealth opens pages with the go-rod/stealth evasions applied.
	Stealth bool
	// HumanTyping adds per-keystroke delays to TypeText.
	HumanTyping bool
	// Hijack, when set, serves every request of the page through it.
	Hijack func(*rod.Hijack)
	Logger *zap.Logger
}

// Session is one browser with one page.
type Session struct {
	Browser *rod.Browser
	Page    *rod.Page

	launcher *launcher.Launcher
	router   *rod.HijackRouter
	opts     Options
	log      *zap.Logger
}

// Open launches (or attaches to) a browser and opens a blank page.
func Open(ctx context.Context, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("browser")

	s := &Session{opts: opts, log: log}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(opts.Headless).
			// Hide the automation flags the portal checks for.
			Set("disable-blink-features", "AutomationControlled").
			Set("exclude-switches", "enable-automation").
			Set("no-first-run").
			Set("no-default-browser-check").
			Set("window-size", "1920,1080")
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		s.launcher = l
		controlURL = u
		log.Info("browser launched", zap.Bool("headless", opts.Headless), zap.String("bin", opts.Bin))
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.killLauncher()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.Browser = b

	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.Page = page

	if opts.Hijack != nil {
		router := page.HijackRequests()
		if err := router.Add("*", "", opts.Hijack); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("hijack requests: %w", err)
		}
		go router.Run()
		s.router = router
	}

	return s, nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p := s.Page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	s.log.Info("navigated", zap.String("url", url))
	return nil
}

// Document returns the page's top-level document.
func (s *Session) Document() *Document {
	return NewDocument(s.Page, s.opts.HumanTyping)
}

// Close tears down the hijack router, the browser and the launched process.
func (s *Session) Close() error {
	var err error
	if s.router != nil {
		err = s.router.Stop()
	}
	if s.Browser != nil {
		if cerr := s.Browser.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.killLauncher()
	return err
}

func (s *Session) killLauncher() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
}
