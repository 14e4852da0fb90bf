package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Backoff is a uniform random wait window.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

func (b Backoff) next() time.Duration {
	return Uniform(b.Min, b.Max)
}

// SessionOptions configures retry behaviour of a Session.
type SessionOptions struct {
	MaxRetries int
	// Settle is the wait after navigation on every attempt
	Settle Backoff
	// Retry is the wait between failed attempts
	Retry Backoff
	// Marker decides whether a rendered page is the page we asked for
	Marker func(Page) bool
	// RequestsPerSecond caps this session's render rate; 0 disables the cap
	RequestsPerSecond float64
	// Sleep is replaceable for tests
	Sleep func(context.Context, time.Duration) error
}

// DefaultSessionOptions returns the production retry settings.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		MaxRetries: 3,
		Settle:     Backoff{Min: 3 * time.Second, Max: 6 * time.Second},
		Retry:      Backoff{Min: 5 * time.Second, Max: 10 * time.Second},
		Marker:     ListingSiteMarker,
		Sleep:      Sleep,
	}
}

// ListingSiteMarker accepts pages titled as rental pages or served from a house URL.
func ListingSiteMarker(p Page) bool {
	return strings.Contains(p.Title, "租屋") || strings.Contains(p.FinalURL, "house")
}

// Session wraps a PageRenderer with retries and liveness checks.
type Session struct {
	renderer PageRenderer
	opts     SessionOptions
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

// NewSession creates a session over renderer
func NewSession(renderer PageRenderer, opts SessionOptions, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Marker == nil {
		opts.Marker = ListingSiteMarker
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}

	s := &Session{
		renderer: renderer,
		opts:     opts,
		logger:   logger,
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return s
}

// Load renders url with up to MaxRetries attempts.
//
// The bool is false when every attempt failed or produced a page that does not pass
// the marker check. The error is only set for ErrSessionLost and context cancellation.
func (s *Session) Load(ctx context.Context, url string) (Page, bool, error) {
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := s.opts.Sleep(ctx, s.opts.Retry.next()); err != nil {
				return Page{}, false, err
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return Page{}, false, err
			}
		}

		entry := s.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt,
		})

		page, err := s.renderer.Render(ctx, url, s.opts.Settle.next())
		if err != nil {
			if errors.Is(err, ErrSessionLost) {
				entry.WithError(err).Error("Renderer session lost")
				return Page{}, false, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Page{}, false, ctxErr
			}
			entry.WithError(err).Warn("Page load failed")
			continue
		}

		if page.HTML != "" && s.opts.Marker(page) {
			return page, true, nil
		}
		entry.WithFields(logrus.Fields{
			"final_url": page.FinalURL,
			"title":     page.Title,
		}).Warn("Loaded page did not match expected site")
	}

	s.logger.WithField("url", url).Warnf("Giving up after %d attempts", s.opts.MaxRetries)
	return Page{}, false, nil
}

// IsAlive probes the renderer. Any failure is reported as ErrSessionLost.
func (s *Session) IsAlive(ctx context.Context) error {
	if err := s.renderer.IsAlive(ctx); err != nil {
		if errors.Is(err, ErrSessionLost) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return nil
}

// Close releases the underlying renderer.
func (s *Session) Close() error {
	return s.renderer.Close()
}

// SessionFactory opens a fresh session; each region worker owns one.
type SessionFactory func(ctx context.Context) (*Session, error)
