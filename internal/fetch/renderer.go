package fetch

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrSessionLost means the underlying renderer can no longer serve requests.
// It is fatal for the rest of the region that owns the session.
var ErrSessionLost = errors.New("renderer session lost")

// Page is a rendered document after redirects and script execution.
type Page struct {
	HTML     string
	FinalURL string
	Title    string
}

// PageRenderer turns a URL into rendered HTML.
//
// Render waits settle after navigation before reading the document. Errors
// wrapping ErrSessionLost are fatal; any other error is treated as transient.
type PageRenderer interface {
	Render(ctx context.Context, url string, settle time.Duration) (Page, error)
	IsAlive(ctx context.Context) error
	Close() error
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// PickUserAgent returns a random entry of pool, or of the built-in pool when empty.
func PickUserAgent(pool []string) string {
	if len(pool) == 0 {
		pool = defaultUserAgents
	}
	return pool[rand.Intn(len(pool))]
}

// Uniform returns a random duration in [min, max].
func Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min+1)))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
