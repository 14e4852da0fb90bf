package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTTPRenderer fetches pages without executing scripts. It suits sites that
// serve listing markup statically.
type HTTPRenderer struct {
	collector *colly.Collector
}

func NewHTTPRenderer(userAgents []string, timeout time.Duration) *HTTPRenderer {
	c := colly.NewCollector(
		colly.UserAgent(PickUserAgent(userAgents)),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &HTTPRenderer{collector: c}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string, settle time.Duration) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	c := r.collector.Clone()
	var p Page
	c.OnResponse(func(resp *colly.Response) {
		p.HTML = string(resp.Body)
		p.FinalURL = resp.Request.URL.String()
	})
	c.OnHTML("title", func(e *colly.HTMLElement) {
		if p.Title == "" {
			p.Title = strings.TrimSpace(e.Text)
		}
	})

	if err := c.Visit(url); err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if err := Sleep(ctx, settle); err != nil {
		return Page{}, err
	}
	return p, nil
}

// IsAlive always succeeds; there is no long-lived session behind plain HTTP.
func (r *HTTPRenderer) IsAlive(context.Context) error {
	return nil
}

func (r *HTTPRenderer) Close() error {
	return nil
}
