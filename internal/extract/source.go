package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Source is a parsed page shared by every strategy.
type Source struct {
	Doc  *goquery.Document
	HTML string
	// Text is the visible body text, text nodes separated by one space
	Text string
	URL  *url.URL
}

// Parse builds a Source from rendered HTML. pageURL may be empty.
func Parse(html, pageURL string) (*Source, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	src := &Source{
		Doc:  doc,
		HTML: html,
	}

	src.Text = VisibleText(doc.Find("body"))

	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err == nil && u.IsAbs() {
			src.URL = u
		}
	}
	return src, nil
}

// resolve turns href into an absolute http(s) URL relative to the page.
func (s *Source) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "data:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if s.URL == nil {
			return "", false
		}
		u = s.URL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func cleanText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
