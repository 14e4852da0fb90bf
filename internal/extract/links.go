package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// DefaultDetailPattern matches listing detail URLs.
	DefaultDetailPattern = regexp.MustCompile(`/house/[^/?#]+|/rent-detail-\d+\.html|^https?://rent\.591\.com\.tw/\d+$`)

	houseIDRe      = regexp.MustCompile(`/house/(.+)$`)
	rentDetailIDRe = regexp.MustCompile(`/rent-detail-(\d+)\.html$`)
)

// ListingLinks returns the detail URLs on a list page, absolute, deduplicated
// and in document order.
func ListingLinks(src *Source, pattern *regexp.Regexp) []string {
	if pattern == nil {
		pattern = DefaultDetailPattern
	}

	var links []string
	seen := make(map[string]bool)
	src.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, ok := src.resolve(href)
		if !ok || !pattern.MatchString(abs) {
			return
		}
		if u, err := url.Parse(abs); err == nil {
			u.Fragment = ""
			abs = u.String()
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links
}

// IdentityFromURL derives the stable listing key: the id after /house/ when
// present, otherwise the URL itself.
func IdentityFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = strings.TrimRight(u.Path, "/")
	}
	if m := houseIDRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if m := rentDetailIDRe.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return raw
}
