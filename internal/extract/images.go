package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rentscout/server/internal/models"
)

var (
	gallerySelectors = []string{"div.overflow-auto", "[class*='gallery']", "[class*='album']", "[class*='swiper']"}
	lazyAttributes   = []string{"data-src", "data-original", "data-lazy-src"}
)

// imageURL prefers the lazy-load attribute, which usually holds the full size asset.
func imageURL(src *Source, img *goquery.Selection) (string, bool) {
	for _, attr := range lazyAttributes {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return src.resolve(v)
		}
	}
	if v, ok := img.Attr("src"); ok {
		return src.resolve(v)
	}
	return "", false
}

func collectImages(src *Source, imgs *goquery.Selection, keep func(string) bool) ([]string, bool) {
	var out []string
	seen := make(map[string]bool)
	imgs.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		u, ok := imageURL(src, img)
		if !ok || seen[u] || !keep(u) {
			return true
		}
		seen[u] = true
		out = append(out, u)
		return len(out) < models.MaxImages
	})
	return out, len(out) > 0
}

func galleryImages(src *Source) ([]string, bool) {
	for _, sel := range gallerySelectors {
		if imgs, ok := collectImages(src, src.Doc.Find(sel).First().Find("img"), func(string) bool { return true }); ok {
			return imgs, true
		}
	}
	return nil, false
}

// sameSiteImages accepts any image hosted under the listing site's domain.
func sameSiteImages(src *Source) ([]string, bool) {
	if src.URL == nil {
		return nil, false
	}
	site := siteDomain(src.URL.Hostname())
	return collectImages(src, src.Doc.Find("img"), func(raw string) bool {
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		host := u.Hostname()
		return host == site || strings.HasSuffix(host, "."+site)
	})
}

// siteDomain drops the leftmost label of hosts with more than two labels:
// rent.591.com.tw -> 591.com.tw.
func siteDomain(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		return strings.Join(parts[1:], ".")
	}
	return host
}
