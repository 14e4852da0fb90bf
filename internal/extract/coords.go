package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Plausible bounds for listings in the target country.
const (
	MinLatitude  = 20.0
	MaxLatitude  = 30.0
	MinLongitude = 115.0
	MaxLongitude = 125.0
)

// Point is a validated coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

var (
	latPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"lat"\s*:\s*"?(-?\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)"latitude"\s*:\s*"?(-?\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\blat(?:itude)?\s*[=:]\s*"?(-?\d+(?:\.\d+)?)`),
	}
	lonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"lng"\s*:\s*"?(-?\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)"longitude"\s*:\s*"?(-?\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)\b(?:lng|lon|longitude)\s*[=:]\s*"?(-?\d+(?:\.\d+)?)`),
	}

	mapLinkSelectors = "a[href*='google.com/maps'], a[href*='maps.google'], a[href*='goo.gl/maps'], iframe[src*='google.com/maps']"

	atPairRe    = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)
	latLngKVRe  = regexp.MustCompile(`lat=(-?\d+\.\d+).*?lng=(-?\d+\.\d+)`)
	plainPairRe = regexp.MustCompile(`^\s*(-?\d+\.\d+)\s*,\s*(-?\d+\.\d+)\s*$`)
)

func validLatitude(v float64) bool  { return v >= MinLatitude && v <= MaxLatitude }
func validLongitude(v float64) bool { return v >= MinLongitude && v <= MaxLongitude }

// ValidPoint reports whether lat/lon fall inside the plausible bounds.
func ValidPoint(lat, lon float64) bool {
	return validLatitude(lat) && validLongitude(lon)
}

func firstValid(patterns []*regexp.Regexp, text string, valid func(float64) bool) (float64, bool) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil && valid(v) {
				return v, true
			}
		}
	}
	return 0, false
}

// coordsFromKeys scans the raw markup, including inline scripts.
func coordsFromKeys(src *Source) (Point, bool) {
	lat, ok := firstValid(latPatterns, src.HTML, validLatitude)
	if !ok {
		return Point{}, false
	}
	lon, ok := firstValid(lonPatterns, src.HTML, validLongitude)
	if !ok {
		return Point{}, false
	}
	return Point{Lat: lat, Lon: lon}, true
}

func coordsFromMapLinks(src *Source) (Point, bool) {
	var found Point
	var ok bool
	src.Doc.Find(mapLinkSelectors).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link, exists := s.Attr("href")
		if !exists {
			link, exists = s.Attr("src")
		}
		if !exists {
			return true
		}
		found, ok = ParseMapLink(link)
		return !ok
	})
	return found, ok
}

// ParseMapLink pulls a coordinate pair out of a map URL. It understands
// query=lat,lng (also q, ll, center), @lat,lng and lat=..&lng=.. forms.
func ParseMapLink(link string) (Point, bool) {
	if u, err := url.Parse(link); err == nil {
		q := u.Query()
		for _, key := range []string{"query", "q", "ll", "center"} {
			if m := plainPairRe.FindStringSubmatch(q.Get(key)); m != nil {
				if p, ok := pointFrom(m[1], m[2]); ok {
					return p, true
				}
			}
		}
	}

	for _, re := range []*regexp.Regexp{atPairRe, latLngKVRe} {
		if m := re.FindStringSubmatch(link); m != nil {
			if p, ok := pointFrom(m[1], m[2]); ok {
				return p, true
			}
		}
	}
	return Point{}, false
}

func pointFrom(latText, lonText string) (Point, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	if err != nil {
		return Point{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonText), 64)
	if err != nil {
		return Point{}, false
	}
	if !ValidPoint(lat, lon) {
		return Point{}, false
	}
	return Point{Lat: lat, Lon: lon}, true
}
