package geocoding

import (
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"rentscout/server/config"
	"rentscout/server/internal/extract"
	"rentscout/server/internal/models"
)

// Signal names which source produced a resolution.
type Signal string

const (
	SignalBreadcrumb Signal = "breadcrumb"
	SignalText       Signal = "text"
	SignalAddress    Signal = "address"
	SignalHint       Signal = "hint"
	SignalNone       Signal = "none"
)

// Resolution is a best-effort (city, district) pair.
type Resolution struct {
	City     string `json:"city"`
	District string `json:"district"`
	Signal   Signal `json:"signal"`
}

var (
	breadcrumbSelectors = []string{
		"nav.flex.space-x-2",
		"nav[class*='breadcrumb']",
		"div[class*='breadcrumb']",
		".breadcrumb",
		"nav",
		"[class*='nav']",
	}
	regionSuffixes = []string{"區", "市", "縣", "鄉", "鎮"}
	rentalKeywords = `(?:出租|租屋|房屋)`
)

// Classifier resolves region labels from page signals, strongest first:
// breadcrumb links, a context-checked scan for known districts, then the
// address prefix. The caller's region hint only fills a city nothing else
// resolved.
type Classifier struct {
	districts []string
	contexts  map[string][]*regexp.Regexp
	addressRe *regexp.Regexp
	logger    *logrus.Logger
}

func NewClassifier(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	c := &Classifier{
		districts: config.KnownDistricts(),
		contexts:  make(map[string][]*regexp.Regexp),
		logger:    logger,
	}
	for _, d := range c.districts {
		q := regexp.QuoteMeta(d)
		c.contexts[d] = []*regexp.Regexp{
			regexp.MustCompile(q + `[^區市縣]{0,20}` + rentalKeywords),
			regexp.MustCompile(`(?:位於|在)\s*` + q),
			regexp.MustCompile(q + `(?:的|地區)`),
		}
	}

	cities := make([]string, len(config.TopLevelCities))
	for i, name := range config.TopLevelCities {
		cities[i] = regexp.QuoteMeta(name)
	}
	c.addressRe = regexp.MustCompile(`^(` + strings.Join(cities, "|") + `)([^\s\d,，]{1,4}?[區鄉鎮市])`)
	return c
}

// Resolve combines the page and address signals into a Resolution.
func (c *Classifier) Resolve(doc *goquery.Document, address, regionHint string) Resolution {
	var res Resolution

	if doc != nil {
		if city, district := c.fromBreadcrumb(doc); city != "" || district != "" {
			res = Resolution{City: city, District: district, Signal: SignalBreadcrumb}
		}
		if res.District == "" {
			if d := c.fromText(doc); d != "" {
				res.District = d
				if res.Signal == "" {
					res.Signal = SignalText
				}
			}
		}
	}

	if res.District == "" || res.City == "" {
		if city, district, ok := c.fromAddress(address); ok {
			if res.City == "" {
				res.City = city
			}
			if res.District == "" {
				res.District = district
			}
			if res.Signal == "" {
				res.Signal = SignalAddress
			}
		}
	}

	if res.City == "" && res.District != "" {
		if city, ok := config.CityOfDistrict(res.District); ok {
			res.City = city
		}
	}
	if res.City == "" && strings.TrimSpace(regionHint) != "" {
		res.City = config.NormalizeCity(strings.TrimSpace(regionHint))
		if res.Signal == "" {
			res.Signal = SignalHint
		}
	}

	if res.City == "" {
		res.City = models.Unknown
	}
	if res.District == "" {
		res.District = models.Unknown
	}
	if res.Signal == "" {
		res.Signal = SignalNone
	}
	return res
}

// Apply resolves and writes the labels onto rec.
func (c *Classifier) Apply(doc *goquery.Document, rec *models.ListingRecord) Resolution {
	res := c.Resolve(doc, rec.Address, rec.RegionHint)
	rec.City = res.City
	rec.District = res.District

	c.logger.WithFields(logrus.Fields{
		"identity": rec.Identity,
		"city":     res.City,
		"district": res.District,
		"signal":   res.Signal,
	}).Debug("Resolved listing region")
	return res
}

// fromBreadcrumb scans the first breadcrumb-like container that mentions a
// region suffix. The first district link wins; city links are remembered.
func (c *Classifier) fromBreadcrumb(doc *goquery.Document) (city, district string) {
	for _, sel := range breadcrumbSelectors {
		doc.Find(sel).EachWithBreak(func(_ int, nav *goquery.Selection) bool {
			if !containsAny(nav.Text(), regionSuffixes) {
				return true
			}
			nav.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				text := config.NormalizeCity(strings.TrimSpace(a.Text()))
				switch {
				case strings.HasSuffix(text, "區"):
					district = text
					return false
				case strings.HasSuffix(text, "市"), strings.HasSuffix(text, "縣"):
					city = text
				}
				return true
			})
			return false
		})
		if district != "" {
			return city, district
		}
	}
	return city, district
}

// fromText accepts a known district only where the surrounding text shows it
// describes the listing, or where it is the full text of a link.
func (c *Classifier) fromText(doc *goquery.Document) string {
	text := extract.VisibleText(doc.Find("body"))

	for _, d := range c.districts {
		if !strings.Contains(text, d) {
			continue
		}
		for _, re := range c.contexts[d] {
			if re.MatchString(text) {
				return d
			}
		}
		if anchorEquals(doc, d) {
			return d
		}
	}
	return ""
}

func (c *Classifier) fromAddress(address string) (city, district string, ok bool) {
	m := c.addressRe.FindStringSubmatch(config.NormalizeCity(strings.TrimSpace(address)))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func anchorEquals(doc *goquery.Document, text string) bool {
	found := false
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		found = strings.TrimSpace(a.Text()) == text
		return !found
	})
	return found
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
