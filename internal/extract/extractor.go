package extract

import (
	"errors"
	"time"

	"rentscout/server/internal/models"
)

// ErrNotExtractable is returned when a page has no usable title.
var ErrNotExtractable = errors.New("listing not extractable")

var titleSelectors = []string{"h1.mb-3.text-2xl.font-bold", "h1"}

// Extractor maps rendered detail pages to listing records. It is stateless
// apart from the clock and safe for concurrent use.
type Extractor struct {
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract parses html and extracts a record. City and district are left as
// unknown; the geo classifier fills them.
func (e *Extractor) Extract(html, pageURL, regionHint string) (*models.ListingRecord, error) {
	src, err := Parse(html, pageURL)
	if err != nil {
		return nil, ErrNotExtractable
	}
	return e.ExtractFrom(src, pageURL, regionHint)
}

// ExtractFrom extracts from an already parsed page.
func (e *Extractor) ExtractFrom(src *Source, pageURL, regionHint string) (*models.ListingRecord, error) {
	title, ok := First(src, titleStrategies()...)
	if !ok {
		return nil, ErrNotExtractable
	}

	rec := &models.ListingRecord{
		Identity:   IdentityFromURL(pageURL),
		URL:        pageURL,
		Title:      title,
		City:       models.Unknown,
		District:   models.Unknown,
		RegionHint: regionHint,
		Active:     true,
		FetchedAt:  e.now(),
	}

	rec.Price = Or(src, models.PriceUnknown, priceStrategies()...)
	extractAttributes(src, rec)
	rec.Address = Or(src, title, addressStrategies()...)
	rec.Images = Or[[]string](src, []string{}, galleryImages, sameSiteImages)

	p, ok := First[Point](src, coordsFromKeys, coordsFromMapLinks)
	rec.SetCoordinates(p.Lat, p.Lon, ok)

	return rec, nil
}

func titleStrategies() []Strategy[string] {
	strategies := make([]Strategy[string], 0, len(titleSelectors))
	for _, sel := range titleSelectors {
		sel := sel
		strategies = append(strategies, func(src *Source) (string, bool) {
			text := cleanText(src.Doc.Find(sel).First())
			return text, text != ""
		})
	}
	return strategies
}
