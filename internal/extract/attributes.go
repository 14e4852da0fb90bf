package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rentscout/server/internal/models"
)

var (
	labelContainers = []string{"div.base_info", "[class*='base-info']", "[class*='house-info']", "[class*='pattern']"}

	areaTextRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*坪`)
	decimalRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	layoutTextRe  = regexp.MustCompile(`\d+\s*房(?:\s*\d+\s*廳)?(?:\s*\d+\s*衛)?`)
	floorTextRe   = regexp.MustCompile(`(?:B?\d+)\s*F\s*/\s*\d+\s*F|\d+\s*樓\s*/\s*\d+\s*樓`)
	typeTextRe    = regexp.MustCompile(`整層住家|獨立套房|分租套房|雅房`)
	parkingTextRe = regexp.MustCompile(`平面車位|機械車位|有車位|無車位`)
)

// labeledValue finds a label span inside a key-value block and returns the
// text of the element right after it.
func labeledValue(label string) Strategy[string] {
	return func(src *Source) (string, bool) {
		var value string
		src.Doc.Find(strings.Join(labelContainers, ", ")).EachWithBreak(func(_ int, block *goquery.Selection) bool {
			block.Find("span, dt, th, div, label").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if !isLabel(s, label) {
					return true
				}
				value = cleanText(s.Next())
				return value == ""
			})
			return value == ""
		})
		return value, value != ""
	}
}

// looseLabeledValue applies the same label lookup to the whole document.
func looseLabeledValue(label string) Strategy[string] {
	return func(src *Source) (string, bool) {
		var value string
		src.Doc.Find("span, dt, th, label, td, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !isLabel(s, label) {
				return true
			}
			value = cleanText(s.Next())
			return value == ""
		})
		return value, value != ""
	}
}

// isLabel matches short elements whose own text contains label.
func isLabel(s *goquery.Selection, label string) bool {
	if s.Children().Length() > 0 {
		return false
	}
	text := cleanText(s)
	return strings.Contains(text, label) && len([]rune(text)) <= 8
}

func textPattern(re *regexp.Regexp) Strategy[string] {
	return func(src *Source) (string, bool) {
		m := strings.TrimSpace(re.FindString(src.Text))
		return m, m != ""
	}
}

// houseTypeLabeled combines current use and building type when both exist.
func houseTypeLabeled(src *Source) (string, bool) {
	status, hasStatus := labeledValue("現況")(src)
	kind, hasKind := labeledValue("型態")(src)
	switch {
	case hasStatus && hasKind:
		return status + " (" + kind + ")", true
	case hasKind:
		return kind, true
	case hasStatus:
		return status, true
	}
	return "", false
}

func extractArea(src *Source, rec *models.ListingRecord) {
	detail, ok := First(src,
		labeledValue("坪數"),
		looseLabeledValue("坪數"),
		textPattern(areaTextRe),
	)
	if !ok {
		return
	}
	rec.SizeDetail = &detail
	if m := decimalRe.FindString(detail); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			rec.SizeArea = &v
		}
	}
}

func extractAttributes(src *Source, rec *models.ListingRecord) {
	extractArea(src, rec)

	rec.Layout = Or(src, models.NotProvided,
		labeledValue("格局"),
		looseLabeledValue("格局"),
		textPattern(layoutTextRe),
	)
	rec.FloorInfo = Or(src, models.NotProvided,
		labeledValue("樓層"),
		looseLabeledValue("樓層"),
		textPattern(floorTextRe),
	)
	rec.HouseType = Or[string](src, models.NotProvided,
		houseTypeLabeled,
		looseLabeledValue("型態"),
		textPattern(typeTextRe),
	)
	rec.Parking = Or(src, models.NotProvided,
		labeledValue("車位"),
		looseLabeledValue("車位"),
		textPattern(parkingTextRe),
	)
}
