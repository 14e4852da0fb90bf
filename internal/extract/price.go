package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Plausible monthly rent range. Anything outside is treated as not found.
const (
	MinPlausibleRent = 5000
	MaxPlausibleRent = 500000
)

var (
	priceSelectors = []string{
		"span.text-3xl.font-bold.text-c-orange-700",
		".house-price",
		"[class*='price'] strong",
		"[class*='price']",
	}

	amountRe       = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d+`)
	monthlyPriceRe = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)\s*元\s*/\s*月`)
	bareNumberRe   = regexp.MustCompile(`\d{1,3}(?:,\d{3})+|\d{4,6}`)
)

func plausibleRent(n int) bool {
	return n >= MinPlausibleRent && n <= MaxPlausibleRent
}

func parseAmount(s string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

func priceStrategies() []Strategy[int] {
	return []Strategy[int]{
		priceFromElement,
		maxMonthlyPrice,
		mostFrequentAmount,
	}
}

// priceFromElement reads the dedicated price element.
func priceFromElement(src *Source) (int, bool) {
	for _, sel := range priceSelectors {
		text := cleanText(src.Doc.Find(sel).First())
		if text == "" {
			continue
		}
		m := amountRe.FindString(text)
		if n, ok := parseAmount(m); ok && plausibleRent(n) {
			return n, true
		}
	}
	return 0, false
}

// maxMonthlyPrice takes the largest plausible "amount 元/月" in the page.
func maxMonthlyPrice(src *Source) (int, bool) {
	best := 0
	for _, m := range monthlyPriceRe.FindAllStringSubmatch(src.Text, -1) {
		n, ok := parseAmount(m[1])
		if ok && plausibleRent(n) && n > best {
			best = n
		}
	}
	return best, best > 0
}

// mostFrequentAmount picks the plausible number that occurs most often.
// Ties go to the larger number. This can land on an unrelated figure and is
// kept as a last resort only.
func mostFrequentAmount(src *Source) (int, bool) {
	counts := make(map[int]int)
	for _, m := range bareNumberRe.FindAllString(src.Text, -1) {
		if n, ok := parseAmount(m); ok && plausibleRent(n) {
			counts[n]++
		}
	}

	best, bestCount := 0, 0
	for n, c := range counts {
		if c > bestCount || (c == bestCount && n > best) {
			best, bestCount = n, c
		}
	}
	return best, bestCount > 0
}
