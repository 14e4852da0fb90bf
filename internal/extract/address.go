package extract

import (
	"regexp"
	"strings"

	"rentscout/server/config"
)

var (
	addressSelectors = []string{".address", "[class*='address']", "span.load-map"}
	addressRe        = buildAddressRe(config.TopLevelCities)
)

func buildAddressRe(cities []string) *regexp.Regexp {
	names := make([]string, 0, 2*len(cities))
	for _, c := range cities {
		names = append(names, regexp.QuoteMeta(c))
		if alt := strings.Replace(c, "台", "臺", 1); alt != c {
			names = append(names, regexp.QuoteMeta(alt))
		}
	}
	return regexp.MustCompile(`(?:` + strings.Join(names, "|") + `)[^\s,，。;；:：<>()（）]{2,40}`)
}

func addressFromSelector(src *Source) (string, bool) {
	for _, sel := range addressSelectors {
		text := cleanText(src.Doc.Find(sel).First())
		if text != "" && len([]rune(text)) <= 80 {
			return text, true
		}
	}
	return "", false
}

func addressFromText(src *Source) (string, bool) {
	m := addressRe.FindString(src.Text)
	return m, m != ""
}

func addressStrategies() []Strategy[string] {
	return []Strategy[string]{
		labeledValue("地址"),
		looseLabeledValue("地址"),
		addressFromSelector,
		addressFromText,
	}
}
