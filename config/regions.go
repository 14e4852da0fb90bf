package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

var ErrInvalidRegion = errors.New("invalid region target")

// Region is one crawl target: a listing index for a region, walked page by page.
type Region struct {
	Name        string `yaml:"name" json:"name"`
	EntryURL    string `yaml:"entry_url" json:"entry_url"`
	TargetCount int    `yaml:"target_count" json:"target_count"`
	MaxPages    int    `yaml:"max_pages" json:"max_pages"`
}

type regionsFile struct {
	Regions []Region `yaml:"regions"`
}

// DefaultRegions is used when no regions file is present.
var DefaultRegions = []Region{
	{
		Name:        "台北市",
		EntryURL:    "https://rent.591.com.tw/list?region=1",
		TargetCount: 100,
		MaxPages:    10,
	},
	{
		Name:        "新北市",
		EntryURL:    "https://rent.591.com.tw/list?region=3",
		TargetCount: 100,
		MaxPages:    10,
	},
}

// Validate checks a region target and fills defaults for zero counts.
func (r *Region) Validate() error {
	r.Name = NormalizeCity(strings.TrimSpace(r.Name))
	if r.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidRegion)
	}
	u, err := url.Parse(r.EntryURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s has bad entry url %q", ErrInvalidRegion, r.Name, r.EntryURL)
	}
	if r.TargetCount < 0 || r.MaxPages < 0 {
		return fmt.Errorf("%w: %s has negative limits", ErrInvalidRegion, r.Name)
	}
	if r.TargetCount == 0 {
		r.TargetCount = 100
	}
	if r.MaxPages == 0 {
		r.MaxPages = 10
	}
	return nil
}

// LoadRegions reads region targets from a YAML file. A missing file yields DefaultRegions.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultRegions(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read regions file: %w", err)
	}
	return ParseRegions(data)
}

// ParseRegions decodes and validates a YAML regions document.
func ParseRegions(data []byte) ([]Region, error) {
	var doc regionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse regions: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("%w: no regions configured", ErrInvalidRegion)
	}

	seen := make(map[string]bool, len(doc.Regions))
	for i := range doc.Regions {
		if err := doc.Regions[i].Validate(); err != nil {
			return nil, err
		}
		if seen[doc.Regions[i].Name] {
			return nil, fmt.Errorf("%w: duplicate region %s", ErrInvalidRegion, doc.Regions[i].Name)
		}
		seen[doc.Regions[i].Name] = true
	}
	return doc.Regions, nil
}

func defaultRegions() []Region {
	regions := make([]Region, len(DefaultRegions))
	copy(regions, DefaultRegions)
	return regions
}
