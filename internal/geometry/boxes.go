package geometry

import (
	"sort"

	"github.com/paulmach/orb"
)

// Tier orders boxes from most to least specific.
type Tier int

const (
	TierSubRegion Tier = iota
	TierCityCore
	TierMetro
	TierNeighbour
)

func (t Tier) String() string {
	switch t {
	case TierSubRegion:
		return "sub_region"
	case TierCityCore:
		return "city_core"
	case TierMetro:
		return "metro"
	case TierNeighbour:
		return "neighbour"
	default:
		return "unknown"
	}
}

// Box is a named lat/lon rectangle. Bound uses orb's (lon, lat) order.
type Box struct {
	Name  string
	City  string
	Tier  Tier
	Bound orb.Bound
}

// NewBox builds a box from latitude and longitude ranges.
func NewBox(name, city string, tier Tier, minLat, maxLat, minLon, maxLon float64) Box {
	return Box{
		Name: name,
		City: city,
		Tier: tier,
		Bound: orb.Bound{
			Min: orb.Point{minLon, minLat},
			Max: orb.Point{maxLon, maxLat},
		},
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b Box) Contains(lat, lon float64) bool {
	return b.Bound.Contains(orb.Point{lon, lat})
}

// DefaultBoxes covers the Taipei metro area and its neighbour.
func DefaultBoxes() []Box {
	return []Box{
		NewBox("台北市", "台北市", TierCityCore, 24.95, 25.30, 121.45, 121.65),
		NewBox("新北市", "新北市", TierMetro, 24.60, 25.40, 121.20, 122.00),
		NewBox("桃園市", "桃園市", TierNeighbour, 24.60, 25.12, 120.95, 121.50),
		NewBox("信義區", "台北市", TierSubRegion, 25.015, 25.045, 121.555, 121.595),
		NewBox("大安區", "台北市", TierSubRegion, 25.010, 25.045, 121.525, 121.555),
		NewBox("中正區", "台北市", TierSubRegion, 25.020, 25.050, 121.500, 121.525),
		NewBox("板橋區", "新北市", TierSubRegion, 24.990, 25.030, 121.440, 121.480),
		NewBox("中壢區", "桃園市", TierSubRegion, 24.930, 24.990, 121.190, 121.250),
	}
}

// BoxClassifier resolves a point to the most specific box containing it.
// Wide boxes overlap, so evaluation follows tier order regardless of the
// order boxes were declared in.
type BoxClassifier struct {
	boxes []Box
}

func NewBoxClassifier(boxes []Box) *BoxClassifier {
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tier < sorted[j].Tier
	})
	return &BoxClassifier{boxes: sorted}
}

// Classify returns the first box, in tier order, that contains the point.
func (c *BoxClassifier) Classify(lat, lon float64) (Box, bool) {
	for _, b := range c.boxes {
		if b.Contains(lat, lon) {
			return b, true
		}
	}
	return Box{}, false
}

// Label is the cross-check label stored on a listing, empty when no box matches.
func (c *BoxClassifier) Label(lat, lon float64) string {
	if b, ok := c.Classify(lat, lon); ok {
		return b.Name
	}
	return ""
}

// CityOf returns the city implied by a box label.
func (c *BoxClassifier) CityOf(label string) (string, bool) {
	for _, b := range c.boxes {
		if b.Name == label {
			return b.City, true
		}
	}
	return "", false
}
