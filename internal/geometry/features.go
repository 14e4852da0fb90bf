package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"rentscout/server/internal/models"
)

// FeatureCollection turns listings with coordinates into GeoJSON points.
func FeatureCollection(records []models.ListingRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range records {
		lat, lon, ok := records[i].Coordinates()
		if !ok {
			continue
		}
		feature := geojson.NewFeature(orb.Point{lon, lat})
		feature.ID = records[i].Identity
		feature.Properties = geojson.Properties{
			"identity": records[i].Identity,
			"title":    records[i].Title,
			"price":    records[i].Price,
			"city":     records[i].City,
			"district": records[i].District,
			"geo_box":  records[i].GeoBox,
			"url":      records[i].URL,
			"active":   records[i].Active,
		}
		fc.Append(feature)
	}
	return fc
}

// CityStats compares resolved cities with the coordinate boxes.
type CityStats struct {
	City            string  `json:"city"`
	Listings        int     `json:"listings"`
	AveragePrice    float64 `json:"average_price"`
	WithCoordinates int     `json:"with_coordinates"`
	BoxAgrees       int     `json:"box_agrees"`
	BoxDisagrees    int     `json:"box_disagrees"`
}

// Summarize groups listings by resolved city. Listings without a price are
// left out of the average.
func (c *BoxClassifier) Summarize(records []models.ListingRecord) []CityStats {
	byCity := make(map[string]*CityStats)
	priced := make(map[string]int)
	for i := range records {
		r := &records[i]
		st, ok := byCity[r.City]
		if !ok {
			st = &CityStats{City: r.City}
			byCity[r.City] = st
		}
		st.Listings++
		if r.Price > 0 {
			st.AveragePrice += float64(r.Price)
			priced[r.City]++
		}

		lat, lon, ok := r.Coordinates()
		if !ok {
			continue
		}
		st.WithCoordinates++
		box, ok := c.Classify(lat, lon)
		if ok && box.City == r.City {
			st.BoxAgrees++
		} else {
			st.BoxDisagrees++
		}
	}

	out := make([]CityStats, 0, len(byCity))
	for city, st := range byCity {
		if n := priced[city]; n > 0 {
			st.AveragePrice /= float64(n)
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Listings != out[j].Listings {
			return out[i].Listings > out[j].Listings
		}
		return out[i].City < out[j].City
	})
	return out
}
