package geometry

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentscout/server/internal/models"
)

func TestBoxClassifier_Classify(t *testing.T) {
	c := NewBoxClassifier(DefaultBoxes())

	tests := []struct {
		name     string
		lat, lon float64
		wantName string
		wantTier Tier
		wantOK   bool
	}{
		{"sub-region wins over overlapping metro and core boxes", 25.033, 121.565, "信義區", TierSubRegion, true},
		{"city core outside any sub-region", 25.10, 121.52, "台北市", TierCityCore, true},
		{"metro box outside the core", 25.17, 121.44, "新北市", TierMetro, true},
		{"metro beats neighbour in the overlap zone", 25.00, 121.30, "新北市", TierMetro, true},
		{"neighbour city", 24.95, 121.10, "桃園市", TierNeighbour, true},
		{"outside every box", 22.63, 120.30, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, ok := c.Classify(tt.lat, tt.lon)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantName, box.Name)
				assert.Equal(t, tt.wantTier, box.Tier)
			}
		})
	}
}

func TestBoxClassifier_DeclarationOrderDoesNotMatter(t *testing.T) {
	boxes := []Box{
		NewBox("metro", "M", TierMetro, 24.0, 26.0, 121.0, 122.0),
		NewBox("core", "C", TierCityCore, 24.9, 25.3, 121.4, 121.7),
		NewBox("precise", "C", TierSubRegion, 25.0, 25.1, 121.5, 121.6),
	}
	c := NewBoxClassifier(boxes)

	assert.Equal(t, "precise", c.Label(25.05, 121.55))
	assert.Equal(t, "core", c.Label(25.2, 121.45))
	assert.Equal(t, "metro", c.Label(24.5, 121.1))
	assert.Equal(t, "", c.Label(10, 10))

	assert.Equal(t, "metro", boxes[0].Name, "caller slice is not reordered")
}

func TestBoxClassifier_CityOf(t *testing.T) {
	c := NewBoxClassifier(DefaultBoxes())
	city, ok := c.CityOf("板橋區")
	assert.True(t, ok)
	assert.Equal(t, "新北市", city)

	_, ok = c.CityOf("missing")
	assert.False(t, ok)
}

func TestFeatureCollection(t *testing.T) {
	var withPoint models.ListingRecord
	withPoint.Identity = "1"
	withPoint.Title = "A"
	withPoint.SetCoordinates(25.03, 121.56, true)

	fc := FeatureCollection([]models.ListingRecord{withPoint, {Identity: "2", Title: "no point"}})
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{121.56, 25.03}, f.Geometry)
	assert.Equal(t, "1", f.Properties["identity"])
}

func TestSummarize(t *testing.T) {
	c := NewBoxClassifier(DefaultBoxes())

	agree := models.ListingRecord{City: "台北市", Price: 20000}
	agree.SetCoordinates(25.033, 121.565, true)
	disagree := models.ListingRecord{City: "新北市", Price: 10000}
	disagree.SetCoordinates(25.033, 121.565, true)
	noPoint := models.ListingRecord{City: "台北市", Price: 0}

	stats := c.Summarize([]models.ListingRecord{agree, disagree, noPoint})
	require.Len(t, stats, 2)

	assert.Equal(t, CityStats{City: "台北市", Listings: 2, AveragePrice: 20000, WithCoordinates: 1, BoxAgrees: 1}, stats[0])
	assert.Equal(t, CityStats{City: "新北市", Listings: 1, AveragePrice: 10000, WithCoordinates: 1, BoxDisagrees: 1}, stats[1])
}
