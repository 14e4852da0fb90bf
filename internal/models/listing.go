package models

import "time"

// Sentinels for fields that could not be determined.
const (
	Unknown      = "未知"
	NotProvided  = "未提供"
	PriceUnknown = 0
	MaxImages    = 2
)

// ListingRecord is one rental listing as extracted and persisted.
type ListingRecord struct {
	ID         int64      `json:"-" gorm:"primaryKey"`
	Identity   string     `json:"identity" gorm:"type:varchar(255);not null;uniqueIndex"`
	URL        string     `json:"url" gorm:"not null"`
	Title      string     `json:"title" gorm:"not null"`
	Price      int        `json:"price" gorm:"not null;index"`
	SizeArea   *float64   `json:"size_area"`
	SizeDetail *string    `json:"size_detail"`
	Layout     string     `json:"layout"`
	FloorInfo  string     `json:"floor_info"`
	HouseType  string     `json:"house_type"`
	Parking    string     `json:"parking"`
	Address    string     `json:"address"`
	Images     StringList `json:"images" gorm:"type:text"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	City       string     `json:"city" gorm:"type:varchar(32);not null;index"`
	District   string     `json:"district" gorm:"type:varchar(32);not null;index"`
	RegionHint string     `json:"region_hint"`
	GeoBox     string     `json:"geo_box"`
	Active     bool       `json:"active" gorm:"not null;index"`
	FetchedAt  time.Time  `json:"fetched_at" gorm:"not null;index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (ListingRecord) TableName() string {
	return "listings"
}

// Coordinates returns the validated point, if the record has one.
func (r *ListingRecord) Coordinates() (lat, lon float64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// SetCoordinates stores a pair, or clears both when ok is false.
func (r *ListingRecord) SetCoordinates(lat, lon float64, ok bool) {
	if !ok {
		r.Latitude, r.Longitude = nil, nil
		return
	}
	r.Latitude, r.Longitude = &lat, &lon
}
