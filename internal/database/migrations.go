package database

import "rentscout/server/internal/models"

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&models.ListingRecord{}, &models.RunReport{}); err != nil {
		return err
	}

	// Region lookups and the map view filter on these together
	if err := d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_city_district
		ON listings(city, district);
	`).Error; err != nil {
		return err
	}

	return d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_listings_coordinates
		ON listings(latitude, longitude);
	`).Error
}
