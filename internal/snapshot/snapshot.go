package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"rentscout/server/internal/geometry"
	"rentscout/server/internal/models"
)

// Writer exports the current listing set for consumers that read files
// rather than the database.
type Writer struct {
	path        string
	geoJSONPath string
	logger      *logrus.Logger
}

// NewWriter returns a writer for the JSON array at path and, when
// geoJSONPath is not empty, a GeoJSON feature collection next to it.
func NewWriter(path, geoJSONPath string, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Writer{path: path, geoJSONPath: geoJSONPath, logger: logger}
}

// Write replaces the snapshot with records. Readers see either the old file
// or the new one, never a partial write.
func (w *Writer) Write(records []models.ListingRecord) error {
	if records == nil {
		records = []models.ListingRecord{}
	}
	if err := writeJSON(w.path, records); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"path":     w.path,
		"listings": len(records),
	}).Info("Wrote listing snapshot")

	if w.geoJSONPath == "" {
		return nil
	}
	return w.WriteGeoJSON(records)
}

// WriteGeoJSON writes the listings that have coordinates as point features.
func (w *Writer) WriteGeoJSON(records []models.ListingRecord) error {
	fc := geometry.FeatureCollection(records)
	if err := writeJSON(w.geoJSONPath, fc); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{
		"path":     w.geoJSONPath,
		"features": len(fc.Features),
	}).Info("Wrote listing GeoJSON")
	return nil
}

// writeJSON encodes v into a temp file in the target directory, syncs it and
// renames it over path.
func writeJSON(path string, v interface{}) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	encoder := json.NewEncoder(tmp)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err = encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
