package database

import (
	"context"
	"errors"
	"time"

	"rentscout/server/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence capability the pipeline writes through. Every
// call is its own transaction.
type Store interface {
	// UpsertListings inserts new identities and overwrites existing ones,
	// keeping created_at. Calling it again with the same records is a no-op
	// apart from updated_at.
	UpsertListings(ctx context.Context, records []*models.ListingRecord) error
	// MarkStaleBefore soft-deletes active listings last fetched before cutoff.
	MarkStaleBefore(ctx context.Context, cutoff time.Time) (int64, error)
	GetByIdentity(ctx context.Context, identity string) (*models.ListingRecord, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]models.ListingRecord, error)
	SaveRun(ctx context.Context, report *models.RunReport) error
	LatestRun(ctx context.Context) (*models.RunReport, error)
	Close() error
}

// ListingFilter narrows ListListings. Zero values mean no restriction.
type ListingFilter struct {
	City       string
	District   string
	ActiveOnly bool
	// InactiveOnly selects retired listings; ignored when ActiveOnly is set
	InactiveOnly bool
	Limit      int
	Offset     int
}

// dedupeByIdentity keeps the last record for every identity, preserving the
// order of first appearance.
func dedupeByIdentity(records []*models.ListingRecord) []*models.ListingRecord {
	index := make(map[string]int, len(records))
	out := make([]*models.ListingRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if i, ok := index[r.Identity]; ok {
			out[i] = r
			continue
		}
		index[r.Identity] = len(out)
		out = append(out, r)
	}
	return out
}

// prepareForWrite validates a batch and normalizes timestamps to UTC.
func prepareForWrite(records []*models.ListingRecord, now time.Time) ([]*models.ListingRecord, error) {
	batch := dedupeByIdentity(records)
	for _, r := range batch {
		if r.Identity == "" {
			return nil, errors.New("listing without identity")
		}
		if r.Title == "" {
			return nil, errors.New("listing " + r.Identity + " without title")
		}
		if r.FetchedAt.IsZero() {
			r.FetchedAt = now
		}
		r.FetchedAt = r.FetchedAt.UTC()
		r.Active = true
		if r.Images == nil {
			r.Images = models.StringList{}
		}
	}
	return batch, nil
}
