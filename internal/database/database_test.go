package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentscout/server/internal/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := NewDatabase(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func testListing(identity string, price int, fetched time.Time) *models.ListingRecord {
	return &models.ListingRecord{
		Identity:  identity,
		URL:       "https://rent.example.com/house/" + identity,
		Title:     "Listing " + identity,
		Price:     price,
		Layout:    models.NotProvided,
		FloorInfo: models.NotProvided,
		HouseType: models.NotProvided,
		Parking:   models.NotProvided,
		Address:   "台北市中正區",
		City:      "台北市",
		District:  "中正區",
		Images:    models.StringList{"https://img.example.com/" + identity + ".jpg"},
		FetchedAt: fetched,
	}
}

func TestUpsertListings_Idempotent(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	batch := []*models.ListingRecord{testListing("a", 10000, now), testListing("b", 20000, now)}
	require.NoError(t, db.UpsertListings(ctx, batch))
	require.NoError(t, db.UpsertListings(ctx, batch))

	records, err := db.ListListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestUpsertListings_LastWriteWinsAndKeepsCreatedAt(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	first := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{testListing("a", 10000, first)}))
	original, err := db.GetByIdentity(ctx, "a")
	require.NoError(t, err)

	updated := testListing("a", 15000, time.Now().UTC())
	updated.Title = "Renovated"
	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{updated}))

	got, err := db.GetByIdentity(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 15000, got.Price)
	assert.Equal(t, "Renovated", got.Title)
	assert.True(t, got.CreatedAt.Equal(original.CreatedAt))
	assert.True(t, got.FetchedAt.After(original.FetchedAt))
}

func TestUpsertListings_DuplicateIdentityInBatch(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	batch := []*models.ListingRecord{
		testListing("a", 10000, now),
		testListing("b", 11000, now),
		testListing("a", 12000, now),
	}
	require.NoError(t, db.UpsertListings(ctx, batch))

	records, err := db.ListListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	got, err := db.GetByIdentity(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 12000, got.Price)
}

func TestUpsertListings_Validation(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		record *models.ListingRecord
	}{
		{"missing identity", &models.ListingRecord{Title: "x"}},
		{"missing title", &models.ListingRecord{Identity: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, db.UpsertListings(ctx, []*models.ListingRecord{tt.record}))
		})
	}

	assert.NoError(t, db.UpsertListings(ctx, nil))
}

func TestUpsertListings_ReactivatesStaleListing(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)

	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{testListing("a", 10000, old)}))
	n, err := db.MarkStaleBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{testListing("a", 10000, time.Now().UTC())}))
	got, err := db.GetByIdentity(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestMarkStaleBefore(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{
		testListing("fresh", 10000, now.Add(-time.Hour)),
		testListing("old", 10000, now.Add(-8*24*time.Hour)),
		testListing("older", 10000, now.Add(-30*24*time.Hour)),
	}))

	cutoff := now.Add(-7 * 24 * time.Hour)
	n, err := db.MarkStaleBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Already inactive rows are not counted again
	n, err = db.MarkStaleBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	old, err := db.GetByIdentity(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.Active)

	active, err := db.ListListings(ctx, ListingFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].Identity)

	retired, err := db.ListListings(ctx, ListingFilter{InactiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, retired, 2)
	for _, r := range retired {
		assert.False(t, r.Active)
	}

	all, err := db.ListListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetByIdentity_NotFound(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.GetByIdentity(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListListings_Filters(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC()

	banqiao := testListing("nt-1", 18000, now.Add(-time.Minute))
	banqiao.City, banqiao.District = "新北市", "板橋區"
	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{
		testListing("tp-1", 20000, now.Add(-3*time.Minute)),
		testListing("tp-2", 21000, now.Add(-2*time.Minute)),
		banqiao,
	}))

	tests := []struct {
		name     string
		filter   ListingFilter
		expected []string
	}{
		{"all newest first", ListingFilter{}, []string{"nt-1", "tp-2", "tp-1"}},
		{"by city", ListingFilter{City: "台北市"}, []string{"tp-2", "tp-1"}},
		{"by district", ListingFilter{District: "板橋區"}, []string{"nt-1"}},
		{"limit", ListingFilter{Limit: 1}, []string{"nt-1"}},
		{"offset", ListingFilter{Limit: 10, Offset: 2}, []string{"tp-1"}},
		{"no match", ListingFilter{City: "桃園市"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := db.ListListings(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, r := range records {
				ids = append(ids, r.Identity)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestListingRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	rec := testListing("geo", 25000, time.Now().UTC())
	rec.SetCoordinates(25.04, 121.51, true)
	area, detail := 8.0, "8坪"
	rec.SizeArea, rec.SizeDetail = &area, &detail
	rec.Images = models.StringList{"https://img.example.com/1.jpg", "https://img.example.com/2.jpg"}
	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{rec}))

	got, err := db.GetByIdentity(ctx, "geo")
	require.NoError(t, err)
	lat, lon, ok := got.Coordinates()
	assert.True(t, ok)
	assert.InDelta(t, 25.04, lat, 1e-9)
	assert.InDelta(t, 121.51, lon, 1e-9)
	require.NotNil(t, got.SizeArea)
	assert.Equal(t, 8.0, *got.SizeArea)
	assert.Equal(t, rec.Images, got.Images)
}

func TestConcurrentUpsertsSameIdentity(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.UpsertListings(ctx, []*models.ListingRecord{testListing("shared", 10000+i, time.Now().UTC())})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	records, err := db.ListListings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRuns(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, err := db.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Now().UTC()
	for i, id := range []string{"run-1", "run-2"} {
		report := &models.RunReport{
			RunID:     id,
			StartedAt: start.Add(time.Duration(i) * time.Minute),
			Regions: models.RegionReports{
				{Region: "台北市", Attempted: 3, Succeeded: 2, Failed: 1},
			},
		}
		report.Finalize(report.StartedAt.Add(time.Second))
		require.NoError(t, db.SaveRun(ctx, report))
	}

	latest, err := db.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	require.Len(t, latest.Regions, 1)
	assert.Equal(t, "台北市", latest.Regions[0].Region)
	assert.Equal(t, 2, latest.Succeeded)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("write: %w", context.DeadlineExceeded), false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked wrapped", fmt.Errorf("upsert: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}
