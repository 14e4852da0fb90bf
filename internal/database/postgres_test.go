package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentscout/server/internal/models"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter ListingFilter
		where  string
		tail   string
		args   []any
	}{
		{"no filter", ListingFilter{}, "", " ORDER BY fetched_at DESC, id", nil},
		{"city and active", ListingFilter{City: "台北市", ActiveOnly: true}, " WHERE city = $1 AND active", " ORDER BY fetched_at DESC, id", []any{"台北市"}},
		{"retired only", ListingFilter{InactiveOnly: true}, " WHERE NOT active", " ORDER BY fetched_at DESC, id", nil},
		{"district paged", ListingFilter{District: "板橋區", Limit: 20, Offset: 40}, " WHERE district = $1", " ORDER BY fetched_at DESC, id LIMIT $2 OFFSET $3", []any{"板橋區", 20, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := buildListQuery(tt.filter)
			assert.Equal(t, `SELECT `+listingColumns+` FROM listings`+tt.where+tt.tail, q)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := NewPostgresStore(ctx, dsn, logger)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.RunMigrations(ctx))

	identity := "pg-test-" + time.Now().Format("150405.000000")
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, store.UpsertListings(ctx, []*models.ListingRecord{
		testListing(identity, 10000, old),
		testListing(identity, 12000, old),
	}))

	got, err := store.GetByIdentity(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 12000, got.Price)
	assert.Len(t, got.Images, 1)

	_, err = store.MarkStaleBefore(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	got, err = store.GetByIdentity(ctx, identity)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = store.GetByIdentity(ctx, identity+"-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	report := &models.RunReport{RunID: identity, StartedAt: time.Now().UTC()}
	report.Finalize(time.Now().UTC())
	require.NoError(t, store.SaveRun(ctx, report))
	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity, latest.RunID)
}
