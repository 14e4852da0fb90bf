package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"rentscout/server/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id          BIGSERIAL PRIMARY KEY,
	identity    TEXT NOT NULL UNIQUE,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       INTEGER NOT NULL DEFAULT 0,
	size_area   DOUBLE PRECISION,
	size_detail TEXT,
	layout      TEXT NOT NULL,
	floor_info  TEXT NOT NULL,
	house_type  TEXT NOT NULL,
	parking     TEXT NOT NULL,
	address     TEXT NOT NULL,
	images      JSONB NOT NULL DEFAULT '[]',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	city        TEXT NOT NULL,
	district    TEXT NOT NULL,
	region_hint TEXT NOT NULL DEFAULT '',
	geo_box     TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	fetched_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_listings_city_district ON listings(city, district);
CREATE INDEX IF NOT EXISTS idx_listings_fetched_at ON listings(fetched_at);
CREATE TABLE IF NOT EXISTS runs (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL UNIQUE,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	regions     JSONB NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	all_empty   BOOLEAN NOT NULL,
	staled      BIGINT NOT NULL,
	cancelled   BOOLEAN NOT NULL
);`

const upsertListingSQL = `
INSERT INTO listings (
	identity, url, title, price, size_area, size_detail, layout, floor_info,
	house_type, parking, address, images, latitude, longitude, city, district,
	region_hint, geo_box, active, fetched_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,TRUE,$19,now(),now())
ON CONFLICT (identity) DO UPDATE SET
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	size_area = EXCLUDED.size_area,
	size_detail = EXCLUDED.size_detail,
	layout = EXCLUDED.layout,
	floor_info = EXCLUDED.floor_info,
	house_type = EXCLUDED.house_type,
	parking = EXCLUDED.parking,
	address = EXCLUDED.address,
	images = EXCLUDED.images,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	city = EXCLUDED.city,
	district = EXCLUDED.district,
	region_hint = EXCLUDED.region_hint,
	geo_box = EXCLUDED.geo_box,
	active = TRUE,
	fetched_at = EXCLUDED.fetched_at,
	updated_at = now()`

const listingColumns = `id, identity, url, title, price, size_area, size_detail, layout, floor_info,
	house_type, parking, address, images, latitude, longitude, city, district,
	region_hint, geo_box, active, fetched_at, created_at, updated_at`

// PostgresStore is the Store for deployments that share one Postgres
// database between several services.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func upsertArgs(r *models.ListingRecord) []any {
	return []any{
		r.Identity, r.URL, r.Title, r.Price, r.SizeArea, r.SizeDetail, r.Layout, r.FloorInfo,
		r.HouseType, r.Parking, r.Address, []string(r.Images), r.Latitude, r.Longitude, r.City, r.District,
		r.RegionHint, r.GeoBox, r.FetchedAt,
	}
}

func (s *PostgresStore) UpsertListings(ctx context.Context, records []*models.ListingRecord) error {
	batch, err := prepareForWrite(records, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range batch {
			b.Queue(upsertListingSQL, upsertArgs(r)...)
		}
		br := tx.SendBatch(ctx, b)
		for _, r := range batch {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to upsert listing %s: %w", r.Identity, err)
			}
		}
		return br.Close()
	})
}

func (s *PostgresStore) MarkStaleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET active = FALSE, updated_at = now() WHERE active AND fetched_at < $1`,
		cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale listings: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"cutoff":   cutoff.UTC().Format(time.RFC3339),
		"affected": tag.RowsAffected(),
	}).Info("Marked stale listings inactive")
	return tag.RowsAffected(), nil
}

func scanListing(row pgx.Row) (models.ListingRecord, error) {
	var r models.ListingRecord
	var images []string
	err := row.Scan(
		&r.ID, &r.Identity, &r.URL, &r.Title, &r.Price, &r.SizeArea, &r.SizeDetail, &r.Layout, &r.FloorInfo,
		&r.HouseType, &r.Parking, &r.Address, &images, &r.Latitude, &r.Longitude, &r.City, &r.District,
		&r.RegionHint, &r.GeoBox, &r.Active, &r.FetchedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	r.Images = images
	return r, err
}

func (s *PostgresStore) GetByIdentity(ctx context.Context, identity string) (*models.ListingRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE identity = $1`, identity)
	r, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// buildListQuery renders the filter as SQL with positional arguments.
func buildListQuery(filter ListingFilter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.City != "" {
		add("city = $%d", filter.City)
	}
	if filter.District != "" {
		add("district = $%d", filter.District)
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	} else if filter.InactiveOnly {
		where = append(where, "NOT active")
	}

	q := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY fetched_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return q, args
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]models.ListingRecord, error) {
	q, args := buildListQuery(filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ListingRecord
	for rows.Next() {
		r, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) SaveRun(ctx context.Context, report *models.RunReport) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, regions, attempted, succeeded, failed, all_empty, staled, cancelled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		report.RunID, report.StartedAt, report.FinishedAt, []models.RegionReport(report.Regions),
		report.Attempted, report.Succeeded, report.Failed, report.AllEmpty, report.Staled, report.Cancelled,
	).Scan(&report.ID)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*models.RunReport, error) {
	var r models.RunReport
	var regions []models.RegionReport
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, started_at, finished_at, regions, attempted, succeeded, failed, all_empty, staled, cancelled
		FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.RunID, &r.StartedAt, &r.FinishedAt, &regions, &r.Attempted, &r.Succeeded, &r.Failed, &r.AllEmpty, &r.Staled, &r.Cancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Regions = regions
	return &r, nil
}
