package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentscout/server/internal/database"
	"rentscout/server/internal/geometry"
	"rentscout/server/internal/models"
	"rentscout/server/internal/scheduler"
)

type fakeRuns struct {
	running bool
	err     error
	calls   int
}

func (f *fakeRuns) Trigger() error {
	f.calls++
	return f.err
}

func (f *fakeRuns) IsRunning() bool { return f.running }

func setupRouter(t *testing.T, runs RunTrigger) (*gin.Engine, *database.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.NewDatabase(":memory:", logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	handler := NewHandler(db, runs, geometry.NewBoxClassifier(geometry.DefaultBoxes()), logger)
	return NewRouter(handler), db
}

func seedListings(t *testing.T, db *database.Database) {
	t.Helper()
	now := time.Now().UTC()
	mk := func(identity, city, district string, price int, fetched time.Time) *models.ListingRecord {
		return &models.ListingRecord{
			Identity:  identity,
			URL:       "https://rent.591.com.tw/house/" + identity,
			Title:     "Listing " + identity,
			Price:     price,
			City:      city,
			District:  district,
			FetchedAt: fetched,
		}
	}

	zhongzheng := mk("1", "台北市", "中正區", 20000, now)
	zhongzheng.SetCoordinates(25.035, 121.515, true)
	zhongzheng.GeoBox = "中正區"

	ctx := context.Background()
	require.NoError(t, db.UpsertListings(ctx, []*models.ListingRecord{
		zhongzheng,
		mk("2", "台北市", "大安區", 30000, now.Add(-time.Minute)),
		mk("3", "新北市", "板橋區", 15000, now.Add(-2*time.Minute)),
		mk("old", "新北市", "板橋區", 9000, now.Add(-30*24*time.Hour)),
	}))
	_, err := db.MarkStaleBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, &fakeRuns{running: true})

	w := get(router, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","run_in_progress":true}`, w.Body.String())
}

type fixedEvents map[string]int

func (f fixedEvents) Counts() map[string]int { return f }

func TestHealth_EventStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewHandler(nil, &fakeRuns{}, nil, logger).WithEventStats(fixedEvents{"listing_ok": 4, "store_failed": 1})
	w := get(NewRouter(handler), "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","run_in_progress":false,"events":{"listing_ok":4,"store_failed":1}}`, w.Body.String())
}

func TestGetListings(t *testing.T) {
	router, db := setupRouter(t, nil)
	seedListings(t, db)

	tests := []struct {
		name     string
		query    string
		code     int
		expected []string
	}{
		{"active by default", "", http.StatusOK, []string{"1", "2", "3"}},
		{"retired only", "?active=false", http.StatusOK, []string{"old"}},
		{"explicitly active", "?active=true", http.StatusOK, []string{"1", "2", "3"}},
		{"by city", "?city=" + url.QueryEscape("新北市"), http.StatusOK, []string{"3"}},
		{"by district", "?district=" + url.QueryEscape("大安區"), http.StatusOK, []string{"2"}},
		{"paged", "?limit=1&offset=1", http.StatusOK, []string{"2"}},
		{"no match", "?city=" + url.QueryEscape("桃園市"), http.StatusOK, []string{}},
		{"bad limit", "?limit=0", http.StatusOK, []string{"1", "2", "3"}},
		{"limit too large", "?limit=5000", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, "/api/listings"+tt.query)
			require.Equal(t, tt.code, w.Code)
			if tt.expected == nil {
				return
			}

			var listings []models.ListingRecord
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listings))
			ids := []string{}
			for _, l := range listings {
				ids = append(ids, l.Identity)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestGetListing(t *testing.T) {
	router, db := setupRouter(t, nil)
	seedListings(t, db)

	w := get(router, "/api/listings/1")
	require.Equal(t, http.StatusOK, w.Code)
	var listing models.ListingRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, "中正區", listing.District)
	assert.Equal(t, 20000, listing.Price)

	w = get(router, "/api/listings/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatestRun(t *testing.T) {
	router, db := setupRouter(t, nil)

	w := get(router, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	report := &models.RunReport{
		RunID:     "run-1",
		StartedAt: time.Now().UTC(),
		Regions:   models.RegionReports{{Region: "台北市", Attempted: 2, Succeeded: 1, Failed: 1}},
	}
	report.Finalize(time.Now().UTC())
	require.NoError(t, db.SaveRun(context.Background(), report))

	w = get(router, "/api/runs/latest")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string           `json:"status"`
		Report models.RunReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "partial", body.Status)
	assert.Equal(t, "run-1", body.Report.RunID)
	assert.Equal(t, 1, body.Report.Succeeded)
}

func TestStartRun(t *testing.T) {
	tests := []struct {
		name string
		runs RunTrigger
		code int
	}{
		{"accepted", &fakeRuns{}, http.StatusAccepted},
		{"already running", &fakeRuns{err: scheduler.ErrRunInProgress}, http.StatusConflict},
		{"stopped", &fakeRuns{err: context.Canceled}, http.StatusServiceUnavailable},
		{"no scheduler", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupRouter(t, tt.runs)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestGetRegionStats(t *testing.T) {
	router, db := setupRouter(t, nil)
	seedListings(t, db)

	w := get(router, "/api/stats/regions")
	require.Equal(t, http.StatusOK, w.Code)

	var stats []geometry.CityStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, "台北市", stats[0].City)
	assert.Equal(t, 2, stats[0].Listings)
	assert.Equal(t, 25000.0, stats[0].AveragePrice)
	assert.Equal(t, 1, stats[0].WithCoordinates)
	assert.Equal(t, 1, stats[0].BoxAgrees)
	assert.Equal(t, "新北市", stats[1].City)
	assert.Equal(t, 1, stats[1].Listings)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/listings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
