package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rentscout/server/internal/database"
	"rentscout/server/internal/geometry"
	"rentscout/server/internal/models"
	"rentscout/server/internal/scheduler"
)

// RunTrigger starts ingestion runs on demand.
type RunTrigger interface {
	Trigger() error
	IsRunning() bool
}

// EventStats reports how often each ingestion event fired since startup.
type EventStats interface {
	Counts() map[string]int
}

type Handler struct {
	store  database.Store
	runs   RunTrigger
	boxes  *geometry.BoxClassifier
	events EventStats
	logger *logrus.Logger
}

// ListingQuery are the filters accepted by GET /api/listings. Active
// defaults to true; active=false returns retired listings only.
type ListingQuery struct {
	City     string `form:"city"`
	District string `form:"district"`
	Active   *bool  `form:"active"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
}

func NewHandler(store database.Store, runs RunTrigger, boxes *geometry.BoxClassifier, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if boxes == nil {
		boxes = geometry.NewBoxClassifier(geometry.DefaultBoxes())
	}

	return &Handler{
		store:  store,
		runs:   runs,
		boxes:  boxes,
		logger: logger,
	}
}

// WithEventStats adds ingestion event counts to the health response.
func (h *Handler) WithEventStats(events EventStats) *Handler {
	h.events = events
	return h
}

func (h *Handler) Health(c *gin.Context) {
	running := false
	if h.runs != nil {
		running = h.runs.IsRunning()
	}
	body := gin.H{"status": "ok", "run_in_progress": running}
	if h.events != nil {
		body["events"] = h.events.Counts()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) GetListings(c *gin.Context) {
	var q ListingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := database.ListingFilter{
		City:         q.City,
		District:     q.District,
		ActiveOnly:   q.Active == nil || *q.Active,
		InactiveOnly: q.Active != nil && !*q.Active,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	listings, err := h.store.ListListings(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}
	if listings == nil {
		listings = []models.ListingRecord{}
	}

	c.JSON(http.StatusOK, listings)
}

func (h *Handler) GetListing(c *gin.Context) {
	identity := c.Param("identity")

	listing, err := h.store.GetByIdentity(c.Request.Context(), identity)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("identity", identity).Error("Failed to get listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listing"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) GetLatestRun(c *gin.Context) {
	report, err := h.store.LatestRun(c.Request.Context())
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No run recorded yet"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get latest run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": report.Status(), "report": report})
}

// StartRun triggers an ingestion run in the background
func (h *Handler) StartRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Runs are not enabled"})
		return
	}

	if err := h.runs.Trigger(); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A run is already in progress"})
			return
		}
		h.logger.WithError(err).Error("Failed to start run")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to start run"})
		return
	}

	h.logger.Info("Run triggered through API")
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// GetRegionStats compares resolved cities with the coordinate boxes
func (h *Handler) GetRegionStats(c *gin.Context) {
	listings, err := h.store.ListListings(c.Request.Context(), database.ListingFilter{ActiveOnly: true})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings for stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get region stats"})
		return
	}

	c.JSON(http.StatusOK, h.boxes.Summarize(listings))
}
