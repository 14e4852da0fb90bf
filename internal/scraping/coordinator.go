package scraping

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rentscout/server/config"
	"rentscout/server/internal/extract"
	"rentscout/server/internal/fetch"
	"rentscout/server/internal/geocoding"
	"rentscout/server/internal/geometry"
	"rentscout/server/internal/models"
)

// Coordinator walks regions page by page and turns every detail page into a
// classified listing for the sink.
type Coordinator struct {
	sessions      fetch.SessionFactory
	sink          Sink
	extractor     *extract.Extractor
	classifier    *geocoding.Classifier
	boxes         *geometry.BoxClassifier
	observer      Observer
	pacing        Pacing
	workers       int
	detailPattern *regexp.Regexp
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
	logger        *logrus.Logger
}

// NewCoordinator wires the extraction chain. Workers is clamped to
// [1, config.MaxWorkers]; each worker owns one session at a time.
func NewCoordinator(sessions fetch.SessionFactory, sink Sink, workers int, pacing Pacing, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if workers < 1 {
		workers = 1
	}
	if workers > config.MaxWorkers {
		workers = config.MaxWorkers
	}

	return &Coordinator{
		sessions:      sessions,
		sink:          sink,
		extractor:     extract.NewExtractor(),
		classifier:    geocoding.NewClassifier(logger),
		boxes:         geometry.NewBoxClassifier(geometry.DefaultBoxes()),
		observer:      LogObserver{Logger: logger},
		pacing:        pacing,
		workers:       workers,
		detailPattern: extract.DefaultDetailPattern,
		sleep:         fetch.Sleep,
		now:           time.Now,
		logger:        logger,
	}
}

// SetObserver replaces the default log observer.
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// Boxes exposes the coordinate boxes used for the cross-check.
func (c *Coordinator) Boxes() *geometry.BoxClassifier {
	return c.boxes
}

// Run processes every region and reports per-region counts. Failures inside
// a region never stop the others.
func (c *Coordinator) Run(ctx context.Context, regions []config.Region) *models.RunReport {
	return c.RunWithSink(ctx, regions, c.sink)
}

// RunWithSink is Run with a sink other than the one the coordinator was built with.
func (c *Coordinator) RunWithSink(ctx context.Context, regions []config.Region, sink Sink) *models.RunReport {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: c.now().UTC(),
	}
	results := make([]models.RegionReport, len(regions))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, region := range regions {
		i, region := i, region
		if ctx.Err() != nil {
			results[i] = models.RegionReport{Region: region.Name, Error: ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			results[i] = c.runRegion(ctx, region, sink)
			if i < len(regions)-1 {
				pacer{c.pacing, c.sleep}.betweenRegions(ctx)
			}
			return nil
		})
	}
	g.Wait()

	report.Regions = results
	report.Cancelled = ctx.Err() != nil
	report.Finalize(c.now().UTC())

	c.logger.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"attempted": report.Attempted,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"status":    report.Status(),
	}).Info("Run finished")
	return report
}

// PageURL is the list page n of a region. Page 1 is the entry URL itself.
func PageURL(entry string, n int) string {
	if n <= 1 {
		return entry
	}
	u, err := url.Parse(entry)
	if err != nil {
		return entry
	}
	q := u.Query()
	q.Set("p", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Coordinator) runRegion(ctx context.Context, region config.Region, sink Sink) (rep models.RegionReport) {
	rep.Region = region.Name
	logger := c.logger.WithField("region", region.Name)

	defer func() {
		if r := recover(); r != nil {
			rep.Error = fmt.Sprintf("panic: %v", r)
			logger.WithField("panic", r).Error("Region aborted by panic")
		}
		c.observer.OnEvent(EventRegionDone, Detail{Region: region.Name, Err: errorOf(rep.Error)})
	}()

	c.observer.OnEvent(EventRegionStart, Detail{Region: region.Name, URL: region.EntryURL})

	session, err := c.sessions(ctx)
	if err != nil {
		rep.Error = fmt.Sprintf("failed to open session: %v", err)
		logger.WithError(err).Error("Failed to open fetch session")
		return rep
	}
	defer session.Close()

	p := pacer{c.pacing, c.sleep}
	seen := make(map[string]struct{})

	for page := 1; page <= region.MaxPages && rep.Succeeded < region.TargetCount; page++ {
		if ctx.Err() != nil {
			break
		}
		if page > 1 {
			if err := p.betweenPages(ctx); err != nil {
				break
			}
		}

		pageURL := PageURL(region.EntryURL, page)
		c.observer.OnEvent(EventPageStart, Detail{Region: region.Name, Page: page, URL: pageURL})
		rep.PagesVisited++

		// FetchingList
		listPage, ok, err := session.Load(ctx, pageURL)
		if errors.Is(err, fetch.ErrSessionLost) {
			c.sessionLost(&rep, page, pageURL, err)
			return rep
		}
		if err != nil || !ok {
			c.observer.OnEvent(EventPageFailed, Detail{Region: region.Name, Page: page, URL: pageURL, Err: err})
			break
		}

		// CollectingDetailUrls: every link is captured before any detail page is opened
		detailURLs := c.collectDetailURLs(listPage, pageURL, seen)
		logger.WithFields(logrus.Fields{
			"page":  page,
			"links": len(detailURLs),
		}).Info("Collected detail links")
		if len(detailURLs) == 0 {
			break
		}

		// FetchingDetails
		for _, detailURL := range detailURLs {
			if rep.Succeeded >= region.TargetCount || ctx.Err() != nil {
				break
			}
			if err := c.processListing(ctx, session, sink, region.Name, page, detailURL, &rep); err != nil {
				if errors.Is(err, fetch.ErrSessionLost) {
					c.sessionLost(&rep, page, detailURL, err)
					return rep
				}
				break
			}
			if err := p.afterListing(ctx, rep.Attempted); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil && rep.Error == "" {
		rep.Error = ctx.Err().Error()
	}
	return rep
}

func (c *Coordinator) collectDetailURLs(listPage fetch.Page, pageURL string, seen map[string]struct{}) []string {
	base := listPage.FinalURL
	if base == "" {
		base = pageURL
	}
	src, err := extract.Parse(listPage.HTML, base)
	if err != nil {
		return nil
	}

	var urls []string
	for _, link := range extract.ListingLinks(src, c.detailPattern) {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		urls = append(urls, link)
	}
	return urls
}

// processListing loads, extracts and hands off one detail page. Only session
// loss and cancellation are returned; every other problem is counted.
func (c *Coordinator) processListing(ctx context.Context, session *fetch.Session, sink Sink, region string, page int, detailURL string, rep *models.RegionReport) error {
	rep.Attempted++
	detail := Detail{Region: region, Page: page, URL: detailURL}

	if err := session.IsAlive(ctx); err != nil {
		rep.Failed++
		return err
	}

	loaded, ok, err := session.Load(ctx, detailURL)
	if err != nil {
		rep.Failed++
		return err
	}
	if !ok {
		rep.Failed++
		c.observer.OnEvent(EventListingFailed, detail)
		return nil
	}

	rec, err := c.buildRecord(loaded, detailURL, region)
	if err != nil {
		rep.Failed++
		detail.Err = err
		c.observer.OnEvent(EventListingFailed, detail)
		return nil
	}
	detail.Identity = rec.Identity

	if err := sink.Accept(ctx, region, rec); err != nil {
		rep.StoreFailures++
		detail.Err = err
		c.logger.WithError(err).WithFields(logrus.Fields{
			"identity": rec.Identity,
			"region":   region,
			"url":      rec.URL,
		}).Error("Failed to hand listing to store")
		c.observer.OnEvent(EventStoreFailed, detail)
		if ctx.Err() != nil {
			rep.Failed++
			return ctx.Err()
		}
	}

	rep.Succeeded++
	c.observer.OnEvent(EventListingOK, detail)
	return nil
}

// buildRecord runs extraction, region resolution and the box cross-check.
// A panic anywhere in the chain is turned into an error for this listing.
func (c *Coordinator) buildRecord(loaded fetch.Page, detailURL, region string) (rec *models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("extraction panicked: %v", r)
		}
	}()

	base := loaded.FinalURL
	if base == "" {
		base = detailURL
	}
	src, err := extract.Parse(loaded.HTML, base)
	if err != nil {
		return nil, extract.ErrNotExtractable
	}
	rec, err = c.extractor.ExtractFrom(src, detailURL, region)
	if err != nil {
		return nil, err
	}

	res := c.classifier.Apply(src.Doc, rec)
	if lat, lon, ok := rec.Coordinates(); ok {
		rec.GeoBox = c.boxes.Label(lat, lon)
		if boxCity, ok := c.boxes.CityOf(rec.GeoBox); ok && res.City != models.Unknown && boxCity != res.City {
			c.logger.WithFields(logrus.Fields{
				"identity": rec.Identity,
				"city":     res.City,
				"geo_box":  rec.GeoBox,
				"signal":   res.Signal,
			}).Debug("Coordinates fall outside the resolved city")
		}
	}
	return rec, nil
}

func (c *Coordinator) sessionLost(rep *models.RegionReport, page int, pageURL string, err error) {
	rep.SessionLost = true
	rep.Error = err.Error()
	c.observer.OnEvent(EventSessionLost, Detail{Region: rep.Region, Page: page, URL: pageURL, Err: err})
}

func errorOf(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
