package scraping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rentscout/server/config"
	"rentscout/server/internal/database"
	"rentscout/server/internal/models"
	"rentscout/server/internal/processor"
	"rentscout/server/internal/queue"
	"rentscout/server/internal/snapshot"
)

// Pipeline is one complete ingestion run: collect, persist, retire listings
// that were not seen within the retention window, export, record the report.
type Pipeline struct {
	coordinator *Coordinator
	store       database.Store
	snapshot    *snapshot.Writer
	config      *config.Config
	regions     []config.Region
	now         func() time.Time
	logger      *logrus.Logger
}

func NewPipeline(coordinator *Coordinator, store database.Store, writer *snapshot.Writer, cfg *config.Config, regions []config.Region, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		coordinator: coordinator,
		store:       store,
		snapshot:    writer,
		config:      cfg,
		regions:     regions,
		now:         time.Now,
		logger:      logger,
	}
}

// Run executes a full run. The report is returned even when a later step
// fails; the error joins whatever went wrong after collection.
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	listingQueue := queue.NewListingQueue(p.config.Run.QueueSize, p.logger)
	batches := processor.NewBatchProcessor(p.store, listingQueue, p.config, p.logger)

	var mu sync.Mutex
	storeFailures := make(map[string]int)
	batches.OnFailure(func(item queue.Item, err error) {
		mu.Lock()
		storeFailures[item.Region]++
		mu.Unlock()
		p.coordinator.observer.OnEvent(EventStoreFailed, Detail{
			Region:   item.Region,
			URL:      item.Record.URL,
			Identity: item.Record.Identity,
			Err:      err,
		})
	})
	batches.Start()

	report := p.coordinator.RunWithSink(ctx, p.regions, QueueSink(listingQueue))

	p.drain(ctx, batches)

	var errs []error
	unpersisted := 0
	for i := range report.Regions {
		report.Regions[i].StoreFailures += storeFailures[report.Regions[i].Region]
		unpersisted += report.Regions[i].StoreFailures
	}
	if unpersisted > 0 {
		errs = append(errs, fmt.Errorf("%d listings were not persisted", unpersisted))
	}

	// Follow-up steps use a context that outlives a cancelled run so the
	// report is still recorded.
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case report.Cancelled:
		p.logger.WithField("run_id", report.RunID).Warn("Run cancelled, skipping stale check")
	case report.AllEmpty:
		p.logger.WithField("run_id", report.RunID).Warn("No listing collected in any region, skipping stale check")
	default:
		cutoff := p.now().UTC().Add(-p.config.Retention())
		staled, err := p.store.MarkStaleBefore(finishCtx, cutoff)
		if err != nil {
			errs = append(errs, err)
		}
		report.Staled = staled
	}

	if err := p.writeSnapshot(finishCtx); err != nil {
		errs = append(errs, err)
	}

	if err := p.store.SaveRun(finishCtx, report); err != nil {
		errs = append(errs, fmt.Errorf("failed to save run report: %w", err))
	}

	p.logger.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"status":    report.Status(),
		"committed": batches.Committed(),
		"failed":    batches.Failed(),
		"staled":    report.Staled,
	}).Info("Pipeline finished")

	return report, errors.Join(errs...)
}

// drain flushes everything already extracted. A cancelled run gets
// DrainTimeout to do so; after that pending retries are abandoned and the
// listings still queued are reported as store failures.
func (p *Pipeline) drain(ctx context.Context, batches *processor.BatchProcessor) {
	if ctx.Err() == nil {
		batches.Stop()
		return
	}

	timeout := p.config.Run.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	stopped := make(chan struct{})
	go func() {
		batches.Stop()
		close(stopped)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		p.logger.WithField("timeout", timeout.String()).Warn("Flush of a cancelled run timed out, abandoning pending batches")
		batches.Abort()
		<-stopped
	}
}

func (p *Pipeline) writeSnapshot(ctx context.Context) error {
	if p.snapshot == nil {
		return nil
	}
	records, err := p.store.ListListings(ctx, database.ListingFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("failed to load listings for snapshot: %w", err)
	}
	return p.snapshot.Write(records)
}
