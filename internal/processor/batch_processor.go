package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rentscout/server/config"
	"rentscout/server/internal/database"
	"rentscout/server/internal/models"
	"rentscout/server/internal/queue"
)

// FailureFunc is told about every listing that could not be persisted.
type FailureFunc func(item queue.Item, err error)

// BatchProcessor drains the listing queue into the store in batches
type BatchProcessor struct {
	store      database.Store
	logger     *logrus.Logger
	config     *config.Config
	queue      *queue.ListingQueue
	onFailure  FailureFunc
	maxWait    time.Duration
	retryDelay time.Duration
	waitGroup  sync.WaitGroup
	startOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc

	committed atomic.Int64
	failed    atomic.Int64
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(store database.Store, queue *queue.ListingQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	maxWait := time.Duration(config.BatchProcessing.MaxBatchWaitTime) * time.Second
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &BatchProcessor{
		store:      store,
		queue:      queue,
		config:     config,
		logger:     logger,
		maxWait:    maxWait,
		retryDelay: time.Duration(config.BatchProcessing.RetryDelay) * time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnFailure registers the callback for listings that were not persisted.
// It must be set before Start.
func (p *BatchProcessor) OnFailure(fn FailureFunc) {
	p.onFailure = fn
}

// Start begins draining the queue
func (p *BatchProcessor) Start() {
	p.startOnce.Do(func() {
		p.waitGroup.Add(1)
		go p.processLoop()
	})
}

// Wait blocks until the queue has been closed and every pending listing
// has been committed or reported.
func (p *BatchProcessor) Wait() {
	p.waitGroup.Wait()
}

// Stop closes the queue and flushes what is left in it
func (p *BatchProcessor) Stop() {
	p.queue.Close()
	p.Wait()
	p.cancel()
}

// Abort gives up on retries still in progress. Pending listings are reported
// as failed.
func (p *BatchProcessor) Abort() {
	p.cancel()
	p.queue.Close()
	p.Wait()
}

// Committed is the number of listings written so far.
func (p *BatchProcessor) Committed() int64 {
	return p.committed.Load()
}

// Failed is the number of listings reported through OnFailure so far.
func (p *BatchProcessor) Failed() int64 {
	return p.failed.Load()
}

// processLoop commits when a batch is full or has waited maxWait
func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	maxSize := p.config.BatchProcessing.MaxBatchSize
	if maxSize < 1 {
		maxSize = 1
	}
	pending := make([]queue.Item, 0, maxSize)

	ticker := time.NewTicker(p.maxWait)
	defer ticker.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		p.commit(pending)
		pending = make([]queue.Item, 0, maxSize)
	}

	for {
		select {
		case item, ok := <-p.queue.Items():
			if !ok {
				flush()
				return
			}
			pending = append(pending, item)
			if len(pending) >= maxSize {
				flush()
				ticker.Reset(p.maxWait)
			}
		case <-ticker.C:
			flush()
		}
	}
}

// commit writes one batch. When the batch as a whole is rejected for a
// reason retrying will not fix, each listing is written on its own so a
// single bad record does not take the rest down with it.
func (p *BatchProcessor) commit(batch []queue.Item) {
	err := p.processBatch(batch)
	if err == nil {
		p.committed.Add(int64(len(batch)))
		return
	}

	if len(batch) == 1 || database.IsRetryable(err) || p.ctx.Err() != nil {
		p.reportFailed(batch, err)
		return
	}

	p.logger.WithError(err).WithField("batch_size", len(batch)).Warn("Batch rejected, committing listings one by one")
	for _, item := range batch {
		if err := p.processBatch([]queue.Item{item}); err != nil {
			p.reportFailed([]queue.Item{item}, err)
			continue
		}
		p.committed.Add(1)
	}
}

// processBatch handles a single batch of listings with retry logic
func (p *BatchProcessor) processBatch(batch []queue.Item) error {
	records := make([]*models.ListingRecord, len(batch))
	for i, item := range batch {
		records[i] = item.Record
	}

	var err error
	attempts := 0
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch commit, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			select {
			case <-time.After(p.retryDelay):
			case <-p.ctx.Done():
				return fmt.Errorf("batch commit aborted: %w", err)
			}
		}

		attempts++
		err = p.store.UpsertListings(p.ctx, records)
		if err == nil {
			p.logger.Infof("Successfully committed batch of %d listings", len(batch))
			return nil
		}

		p.logger.Errorf("Batch commit failed: %v", err)
		if !database.IsRetryable(err) {
			break
		}
	}

	return fmt.Errorf("failed to commit batch after %d attempts: %w", attempts, err)
}

func (p *BatchProcessor) reportFailed(batch []queue.Item, err error) {
	p.failed.Add(int64(len(batch)))
	for _, item := range batch {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"identity": item.Record.Identity,
			"region":   item.Region,
		}).Error("Listing was not persisted")
		if p.onFailure != nil {
			p.onFailure(item, err)
		}
	}
}
