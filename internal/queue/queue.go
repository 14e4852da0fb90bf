package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"rentscout/server/internal/models"
)

var ErrQueueClosed = errors.New("queue is closed")

// Item is one extracted listing waiting to be persisted, tagged with the
// region it was collected for.
type Item struct {
	Record *models.ListingRecord
	Region string
}

// ListingQueue is a bounded in-memory hand-off between the region workers
// and the batch processor.
type ListingQueue struct {
	items     chan Item
	done      chan struct{}
	maxSize   int
	closed    bool
	closeOnce sync.Once
	mu        sync.RWMutex
	logger    *logrus.Logger
}

// NewListingQueue creates a new listing queue with the specified buffer size
func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	if bufferSize < 1 {
		bufferSize = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ListingQueue{
		items:   make(chan Item, bufferSize),
		done:    make(chan struct{}),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push waits for room in the queue. It fails when the queue is closed or the
// context ends first.
func (q *ListingQueue) Push(ctx context.Context, item Item) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		q.logger.WithFields(logrus.Fields{
			"identity": item.Record.Identity,
			"region":   item.Region,
		}).Debug("Queued listing")
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Items is drained by the consumer until it is closed.
func (q *ListingQueue) Items() <-chan Item {
	return q.items
}

// Close stops accepting items. Items already queued stay readable from Items.
func (q *ListingQueue) Close() error {
	q.closeOnce.Do(func() {
		// wake blocked producers before taking the write lock
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.items)
	})
	return nil
}

// Len returns the current number of listings in the queue
func (q *ListingQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
