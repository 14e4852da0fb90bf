package scraping

import (
	"context"

	"rentscout/server/internal/models"
	"rentscout/server/internal/queue"
)

// Sink receives every listing that was extracted and classified.
type Sink interface {
	Accept(ctx context.Context, region string, rec *models.ListingRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, region string, rec *models.ListingRecord) error

func (f SinkFunc) Accept(ctx context.Context, region string, rec *models.ListingRecord) error {
	return f(ctx, region, rec)
}

// QueueSink hands listings to the batch processor's queue.
func QueueSink(q *queue.ListingQueue) Sink {
	return SinkFunc(func(ctx context.Context, region string, rec *models.ListingRecord) error {
		return q.Push(ctx, queue.Item{Record: rec, Region: region})
	})
}
