package scraping

import (
	"context"
	"time"

	"rentscout/server/config"
	"rentscout/server/internal/fetch"
)

// Pacing holds the politeness pauses a worker takes between requests.
type Pacing struct {
	ListingMin     time.Duration
	ListingMax     time.Duration
	BatchEvery     int
	BatchMin       time.Duration
	BatchMax       time.Duration
	PageMin        time.Duration
	PageMax        time.Duration
	BetweenRegions time.Duration
}

func DefaultPacing() Pacing {
	return Pacing{
		ListingMin:     1 * time.Second,
		ListingMax:     2 * time.Second,
		BatchEvery:     5,
		BatchMin:       3 * time.Second,
		BatchMax:       6 * time.Second,
		PageMin:        2 * time.Second,
		PageMax:        4 * time.Second,
		BetweenRegions: 5 * time.Second,
	}
}

func PacingFromConfig(cfg *config.Config) Pacing {
	return Pacing{
		ListingMin:     cfg.Pacing.ListingMin,
		ListingMax:     cfg.Pacing.ListingMax,
		BatchEvery:     cfg.Pacing.BatchEvery,
		BatchMin:       cfg.Pacing.BatchMin,
		BatchMax:       cfg.Pacing.BatchMax,
		PageMin:        cfg.Pacing.PageMin,
		PageMax:        cfg.Pacing.PageMax,
		BetweenRegions: cfg.Pacing.BetweenRegions,
	}
}

// pacer applies Pacing for a single worker. Every pause returns early with
// the context error when the run is cancelled.
type pacer struct {
	pacing Pacing
	sleep  func(ctx context.Context, d time.Duration) error
}

// afterListing pauses after the n-th listing of a region (n starts at 1).
// Every BatchEvery listings the longer batch pause is taken as well.
func (p pacer) afterListing(ctx context.Context, n int) error {
	if err := p.sleep(ctx, fetch.Uniform(p.pacing.ListingMin, p.pacing.ListingMax)); err != nil {
		return err
	}
	if p.pacing.BatchEvery > 0 && n%p.pacing.BatchEvery == 0 {
		return p.sleep(ctx, fetch.Uniform(p.pacing.BatchMin, p.pacing.BatchMax))
	}
	return nil
}

func (p pacer) betweenPages(ctx context.Context) error {
	return p.sleep(ctx, fetch.Uniform(p.pacing.PageMin, p.pacing.PageMax))
}

func (p pacer) betweenRegions(ctx context.Context) error {
	return p.sleep(ctx, p.pacing.BetweenRegions)
}
