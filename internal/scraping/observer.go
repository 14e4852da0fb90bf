package scraping

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// EventKind names a step of a region run.
type EventKind string

const (
	EventRegionStart   EventKind = "region_start"
	EventPageStart     EventKind = "page_start"
	EventPageFailed    EventKind = "page_failed"
	EventListingOK     EventKind = "listing_ok"
	EventListingFailed EventKind = "listing_failed"
	EventSessionLost   EventKind = "session_lost"
	EventStoreFailed   EventKind = "store_failed"
	EventRegionDone    EventKind = "region_done"
)

// Detail carries whatever is known about an event; unset fields are zero.
type Detail struct {
	Region   string
	Page     int
	URL      string
	Identity string
	Err      error
}

// Observer receives progress events. Implementations must be safe for
// concurrent use when more than one region runs at a time.
type Observer interface {
	OnEvent(kind EventKind, detail Detail)
}

// LogObserver writes events to a logrus logger.
type LogObserver struct {
	Logger *logrus.Logger
}

func (o LogObserver) OnEvent(kind EventKind, d Detail) {
	fields := logrus.Fields{"event": string(kind), "region": d.Region}
	if d.Page > 0 {
		fields["page"] = d.Page
	}
	if d.URL != "" {
		fields["url"] = d.URL
	}
	if d.Identity != "" {
		fields["identity"] = d.Identity
	}
	entry := o.Logger.WithFields(fields)
	if d.Err != nil {
		entry = entry.WithError(d.Err)
	}

	switch kind {
	case EventRegionStart, EventRegionDone:
		entry.Info("Region progress")
	case EventSessionLost, EventStoreFailed:
		entry.Error("Region problem")
	case EventPageFailed, EventListingFailed:
		entry.Warn("Region problem")
	default:
		entry.Debug("Region progress")
	}
}

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(kind EventKind, d Detail) {
	for _, o := range m {
		o.OnEvent(kind, d)
	}
}

// EventCounter tallies events per kind.
type EventCounter struct {
	mu     sync.Mutex
	counts map[EventKind]int
}

func (c *EventCounter) OnEvent(kind EventKind, _ Detail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[EventKind]int)
	}
	c.counts[kind]++
}

func (c *EventCounter) Count(kind EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Counts copies the tallies keyed by event name.
func (c *EventCounter) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for kind, n := range c.counts {
		out[string(kind)] = n
	}
	return out
}
