package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rehab.report/internal/reps"
)

// EventProgress is the event name of progress notifications.
const EventProgress = "progress"

// ProgressEvent is emitted on rep-relevant phase changes.
type ProgressEvent struct {
	Event          string             `json:"event"`
	SessionID      string             `json:"sessionId"`
	RepCount       int                `json:"repCount"`
	Status         Status             `json:"status"`
	Phase          reps.Phase         `json:"phase"`
	MeasuredAngles map[string]float64 `json:"measuredAngles"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Observer receives progress events. OnProgress is called on the frame
// path and must not block.
type Observer interface {
	OnProgress(ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ProgressEvent)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(e ProgressEvent) { f(e) }

// ChannelObserver forwards events to a buffered channel and drops them
// when the consumer falls behind.
type ChannelObserver struct {
	ch      chan ProgressEvent
	dropped atomic.Int64
}

// NewChannelObserver returns an observer with a buffer of size events.
func NewChannelObserver(size int) *ChannelObserver {
	if size < 1 {
		size = 1
	}
	return &ChannelObserver{ch: make(chan ProgressEvent, size)}
}

// OnProgress implements Observer.
func (c *ChannelObserver) OnProgress(e ProgressEvent) {
	select {
	case c.ch <- e:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			opsf("progress observer full, %d events dropped", n)
		}
	}
}

// Events returns the receive side of the buffer.
func (c *ChannelObserver) Events() <-chan ProgressEvent { return c.ch }

// Dropped returns how many events were discarded.
func (c *ChannelObserver) Dropped() int64 { return c.dropped.Load() }

// SummarySink persists finished session summaries.
type SummarySink interface {
	SaveSummary(ctx context.Context, s Summary) error
}

// SummarySinkFunc adapts a function to SummarySink.
type SummarySinkFunc func(ctx context.Context, s Summary) error

// SaveSummary implements SummarySink.
func (f SummarySinkFunc) SaveSummary(ctx context.Context, s Summary) error { return f(ctx, s) }
