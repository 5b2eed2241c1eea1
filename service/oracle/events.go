package oracle

import (
	"context"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
)

// EventKind identifies a cycle milestone.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventSpoken    EventKind = "spoken"
	EventJudged    EventKind = "judged"
	EventSilent    EventKind = "silent"
)

// Event is emitted to the configured EventSink at each cycle milestone.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Cycle     uint64          `json:"cycle"`
	Timestamp time.Time       `json:"timestamp"`
	Request   *ledger.Request `json:"request,omitempty"`
	Response  *Response       `json:"response,omitempty"`
	Result    *RitualResult   `json:"result,omitempty"`
}

// EventSink receives oracle events. Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

const eventQueueSize = 64

// startEvents launches the single publisher that delivers events to the sink
// in the order they were emitted.
func (s *Sequencer) startEvents() {
	s.eventq = make(chan Event, eventQueueSize)
	s.eventsDone = make(chan struct{})
	go s.publishEvents()
}

// publishEvents drains the queue until Close closes it. Events still queued
// at Close are published with a context that outlives the cancelled cycles.
func (s *Sequencer) publishEvents() {
	defer close(s.eventsDone)
	ctx := context.WithoutCancel(s.ctx)
	for ev := range s.eventq {
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "failed to publish oracle event",
				"kind", ev.Kind,
				"cycle", ev.Cycle,
				"error", err,
			)
		}
	}
}

// emitLocked queues ev for the publisher. Callers hold s.mu, so the queue
// order is the transition order and nothing is sent after Close closes it.
func (s *Sequencer) emitLocked(ev Event) {
	if s.eventq == nil || s.closed {
		return
	}
	ev.Timestamp = s.clock.Now()
	s.eventq <- ev
}
