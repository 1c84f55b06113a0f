// Package logbus implements the per-project in-memory log fan-out from
// spec §4.5: many SSE clients may watch the same run, and a slow consumer
// must never stall the pipeline. The non-blocking-send / drop-oldest
// idiom generalizes the teacher's mutationChan (internal/rpc/server_core.go:
// buffered channel, select-default send, counted drops) into one bounded
// channel per subscriber instead of one shared channel per server.
package logbus

import (
	"sync"
)

// Level enumerates Event.Level.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one structured log line or progress update for a run.
type Event struct {
	RunID           int64
	Level           Level
	Message         string
	Timestamp       string
	Step            string
	ProgressCurrent int
	ProgressTotal   int
	CurrentTerm     string
	// Complete marks the terminal event a worker appends when it finishes
	// cleanup; subscribers should treat this as end-of-stream (spec §4.5).
	Complete bool
}

// defaultBufferSize bounds each subscriber's ring; tuned the same as the
// teacher's mutationBufferSize — large enough that a normally-paced SSE
// client never drops a line, small enough that a wedged client can't pin
// unbounded memory behind it.
const defaultBufferSize = 256

// Bus fans out Events for every run in one project to any number of
// subscribers. Zero value is not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int64]map[*subscription]struct{}
	sink        func(Event)
}

// SetSink installs an additional observer called synchronously on every
// Publish, independent of and in addition to the per-run subscriber
// fan-out. Used by cmd/genglossary's `serve` to mirror every project's
// events into one offline JSONL log (spec §6).
func (b *Bus) SetSink(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = fn
}

type subscription struct {
	ch chan Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int64]map[*subscription]struct{})}
}

// Subscribe registers a new listener for runID. The listener stays
// registered until the returned unsubscribe func is called; the terminal
// Complete event does not remove it.
func (b *Bus) Subscribe(runID int64) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, defaultBufferSize)}

	b.mu.Lock()
	if b.subscribers[runID] == nil {
		b.subscribers[runID] = make(map[*subscription]struct{})
	}
	b.subscribers[runID][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[runID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subscribers, runID)
			}
		}
	}
	return sub.ch, unsubscribe
}

// Publish fans event out to every subscriber of event.RunID. A full
// subscriber channel has its oldest entry dropped to make room — matching
// spec §4.5 "losing log lines is preferable to stalling the pipeline" —
// rather than blocking the producer.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	subs := b.subscribers[event.RunID]
	targets := make([]*subscription, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink(event)
	}

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: drop the oldest queued event, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
				// A concurrent send beat us to the freed slot; this one
				// event is dropped, which is an explicitly accepted
				// outcome of the bounded-ring design.
			}
		}
	}
}

// SubscriberCount reports how many listeners are currently attached to
// runID; used by tests.
func (b *Bus) SubscriberCount(runID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[runID])
}
