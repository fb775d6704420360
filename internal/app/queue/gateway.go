package queue

import (
	"context"

	"github.com/osa030/tunedl/internal/domain/item"
)

// EventType represents the kind of dispatch event.
type EventType int

const (
	EventProgress EventType = iota
	EventCompleted
	EventFailed
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "PROGRESS"
	case EventCompleted:
		return "COMPLETED"
	case EventFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event is reported by a gateway for a started item.
type Event struct {
	Type     EventType
	Progress float64 // fraction in [0, 1], EventProgress only
	Reason   string  // EventFailed only
}

// IsTerminal reports whether the event ends the attempt.
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

// Progress returns a progress event.
func Progress(fraction float64) Event {
	return Event{Type: EventProgress, Progress: fraction}
}

// Completed returns a completion event.
func Completed() Event {
	return Event{Type: EventCompleted}
}

// Failed returns a failure event carrying a human-readable reason.
func Failed(reason string) Event {
	return Event{Type: EventFailed, Reason: reason}
}

// Job is a single dispatch of an item.
type Job struct {
	Item item.Item
	// Report delivers an event for this attempt. Safe to call from any goroutine;
	// events reported after the item was removed or retried are ignored.
	Report func(Event)
}

// Gateway executes downloads on behalf of the coordinator.
//
// Start must return promptly; the transfer runs asynchronously and reports zero or
// more progress events followed by exactly one terminal event. The context passed
// to Start is cancelled when the item is removed or the coordinator is closed.
// Cancel is best-effort and must not block.
type Gateway interface {
	Start(ctx context.Context, job Job) error
	Cancel(id string)
}

// EventSink receives dispatch events keyed by item id.
type EventSink interface {
	OnDispatchEvent(id string, ev Event)
}
