package queue

import (
	"sync"

	"github.com/osa030/tunedl/internal/domain/item"
)

// Stats holds item counts per status.
type Stats struct {
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Paused      int `json:"paused"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
}

// Count returns the count for status s.
func (s Stats) Count(status item.Status) int {
	switch status {
	case item.StatusPending:
		return s.Pending
	case item.StatusDownloading:
		return s.Downloading
	case item.StatusPaused:
		return s.Paused
	case item.StatusCompleted:
		return s.Completed
	case item.StatusFailed:
		return s.Failed
	}
	return 0
}

func (s *Stats) add(status item.Status) {
	switch status {
	case item.StatusPending:
		s.Pending++
	case item.StatusDownloading:
		s.Downloading++
	case item.StatusPaused:
		s.Paused++
	case item.StatusCompleted:
		s.Completed++
	case item.StatusFailed:
		s.Failed++
	}
}

// Snapshot is a consistent copy of the queue state.
// Subscribers share one Snapshot value per change and must treat it as read-only.
type Snapshot struct {
	Version          uint64      `json:"version"`
	Items            []item.Item `json:"items"`
	Paused           bool        `json:"paused"`
	ActiveCount      int         `json:"activeCount"`
	ConcurrencyLimit int         `json:"concurrencyLimit"`
	MaxItems         int         `json:"maxItems"`
	Stats            Stats       `json:"stats"`
}

// Item returns the item with the given id.
func (s Snapshot) Item(id string) (item.Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return item.Item{}, false
}

// Transition is a status change observed between two snapshots.
// From is empty for items that first appear.
type Transition struct {
	Item item.Item
	From item.Status
	To   item.Status
}

// Tracker turns successive snapshots into status transitions.
// Snapshots older than the last observed one are ignored.
type Tracker struct {
	mu      sync.Mutex
	version uint64
	last    map[string]item.Status
}

// NewTracker creates a new tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]item.Status)}
}

// Observe returns the transitions since the previous snapshot and the ids that disappeared.
func (t *Tracker) Observe(s Snapshot) (transitions []Transition, removed []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Version != 0 && s.Version <= t.version {
		return nil, nil
	}
	t.version = s.Version

	current := make(map[string]item.Status, len(s.Items))
	for _, it := range s.Items {
		current[it.ID] = it.Status
		prev, seen := t.last[it.ID]
		if seen && prev == it.Status {
			continue
		}
		transitions = append(transitions, Transition{Item: it, From: prev, To: it.Status})
	}
	for id := range t.last {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
		}
	}
	t.last = current
	return transitions, removed
}
