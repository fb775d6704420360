// Package history records finished downloads.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/notification"
	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/history"
)

// DefaultBuffer is the number of entries held while the store is busy.
const DefaultBuffer = 64

// Store persists history entries.
type Store interface {
	SaveHistory(ctx context.Context, e history.Entry) error
}

// Recorder turns terminal item transitions into history entries and
// writes them from a background worker so snapshot delivery never blocks on the store.
type Recorder struct {
	store   Store
	tracker *queue.Tracker
	now     func() time.Time

	mu      sync.Mutex
	entries chan history.Entry
	closed  bool
	dropped int

	done chan struct{}
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(store Store, buffer int) *Recorder {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		store:   store,
		tracker: queue.NewTracker(),
		now:     time.Now,
		entries: make(chan history.Entry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Attach subscribes the recorder to the coordinator's snapshots.
// Items already finished at attach time are not recorded.
func (r *Recorder) Attach(c *queue.Coordinator) *notification.Subscription {
	r.tracker.Observe(c.Snapshot())
	return c.Subscribe(r.Observe)
}

// Observe records every item that moved into completed or failed since the previous snapshot.
func (r *Recorder) Observe(s queue.Snapshot) {
	transitions, _ := r.tracker.Observe(s)
	for _, t := range transitions {
		if !t.To.IsTerminal() {
			continue
		}
		r.enqueue(history.FromItem(newEntryID(), t.Item, r.now()))
	}
}

func (r *Recorder) enqueue(e history.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	select {
	case r.entries <- e:
	default:
		r.dropped++
		zlog.Warn().Msgf("history buffer full, entry dropped: item=%s dropped=%d", e.ItemID, r.dropped)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.SaveHistory(ctx, e); err != nil {
			zlog.Error().Err(err).Msgf("failed to save history entry: item=%s", e.ItemID)
		} else {
			zlog.Debug().Msgf("history entry saved: item=%s status=%s", e.ItemID, e.Status)
		}
		cancel()
	}
}

// Close stops accepting entries and waits until the buffered ones are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.entries)
	r.mu.Unlock()

	<-r.done
}

// Dropped returns the number of entries discarded because the buffer was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
