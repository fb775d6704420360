package history

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/history"
	"github.com/osa030/tunedl/internal/domain/item"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []history.Entry
	fail    bool
	block   chan struct{}
}

func (s *memoryStore) SaveHistory(ctx context.Context, e history.Entry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memoryStore) saved() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Entry(nil), s.entries...)
}

// noopGateway accepts every start; tests drive events through the coordinator.
type noopGateway struct{}

func (noopGateway) Start(ctx context.Context, job queue.Job) error { return nil }
func (noopGateway) Cancel(id string)                              {}

func finished(id string, status item.Status) item.Item {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return item.Item{ID: id, SourceURL: "https://example.com/" + id, Kind: item.KindTrack, Status: status, CompletedAt: &now}
}

func TestRecorder_Observe(t *testing.T) {
	store := &memoryStore{}
	r := NewRecorder(store, 0)

	r.Observe(queue.Snapshot{Version: 1, Items: []item.Item{
		{ID: "a", Status: item.StatusDownloading},
		{ID: "b", Status: item.StatusPending},
	}})
	failed := finished("b", item.StatusFailed)
	failed.Error = "network unreachable"
	r.Observe(queue.Snapshot{Version: 2, Items: []item.Item{finished("a", item.StatusCompleted), failed}})
	// no new transitions
	r.Observe(queue.Snapshot{Version: 3, Items: []item.Item{finished("a", item.StatusCompleted)}})
	r.Close()

	entries := store.saved()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ItemID)
	assert.True(t, entries[0].Succeeded())
	assert.Equal(t, "b", entries[1].ItemID)
	assert.Equal(t, item.StatusFailed, entries[1].Status)
	assert.Equal(t, "network unreachable", entries[1].Error)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestRecorder_WithCoordinator(t *testing.T) {
	c, err := queue.New(noopGateway{}, queue.Config{ConcurrencyLimit: 2})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx := context.Background()
	done, err := c.Enqueue(ctx, item.Request{SourceURL: "https://example.com/done", Kind: item.KindTrack})
	require.NoError(t, err)
	c.OnDispatchEvent(done, queue.Completed())

	store := &memoryStore{}
	r := NewRecorder(store, 4)
	sub := r.Attach(c)
	defer sub.Unsubscribe()

	ok, err := c.Enqueue(ctx, item.Request{SourceURL: "https://example.com/ok", Kind: item.KindAlbum, Title: "Kid A"})
	require.NoError(t, err)
	bad, err := c.Enqueue(ctx, item.Request{SourceURL: "https://example.com/bad", Kind: item.KindTrack})
	require.NoError(t, err)

	c.OnDispatchEvent(ok, queue.Progress(0.5))
	c.OnDispatchEvent(ok, queue.Completed())
	c.OnDispatchEvent(bad, queue.Failed("unavailable"))

	// retried item fails again and is recorded twice
	require.NoError(t, c.Retry(bad))
	c.OnDispatchEvent(bad, queue.Failed("still unavailable"))
	r.Close()

	entries := store.saved()
	require.Len(t, entries, 3, "item finished before attach must not be recorded")
	assert.Equal(t, ok, entries[0].ItemID)
	assert.Equal(t, "Kid A", entries[0].Title)
	assert.Equal(t, item.KindAlbum, entries[0].Kind)
	assert.Equal(t, bad, entries[1].ItemID)
	assert.Equal(t, "unavailable", entries[1].Error)
	assert.Equal(t, "still unavailable", entries[2].Error)
}

func TestRecorder_FailureRetriedDuringSlowDelivery(t *testing.T) {
	c, err := queue.New(noopGateway{}, queue.Config{ConcurrencyLimit: 2})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	// a slow subscriber ahead of the recorder
	var hold atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	c.Subscribe(func(queue.Snapshot) {
		if hold.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
	})

	store := &memoryStore{}
	r := NewRecorder(store, 8)
	r.Attach(c)

	ctx := context.Background()
	a, err := c.Enqueue(ctx, item.Request{SourceURL: "https://example.com/a", Kind: item.KindTrack})
	require.NoError(t, err)
	b, err := c.Enqueue(ctx, item.Request{SourceURL: "https://example.com/b", Kind: item.KindTrack})
	require.NoError(t, err)

	hold.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.OnDispatchEvent(b, queue.Progress(0.3))
	}()
	<-entered

	c.OnDispatchEvent(a, queue.Failed("network"))
	require.NoError(t, c.Retry(a))
	close(release)
	<-done
	r.Close()

	entries := store.saved()
	require.Len(t, entries, 1)
	assert.Equal(t, a, entries[0].ItemID)
	assert.Equal(t, item.StatusFailed, entries[0].Status)
	assert.Equal(t, "network", entries[0].Error)
}

func TestRecorder_BufferFull(t *testing.T) {
	store := &memoryStore{block: make(chan struct{})}
	r := NewRecorder(store, 1)

	r.Observe(queue.Snapshot{Version: 1, Items: []item.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}})
	r.Observe(queue.Snapshot{Version: 2, Items: []item.Item{
		finished("a", item.StatusCompleted),
		finished("b", item.StatusCompleted),
		finished("c", item.StatusCompleted),
	}})

	// the worker holds at most one entry and the buffer one more
	assert.GreaterOrEqual(t, r.Dropped(), 1)
	close(store.block)
	r.Close()
	assert.Equal(t, 3, len(store.saved())+r.Dropped())
}

func TestRecorder_StoreErrorAndClose(t *testing.T) {
	store := &memoryStore{fail: true}
	r := NewRecorder(store, 2)

	r.Observe(queue.Snapshot{Version: 1, Items: []item.Item{finished("a", item.StatusFailed)}})
	r.Close()
	r.Close()

	// entries after close are ignored
	r.Observe(queue.Snapshot{Version: 2, Items: []item.Item{finished("b", item.StatusCompleted)}})
	assert.Empty(t, store.saved())
}
