package simulated

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recorder) report(ev queue.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.Event(nil), r.events...)
}

func TestGateway_Completes(t *testing.T) {
	g := New(Config{Steps: 4, Step: time.Millisecond})
	rec := &recorder{}

	require.NoError(t, g.Start(context.Background(), queue.Job{Item: item.Item{ID: "1", SourceURL: "ok"}, Report: rec.report}))
	g.Wait()

	assert.Equal(t, []queue.Event{
		queue.Progress(0.25),
		queue.Progress(0.5),
		queue.Progress(0.75),
		queue.Completed(),
	}, rec.all())
}

func TestGateway_FailMarker(t *testing.T) {
	g := New(Config{Steps: 4, Step: time.Millisecond})
	rec := &recorder{}

	require.NoError(t, g.Start(context.Background(), queue.Job{Item: item.Item{ID: "1", SourceURL: "https://x/fail"}, Report: rec.report}))
	g.Wait()

	assert.Equal(t, []queue.Event{
		queue.Progress(0.25),
		queue.Failed("simulated failure"),
	}, rec.all())
}

func TestGateway_Cancel(t *testing.T) {
	g := New(Config{Steps: 1000, Step: time.Hour})
	rec := &recorder{}

	require.NoError(t, g.Start(context.Background(), queue.Job{Item: item.Item{ID: "1", SourceURL: "ok"}, Report: rec.report}))
	g.Cancel("1")
	g.Wait()

	assert.Equal(t, []queue.Event{queue.Failed("cancelled")}, rec.all())
}

func TestGateway_Defaults(t *testing.T) {
	g := New(Config{})
	assert.Equal(t, 10, g.cfg.Steps)
	assert.Equal(t, 250*time.Millisecond, g.cfg.Step)
}

func TestGateway_WithCoordinator(t *testing.T) {
	g := New(Config{Steps: 3, Step: time.Millisecond})
	c, err := queue.New(g, queue.Config{ConcurrencyLimit: 2})
	require.NoError(t, err)
	defer c.Close()

	ids := make([]string, 5)
	for i := range ids {
		ids[i], err = c.Enqueue(context.Background(), item.Request{SourceURL: "https://example.com/" + string(rune('a'+i)), Kind: item.KindTrack})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return c.Snapshot().Stats.Completed == len(ids)
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Snapshot().ActiveCount)
}
