package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
	"github.com/osa030/tunedl/internal/domain/media"
	"github.com/osa030/tunedl/internal/domain/watch"
	"github.com/osa030/tunedl/internal/infra/store"
)

type fakeCatalog struct {
	mu    sync.Mutex
	media map[string][]media.Media // keyed by source id
	names map[string]string
	err   error
	calls int
}

func (c *fakeCatalog) ListMedia(ctx context.Context, kind watch.Kind, sourceID string) ([]media.Media, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return append([]media.Media(nil), c.media[sourceID]...), nil
}

func (c *fakeCatalog) SourceName(ctx context.Context, kind watch.Kind, sourceID string) (string, error) {
	name, ok := c.names[sourceID]
	if !ok {
		return "", errors.New("not found")
	}
	return name, nil
}

func (c *fakeCatalog) set(sourceID string, ms ...media.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media[sourceID] = ms
}

type noopGateway struct{}

func (noopGateway) Start(ctx context.Context, job queue.Job) error { return nil }
func (noopGateway) Cancel(id string)                              {}

func track(id string) media.Media {
	return media.Media{ID: id, Type: media.TypeTrack, Title: "Song " + id, Artist: "Band", URL: "https://open.spotify.com/track/" + id}
}

func album(id string) media.Media {
	return media.Media{ID: id, Type: media.TypeAlbum, Title: "Album " + id, Artist: "Band", URL: "https://open.spotify.com/album/" + id}
}

type fixture struct {
	poller  *Poller
	store   *store.Store
	catalog *fakeCatalog
	queue   *queue.Coordinator
	now     time.Time
}

func newFixture(t *testing.T, maxItems int) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c, err := queue.New(noopGateway{}, queue.Config{ConcurrencyLimit: 1, MaxItems: maxItems})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	f := &fixture{
		store:   s,
		catalog: &fakeCatalog{media: map[string][]media.Media{}, names: map[string]string{"pl1": "Daily Mix", "ar1": "Band"}},
		queue:   c,
		now:     time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.poller, err = NewPoller(s, f.catalog, c, Config{Interval: time.Hour, Clock: func() time.Time { return f.now }})
	require.NoError(t, err)
	return f
}

func (f *fixture) queued() []item.Item {
	return f.queue.Snapshot().Items
}

func TestNewPoller_RequiresDependencies(t *testing.T) {
	_, err := NewPoller(nil, &fakeCatalog{}, nil, Config{})
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	e, err := f.poller.Add(ctx, watch.AddRequest{URL: "https://open.spotify.com/playlist/pl1?si=abc"})
	require.NoError(t, err)
	assert.Equal(t, "Daily Mix", e.Name)
	assert.Equal(t, watch.KindPlaylist, e.Kind)
	assert.Equal(t, "pl1", e.SourceID)
	assert.True(t, e.Active)
	assert.False(t, e.Seeded())

	named, err := f.poller.Add(ctx, watch.AddRequest{Name: "My Band", URL: "spotify:artist:ar1"})
	require.NoError(t, err)
	assert.Equal(t, "My Band", named.Name)

	list, err := f.poller.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	tests := []struct {
		name string
		req  watch.AddRequest
	}{
		{"missing url", watch.AddRequest{}},
		{"unsupported source", watch.AddRequest{URL: "https://example.com/playlist/x"}},
		{"unknown name", watch.AddRequest{URL: "spotify:playlist:missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.poller.Add(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestPoll_SeedsThenEnqueuesNewMedia(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	e, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	require.NoError(t, err)
	f.catalog.set("pl1", track("t1"), track("t2"))

	results := f.poller.Poll(ctx)
	require.Len(t, results, 1)
	assert.True(t, results[0].Seeded)
	assert.Equal(t, 2, results[0].Found)
	assert.Zero(t, results[0].Enqueued)
	assert.Empty(t, f.queued(), "first check only seeds")

	// not due yet
	f.catalog.set("pl1", track("t1"), track("t2"), track("t3"))
	f.now = f.now.Add(30 * time.Minute)
	assert.Empty(t, f.poller.Poll(ctx))

	f.now = f.now.Add(30 * time.Minute)
	results = f.poller.Poll(ctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Seeded)
	assert.Equal(t, 1, results[0].Enqueued)

	items := f.queued()
	require.Len(t, items, 1)
	assert.Equal(t, "https://open.spotify.com/track/t3", items[0].SourceURL)
	assert.Equal(t, item.OriginWatch, items[0].Origin)
	assert.Equal(t, item.KindTrack, items[0].Kind)
	assert.Equal(t, "Song t3", items[0].Title)

	got, err := f.store.GetWatch(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	assert.True(t, f.now.Equal(*got.LastChecked))
}

func TestPoll_SkipsInactive(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	e, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:artist:ar1"})
	require.NoError(t, err)
	updated, err := f.poller.SetActive(ctx, e.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	assert.Empty(t, f.poller.Poll(ctx))
	assert.Zero(t, f.catalog.calls)

	_, err = f.poller.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPoll_CapacityStopsRound(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	first, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:artist:ar1"})
	require.NoError(t, err)
	f.now = f.now.Add(time.Second)
	second, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	require.NoError(t, err)

	f.poller.Poll(ctx) // seed both, empty
	f.catalog.set("ar1", album("a1"), album("a2"), album("a3"))
	f.catalog.set("pl1", track("t1"))

	f.now = f.now.Add(time.Hour)
	results := f.poller.Poll(ctx)
	require.Len(t, results, 1, "round stops at the full queue")
	assert.Equal(t, first.ID, results[0].WatchID)
	assert.Equal(t, 2, results[0].Enqueued)
	assert.Len(t, f.queued(), 2)

	seen, err := f.store.SeenMedia(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a1": true, "a2": true}, seen)

	// capacity freed: the remaining album is picked up
	f.queue.Clear()
	f.now = f.now.Add(time.Minute)
	res, err := f.poller.CheckNow(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enqueued)

	res, err = f.poller.CheckNow(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enqueued)
	assert.Len(t, f.queued(), 2)
}

func TestCheckNow(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.poller.CheckNow(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	e, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	require.NoError(t, err)

	f.catalog.err = errors.New("spotify down")
	_, err = f.poller.CheckNow(ctx, e.ID)
	assert.ErrorContains(t, err, "spotify down")
	got, err := f.store.GetWatch(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Seeded(), "failed check does not seed")

	f.catalog.err = nil
	f.catalog.set("pl1", track("t1"))
	res, err := f.poller.CheckNow(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, res.Seeded)
}

func TestRemove(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	e, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	require.NoError(t, err)
	require.NoError(t, f.poller.Remove(ctx, e.ID))
	assert.ErrorIs(t, f.poller.Remove(ctx, e.ID), store.ErrNotFound)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.poller.Add(ctx, watch.AddRequest{URL: "spotify:playlist:pl1"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.poller.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		f.catalog.mu.Lock()
		defer f.catalog.mu.Unlock()
		return f.catalog.calls == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
