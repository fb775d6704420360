package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
)

// manualGateway accepts every start; tests finish items through the coordinator.
type manualGateway struct {
	mu        sync.Mutex
	cancelled []string
}

func (g *manualGateway) Start(ctx context.Context, job queue.Job) error { return nil }

func (g *manualGateway) Cancel(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
}

func newTestServer(t *testing.T, limit, maxItems int) (*Client, *queue.Coordinator) {
	t.Helper()

	c, err := queue.New(&manualGateway{}, queue.Config{ConcurrencyLimit: limit, MaxItems: maxItems})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	path, handler := NewQueueServiceHandler(NewQueueService(c),
		connect.WithInterceptors(NewLoggingInterceptor()))
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewClient(server.Client(), server.URL+"/"), c
}

func TestQueueService_Lifecycle(t *testing.T) {
	client, c := newTestServer(t, 1, 10)
	ctx := context.Background()

	a, err := client.Enqueue(ctx, item.Request{SourceURL: "https://open.spotify.com/track/a", Kind: item.KindTrack, Title: "A"})
	require.NoError(t, err)
	b, err := client.Enqueue(ctx, item.Request{SourceURL: "https://open.spotify.com/album/b", Kind: item.KindAlbum})
	require.NoError(t, err)

	snap, err := client.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, item.StatusDownloading, snap.Items[0].Status)
	assert.Equal(t, "A", snap.Items[0].Title)
	assert.Equal(t, item.QualityHigh, snap.Items[0].Quality)
	assert.Equal(t, item.StatusPending, snap.Items[1].Status)

	require.NoError(t, client.PauseItem(ctx, b))
	require.NoError(t, client.ResumeItem(ctx, b))
	require.NoError(t, client.PauseAll(ctx))
	snap, err = client.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Paused)
	require.NoError(t, client.ResumeAll(ctx))

	c.OnDispatchEvent(a, queue.Failed("geo blocked"))
	require.NoError(t, client.Retry(ctx, a))
	require.NoError(t, client.SetConcurrencyLimit(ctx, 2))

	snap, err = client.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.ConcurrencyLimit)
	assert.Equal(t, 2, snap.ActiveCount)

	c.OnDispatchEvent(a, queue.Completed())
	removed, err := client.ClearFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, client.Remove(ctx, b))
	removed, err = client.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestQueueService_ErrorCodes(t *testing.T) {
	client, c := newTestServer(t, 1, 1)
	ctx := context.Background()

	id, err := client.Enqueue(ctx, item.Request{SourceURL: "https://example.com/a", Kind: item.KindTrack})
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		want connect.Code
	}{
		{"invalid kind", func() error {
			_, err := client.Enqueue(ctx, item.Request{SourceURL: "x", Kind: "podcast"})
			return err
		}, connect.CodeInvalidArgument},
		{"queue full", func() error {
			_, err := client.Enqueue(ctx, item.Request{SourceURL: "https://example.com/b", Kind: item.KindTrack})
			return err
		}, connect.CodeResourceExhausted},
		{"unknown item", func() error { return client.Remove(ctx, "missing") }, connect.CodeNotFound},
		{"empty id", func() error { return client.Retry(ctx, " ") }, connect.CodeInvalidArgument},
		{"retry downloading", func() error { return client.Retry(ctx, id) }, connect.CodeFailedPrecondition},
		{"limit out of range", func() error { return client.SetConcurrencyLimit(ctx, 0) }, connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}

	c.Close()
	_, err = client.Enqueue(ctx, item.Request{SourceURL: "https://example.com/c", Kind: item.KindTrack})
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestQueueService_WatchQueue(t *testing.T) {
	client, c := newTestServer(t, 1, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := client.Enqueue(ctx, item.Request{SourceURL: "https://example.com/a", Kind: item.KindTrack})
	require.NoError(t, err)

	received := make(chan queue.Snapshot, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Watch(ctx, func(s queue.Snapshot) bool {
			received <- s
			return s.Stats.Completed == 0
		})
	}()

	initial := <-received
	require.Len(t, initial.Items, 1, "stream starts with the current state")
	assert.Equal(t, first, initial.Items[0].ID)

	c.OnDispatchEvent(first, queue.Progress(0.5))
	c.OnDispatchEvent(first, queue.Completed())

	var last queue.Snapshot
	require.Eventually(t, func() bool {
		for {
			select {
			case s := <-received:
				assert.Greater(t, s.Version, last.Version)
				last = s
			default:
				return last.Stats.Completed == 1
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, <-errCh)
}

func TestQueueService_WatchQueueEndsOnClose(t *testing.T) {
	client, c := newTestServer(t, 1, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		var once sync.Once
		errCh <- client.Watch(ctx, func(queue.Snapshot) bool {
			once.Do(func() { close(started) })
			return true
		})
	}()

	<-started
	c.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("stream did not end after close")
	}
}

func TestToConnectError(t *testing.T) {
	assert.Nil(t, toConnectError(nil))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(toConnectError(errors.New("boom"))))
	assert.Equal(t, connect.CodeCanceled, connect.CodeOf(toConnectError(errors.Wrap(context.Canceled, "enqueue"))))
}

func TestJSONCodec(t *testing.T) {
	var codec jsonCodec
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&SetConcurrencyLimitRequest{Limit: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":4}`, string(data))

	var msg EnqueueRequest
	require.NoError(t, codec.Unmarshal([]byte(`{"sourceUrl":"u","kind":"album"}`), &msg))
	assert.Equal(t, item.KindAlbum, msg.Kind)
	require.NoError(t, codec.Unmarshal(nil, &msg))
	assert.Error(t, codec.Unmarshal([]byte("{"), &msg))
}
