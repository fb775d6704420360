package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
)

// Client is a QueueService client.
type Client struct {
	enqueue             *connect.Client[EnqueueRequest, EnqueueResponse]
	remove              *connect.Client[ItemRequest, Empty]
	retry               *connect.Client[ItemRequest, Empty]
	pauseAll            *connect.Client[Empty, Empty]
	resumeAll           *connect.Client[Empty, Empty]
	pauseItem           *connect.Client[ItemRequest, Empty]
	resumeItem          *connect.Client[ItemRequest, Empty]
	setConcurrencyLimit *connect.Client[SetConcurrencyLimitRequest, Empty]
	clear               *connect.Client[Empty, ClearResponse]
	clearFinished       *connect.Client[Empty, ClearResponse]
	getSnapshot         *connect.Client[Empty, queue.Snapshot]
	watchQueue          *connect.Client[Empty, queue.Snapshot]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		enqueue:             connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+EnqueueProcedure, opts...),
		remove:              connect.NewClient[ItemRequest, Empty](httpClient, baseURL+RemoveProcedure, opts...),
		retry:               connect.NewClient[ItemRequest, Empty](httpClient, baseURL+RetryProcedure, opts...),
		pauseAll:            connect.NewClient[Empty, Empty](httpClient, baseURL+PauseAllProcedure, opts...),
		resumeAll:           connect.NewClient[Empty, Empty](httpClient, baseURL+ResumeAllProcedure, opts...),
		pauseItem:           connect.NewClient[ItemRequest, Empty](httpClient, baseURL+PauseItemProcedure, opts...),
		resumeItem:          connect.NewClient[ItemRequest, Empty](httpClient, baseURL+ResumeItemProcedure, opts...),
		setConcurrencyLimit: connect.NewClient[SetConcurrencyLimitRequest, Empty](httpClient, baseURL+SetConcurrencyLimitProcedure, opts...),
		clear:               connect.NewClient[Empty, ClearResponse](httpClient, baseURL+ClearProcedure, opts...),
		clearFinished:       connect.NewClient[Empty, ClearResponse](httpClient, baseURL+ClearFinishedProcedure, opts...),
		getSnapshot:         connect.NewClient[Empty, queue.Snapshot](httpClient, baseURL+GetSnapshotProcedure, opts...),
		watchQueue:          connect.NewClient[Empty, queue.Snapshot](httpClient, baseURL+WatchQueueProcedure, opts...),
	}
}

// Enqueue adds a download and returns its id.
func (c *Client) Enqueue(ctx context.Context, req item.Request) (string, error) {
	resp, err := c.enqueue.CallUnary(ctx, connect.NewRequest(&EnqueueRequest{Request: req}))
	if err != nil {
		return "", err
	}
	return resp.Msg.ID, nil
}

// Remove removes an item.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.remove.CallUnary(ctx, connect.NewRequest(&ItemRequest{ID: id}))
	return err
}

// Retry re-queues a failed item.
func (c *Client) Retry(ctx context.Context, id string) error {
	_, err := c.retry.CallUnary(ctx, connect.NewRequest(&ItemRequest{ID: id}))
	return err
}

// PauseAll stops admitting new downloads.
func (c *Client) PauseAll(ctx context.Context) error {
	_, err := c.pauseAll.CallUnary(ctx, connect.NewRequest(&Empty{}))
	return err
}

// ResumeAll resumes admitting downloads.
func (c *Client) ResumeAll(ctx context.Context) error {
	_, err := c.resumeAll.CallUnary(ctx, connect.NewRequest(&Empty{}))
	return err
}

// PauseItem holds a pending item.
func (c *Client) PauseItem(ctx context.Context, id string) error {
	_, err := c.pauseItem.CallUnary(ctx, connect.NewRequest(&ItemRequest{ID: id}))
	return err
}

// ResumeItem releases a held item.
func (c *Client) ResumeItem(ctx context.Context, id string) error {
	_, err := c.resumeItem.CallUnary(ctx, connect.NewRequest(&ItemRequest{ID: id}))
	return err
}

// SetConcurrencyLimit changes the number of simultaneous downloads.
func (c *Client) SetConcurrencyLimit(ctx context.Context, limit int) error {
	_, err := c.setConcurrencyLimit.CallUnary(ctx, connect.NewRequest(&SetConcurrencyLimitRequest{Limit: limit}))
	return err
}

// Clear removes every item.
func (c *Client) Clear(ctx context.Context) (int, error) {
	resp, err := c.clear.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return 0, err
	}
	return resp.Msg.Removed, nil
}

// ClearFinished removes completed and failed items.
func (c *Client) ClearFinished(ctx context.Context) (int, error) {
	resp, err := c.clearFinished.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return 0, err
	}
	return resp.Msg.Removed, nil
}

// Snapshot returns the current queue state.
func (c *Client) Snapshot(ctx context.Context) (queue.Snapshot, error) {
	resp, err := c.getSnapshot.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return queue.Snapshot{}, err
	}
	return *resp.Msg, nil
}

// Watch calls fn with every snapshot the server streams until ctx is done,
// the stream ends or fn returns false.
func (c *Client) Watch(ctx context.Context, fn func(queue.Snapshot) bool) error {
	stream, err := c.watchQueue.CallServerStream(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if !fn(*stream.Msg()) {
			return nil
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
