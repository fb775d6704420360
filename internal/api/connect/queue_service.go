package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
)

// Queue is the coordinator surface exposed over RPC.
type Queue interface {
	Enqueue(ctx context.Context, req item.Request) (string, error)
	Remove(id string) error
	Retry(id string) error
	PauseAll()
	ResumeAll()
	PauseItem(id string) error
	ResumeItem(id string) error
	SetConcurrencyLimit(n int) error
	Clear() int
	ClearFinished() int
	Snapshot() queue.Snapshot
	Stream(buffer int) (<-chan queue.Snapshot, func())
	Done() <-chan struct{}
}

// streamBuffer is the number of undelivered snapshots held per WatchQueue stream.
const streamBuffer = 16

// QueueService implements the QueueService RPC.
type QueueService struct {
	queue Queue
}

// NewQueueService creates a new QueueService.
func NewQueueService(q Queue) *QueueService {
	return &QueueService{queue: q}
}

// NewQueueServiceHandler builds an HTTP handler serving every procedure of svc
// and returns the path to mount it on.
func NewQueueServiceHandler(svc *QueueService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	readOnly := append([]connect.HandlerOption{connect.WithIdempotency(connect.IdempotencyNoSideEffects)}, opts...)

	mux := http.NewServeMux()
	mux.Handle(EnqueueProcedure, connect.NewUnaryHandler(EnqueueProcedure, svc.Enqueue, opts...))
	mux.Handle(RemoveProcedure, connect.NewUnaryHandler(RemoveProcedure, svc.Remove, opts...))
	mux.Handle(RetryProcedure, connect.NewUnaryHandler(RetryProcedure, svc.Retry, opts...))
	mux.Handle(PauseAllProcedure, connect.NewUnaryHandler(PauseAllProcedure, svc.PauseAll, opts...))
	mux.Handle(ResumeAllProcedure, connect.NewUnaryHandler(ResumeAllProcedure, svc.ResumeAll, opts...))
	mux.Handle(PauseItemProcedure, connect.NewUnaryHandler(PauseItemProcedure, svc.PauseItem, opts...))
	mux.Handle(ResumeItemProcedure, connect.NewUnaryHandler(ResumeItemProcedure, svc.ResumeItem, opts...))
	mux.Handle(SetConcurrencyLimitProcedure, connect.NewUnaryHandler(SetConcurrencyLimitProcedure, svc.SetConcurrencyLimit, opts...))
	mux.Handle(ClearProcedure, connect.NewUnaryHandler(ClearProcedure, svc.Clear, opts...))
	mux.Handle(ClearFinishedProcedure, connect.NewUnaryHandler(ClearFinishedProcedure, svc.ClearFinished, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, svc.GetSnapshot, readOnly...))
	mux.Handle(WatchQueueProcedure, connect.NewServerStreamHandler(WatchQueueProcedure, svc.WatchQueue, readOnly...))

	return "/" + ServiceName + "/", mux
}

// Enqueue adds a download to the queue.
func (s *QueueService) Enqueue(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	id, err := s.queue.Enqueue(ctx, req.Msg.Request)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EnqueueResponse{ID: id}), nil
}

// Remove removes an item, cancelling it if it is downloading.
func (s *QueueService) Remove(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[Empty], error) {
	return itemCall(req, s.queue.Remove)
}

// Retry re-queues a failed item.
func (s *QueueService) Retry(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[Empty], error) {
	return itemCall(req, s.queue.Retry)
}

// PauseAll stops admitting new downloads.
func (s *QueueService) PauseAll(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	s.queue.PauseAll()
	return connect.NewResponse(&Empty{}), nil
}

// ResumeAll resumes admitting downloads.
func (s *QueueService) ResumeAll(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	s.queue.ResumeAll()
	return connect.NewResponse(&Empty{}), nil
}

// PauseItem holds a pending item.
func (s *QueueService) PauseItem(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[Empty], error) {
	return itemCall(req, s.queue.PauseItem)
}

// ResumeItem releases a held item.
func (s *QueueService) ResumeItem(
	ctx context.Context,
	req *connect.Request[ItemRequest],
) (*connect.Response[Empty], error) {
	return itemCall(req, s.queue.ResumeItem)
}

// SetConcurrencyLimit changes the number of simultaneous downloads.
func (s *QueueService) SetConcurrencyLimit(
	ctx context.Context,
	req *connect.Request[SetConcurrencyLimitRequest],
) (*connect.Response[Empty], error) {
	if err := s.queue.SetConcurrencyLimit(req.Msg.Limit); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Clear removes every item.
func (s *QueueService) Clear(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ClearResponse], error) {
	return connect.NewResponse(&ClearResponse{Removed: s.queue.Clear()}), nil
}

// ClearFinished removes completed and failed items.
func (s *QueueService) ClearFinished(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ClearResponse], error) {
	return connect.NewResponse(&ClearResponse{Removed: s.queue.ClearFinished()}), nil
}

// GetSnapshot returns the current queue state.
func (s *QueueService) GetSnapshot(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[queue.Snapshot], error) {
	snap := s.queue.Snapshot()
	return connect.NewResponse(&snap), nil
}

// WatchQueue streams the current snapshot followed by every newer one.
func (s *QueueService) WatchQueue(
	ctx context.Context,
	req *connect.Request[Empty],
	stream *connect.ServerStream[queue.Snapshot],
) error {
	// subscribe before reading the current state so no change is missed
	updates, cancel := s.queue.Stream(streamBuffer)
	defer cancel()

	current := s.queue.Snapshot()
	if err := stream.Send(&current); err != nil {
		return err
	}
	last := current.Version

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.queue.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if snap.Version <= last {
				continue
			}
			if err := stream.Send(&snap); err != nil {
				return err
			}
			last = snap.Version
		}
	}
}

func itemCall(req *connect.Request[ItemRequest], op func(id string) error) (*connect.Response[Empty], error) {
	id := strings.TrimSpace(req.Msg.ID)
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, &queue.ValidationError{Field: "id", Reason: "must not be empty"})
	}
	if err := op(id); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}
