// Package queue provides the download queue coordinator.
//
// The Coordinator owns every queued item, admits pending items to a Gateway under a
// concurrency limit in FIFO order, applies the events the gateway reports back, and
// publishes a full Snapshot to subscribers after every change.
package queue

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/filter"
	"github.com/osa030/tunedl/internal/app/notification"
	"github.com/osa030/tunedl/internal/domain/item"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultConcurrencyLimit    = 3
	DefaultMaxConcurrencyLimit = 10
	DefaultMaxItems            = 100
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("coordinator is closed")

// Config holds coordinator configuration.
type Config struct {
	ConcurrencyLimit    int
	MaxConcurrencyLimit int
	MaxItems            int
	DefaultQuality      item.Quality
	DefaultFormat       item.Format

	Filters *filter.Chain    // optional admission filters
	Clock   func() time.Time // defaults to time.Now
	// NewID defaults to time-ordered UUIDs. An id it returns twice, even after the
	// first item was removed, fails the enqueue.
	NewID func() string
}

type entry struct {
	item    item.Item
	attempt int
	cancel  context.CancelFunc // set while downloading
}

type startRequest struct {
	ctx     context.Context
	item    item.Item
	attempt int
}

// Coordinator manages the download queue.
type Coordinator struct {
	gateway  Gateway
	filters  *filter.Chain
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	entries        []*entry // enqueue order
	index          map[string]*entry
	issued         map[string]struct{} // every id ever admitted
	paused         bool
	active         int
	limit          int
	maxLimit       int
	maxItems       int
	defaultQuality item.Quality
	defaultFormat  item.Format
	version        uint64
	closed         bool

	// delivery state, guarded by deliverMu
	deliverMu  sync.Mutex
	delivering bool
	outbox     []Snapshot // committed, not yet delivered, in version order

	notifier *notification.Manager[Snapshot]
}

var _ EventSink = (*Coordinator)(nil)

// New creates a coordinator dispatching to gw.
func New(gw Gateway, cfg Config) (*Coordinator, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.MaxConcurrencyLimit == 0 {
		cfg.MaxConcurrencyLimit = DefaultMaxConcurrencyLimit
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.MaxItems == 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = item.QualityHigh
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = item.FormatMP3
	}
	if cfg.ConcurrencyLimit < 1 || cfg.ConcurrencyLimit > cfg.MaxConcurrencyLimit {
		return nil, errors.Newf("concurrency limit must be between 1 and %d, got %d", cfg.MaxConcurrencyLimit, cfg.ConcurrencyLimit)
	}
	if cfg.MaxItems < 1 {
		return nil, errors.Newf("max items must be positive, got %d", cfg.MaxItems)
	}
	if !cfg.DefaultQuality.Valid() {
		return nil, errors.Newf("unknown default quality: %s", cfg.DefaultQuality)
	}
	if !cfg.DefaultFormat.Valid() {
		return nil, errors.Newf("unknown default format: %s", cfg.DefaultFormat)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = newItemID
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		gateway:        gw,
		filters:        cfg.Filters,
		now:            cfg.Clock,
		newID:          cfg.NewID,
		validate:       newRequestValidator(),
		ctx:            ctx,
		cancel:         cancel,
		index:          make(map[string]*entry),
		issued:         make(map[string]struct{}),
		limit:          cfg.ConcurrencyLimit,
		maxLimit:       cfg.MaxConcurrencyLimit,
		maxItems:       cfg.MaxItems,
		defaultQuality: cfg.DefaultQuality,
		defaultFormat:  cfg.DefaultFormat,
		notifier:       notification.NewManager[Snapshot](),
	}, nil
}

// newItemID returns a UUIDv7, whose string form sorts in creation order.
func newItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Enqueue validates req, admits it as a pending item and runs a scheduling pass.
// It returns the new item's id.
func (c *Coordinator) Enqueue(ctx context.Context, req item.Request) (string, error) {
	req = req.Normalize()
	if err := c.validateRequest(req); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if len(c.entries) >= c.maxItems {
		c.mu.Unlock()
		zlog.Debug().Msgf("enqueue rejected, queue full: source=%s max=%d", req.SourceURL, c.maxItems)
		return "", &CapacityError{Max: c.maxItems}
	}
	if result := c.filters.Execute(ctx, req, c.itemsLocked()); !result.Accepted {
		c.mu.Unlock()
		zlog.Debug().Msgf("enqueue rejected by filter: source=%s code=%s", req.SourceURL, result.Code)
		return "", &ValidationError{Field: "filter", Reason: result.Code}
	}

	it := item.Item{
		ID:        c.newID(),
		SourceURL: req.SourceURL,
		Kind:      req.Kind,
		Quality:   req.Quality,
		Format:    req.Format,
		Title:     req.Title,
		Artist:    req.Artist,
		Album:     req.Album,
		Origin:    req.Origin,
		Status:    item.StatusPending,
		AddedAt:   c.now(),
	}
	if it.Quality == "" {
		it.Quality = c.defaultQuality
	}
	if it.Format == "" {
		it.Format = c.defaultFormat
	}
	if _, dup := c.issued[it.ID]; dup {
		c.mu.Unlock()
		return "", errors.Newf("id generator returned duplicate id %s", it.ID)
	}

	e := &entry{item: it}
	c.entries = append(c.entries, e)
	c.index[it.ID] = e
	c.issued[it.ID] = struct{}{}
	zlog.Info().Msgf("item enqueued: id=%s kind=%s source=%s", it.ID, it.Kind, it.SourceURL)

	c.commitLocked(nil)
	return it.ID, nil
}

func (c *Coordinator) validateRequest(req item.Request) error {
	err := c.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := fe.Tag()
		switch fe.Tag() {
		case "required":
			reason = "must not be empty"
		case "oneof":
			reason = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

// Remove deletes an item. A downloading item has its dispatch cancelled first;
// the record is removed without waiting for the gateway.
func (c *Coordinator) Remove(id string) error {
	c.mu.Lock()
	e, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{ID: id}
	}

	var cancelled []string
	if c.removeLocked(e) {
		cancelled = append(cancelled, id)
	}
	zlog.Info().Msgf("item removed: id=%s status=%s", id, e.item.Status)

	c.commitLocked(cancelled)
	return nil
}

// Retry moves a failed item back to pending.
func (c *Coordinator) Retry(id string) error {
	c.mu.Lock()
	e, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	if e.item.Status != item.StatusFailed {
		status := e.item.Status
		c.mu.Unlock()
		return &InvalidStateError{ID: id, Op: "retry", Status: status}
	}

	e.item.Status = item.StatusPending
	e.item.Progress = 0
	e.item.Error = ""
	e.item.StartedAt = nil
	e.item.CompletedAt = nil
	zlog.Info().Msgf("item retried: id=%s", id)

	c.commitLocked(nil)
	return nil
}

// PauseAll stops admission of pending items. Downloads in flight keep running.
func (c *Coordinator) PauseAll() {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	zlog.Info().Msgf("queue paused: active=%d", c.active)

	c.commitLocked(nil)
}

// ResumeAll re-enables admission and runs a scheduling pass.
func (c *Coordinator) ResumeAll() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	zlog.Info().Msg("queue resumed")

	c.commitLocked(nil)
}

// PauseItem holds a pending item out of scheduling.
func (c *Coordinator) PauseItem(id string) error {
	return c.transition(id, "pause", item.StatusPending, item.StatusPaused)
}

// ResumeItem returns a paused item to pending.
func (c *Coordinator) ResumeItem(id string) error {
	return c.transition(id, "resume", item.StatusPaused, item.StatusPending)
}

func (c *Coordinator) transition(id, op string, from, to item.Status) error {
	c.mu.Lock()
	e, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{ID: id}
	}
	if e.item.Status != from {
		status := e.item.Status
		c.mu.Unlock()
		return &InvalidStateError{ID: id, Op: op, Status: status}
	}
	e.item.Status = to
	zlog.Debug().Msgf("item %s: id=%s", op, id)

	c.commitLocked(nil)
	return nil
}

// SetConcurrencyLimit changes the limit. Items already downloading are never
// preempted; a lower limit only delays new admissions.
func (c *Coordinator) SetConcurrencyLimit(n int) error {
	c.mu.Lock()
	if n < 1 || n > c.maxLimit {
		c.mu.Unlock()
		return &ValidationError{
			Field:  "concurrencyLimit",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", c.maxLimit, n),
		}
	}
	if n == c.limit {
		c.mu.Unlock()
		return nil
	}
	zlog.Info().Msgf("concurrency limit changed: %d -> %d", c.limit, n)
	c.limit = n

	c.commitLocked(nil)
	return nil
}

// SetDefaults changes the quality and format given to requests that leave them
// empty. An empty argument keeps the current value. Queued items are unaffected.
func (c *Coordinator) SetDefaults(quality item.Quality, format item.Format) error {
	if quality != "" && !quality.Valid() {
		return &ValidationError{Field: "quality", Reason: fmt.Sprintf("unknown quality %q", quality)}
	}
	if format != "" && !format.Valid() {
		return &ValidationError{Field: "format", Reason: fmt.Sprintf("unknown format %q", format)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if quality != "" {
		c.defaultQuality = quality
	}
	if format != "" {
		c.defaultFormat = format
	}
	zlog.Info().Msgf("download defaults changed: quality=%s format=%s", c.defaultQuality, c.defaultFormat)
	return nil
}

// Defaults returns the quality and format applied to requests that leave them empty.
func (c *Coordinator) Defaults() (item.Quality, item.Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultQuality, c.defaultFormat
}

// Clear removes every item, cancelling downloads in flight. Returns the number removed.
func (c *Coordinator) Clear() int {
	return c.removeWhere(func(item.Item) bool { return true })
}

// ClearFinished removes completed and failed items. Returns the number removed.
func (c *Coordinator) ClearFinished() int {
	return c.removeWhere(func(it item.Item) bool { return it.Status.IsTerminal() })
}

func (c *Coordinator) removeWhere(match func(item.Item) bool) int {
	c.mu.Lock()
	var victims []*entry
	for _, e := range c.entries {
		if match(e.item) {
			victims = append(victims, e)
		}
	}
	if len(victims) == 0 {
		c.mu.Unlock()
		return 0
	}

	var cancelled []string
	for _, e := range victims {
		if c.removeLocked(e) {
			cancelled = append(cancelled, e.item.ID)
		}
	}
	zlog.Info().Msgf("items cleared: count=%d cancelled=%d", len(victims), len(cancelled))

	c.commitLocked(cancelled)
	return len(victims)
}

// removeLocked drops e from the queue and reports whether a download was cancelled.
func (c *Coordinator) removeLocked(e *entry) bool {
	wasActive := e.item.Status == item.StatusDownloading
	if wasActive {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		c.active--
	}
	delete(c.index, e.item.ID)
	for i, x := range c.entries {
		if x == e {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	return wasActive
}

// OnDispatchEvent applies a gateway event to the item's current attempt.
// Events for unknown ids or items that are not downloading are ignored.
func (c *Coordinator) OnDispatchEvent(id string, ev Event) {
	c.applyEvent(id, 0, ev)
}

func (c *Coordinator) applyEvent(id string, attempt int, ev Event) {
	c.mu.Lock()
	e, ok := c.index[id]
	if !ok || e.item.Status != item.StatusDownloading || (attempt != 0 && attempt != e.attempt) {
		c.mu.Unlock()
		zlog.Debug().Msgf("dispatch event ignored: id=%s type=%s", id, ev.Type)
		return
	}

	if !ev.IsTerminal() {
		if ev.Type != EventProgress {
			c.mu.Unlock()
			return
		}
		p := clampProgress(ev.Progress)
		if p <= e.item.Progress {
			c.mu.Unlock()
			return
		}
		e.item.Progress = p
		c.commitLocked(nil)
		return
	}

	switch ev.Type {
	case EventCompleted:
		c.finishLocked(e, item.StatusCompleted, "")
		zlog.Info().Msgf("item completed: id=%s name=%s", id, e.item.DisplayName())
		c.commitLocked(nil)

	case EventFailed:
		reason := ev.Reason
		if reason == "" {
			reason = defaultFailureReason
		}
		c.finishLocked(e, item.StatusFailed, reason)
		zlog.Warn().Msgf("item failed: id=%s reason=%s", id, reason)
		c.commitLocked(nil)
	}
}

func (c *Coordinator) finishLocked(e *entry, status item.Status, reason string) {
	now := c.now()
	e.item.Status = status
	e.item.CompletedAt = &now
	e.item.Error = reason
	if status == item.StatusCompleted {
		e.item.Progress = 1
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	c.active--
}

func clampProgress(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Snapshot returns the current queue state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change.
// fn runs on the goroutine that made the change; it may read the coordinator,
// and mutations it makes are delivered after fn returns.
func (c *Coordinator) Subscribe(fn func(Snapshot)) *notification.Subscription {
	return c.notifier.Subscribe(fn)
}

// Stream returns a channel of snapshots holding at most buffer undelivered values.
// Only the most recent snapshots are kept when the reader falls behind.
func (c *Coordinator) Stream(buffer int) (<-chan Snapshot, func()) {
	return c.notifier.Stream(buffer)
}

// Done is closed when the coordinator is closed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close cancels every dispatch context and drops all subscribers.
// Items stay in the queue; Enqueue fails with ErrClosed afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.mu.Unlock()

	c.notifier.Close()
}

func (c *Coordinator) itemsLocked() []item.Item {
	items := make([]item.Item, len(c.entries))
	for i, e := range c.entries {
		items[i] = e.item.Clone()
	}
	return items
}

func (c *Coordinator) snapshotLocked() Snapshot {
	items := c.itemsLocked()
	var stats Stats
	for _, it := range items {
		stats.add(it.Status)
	}
	return Snapshot{
		Version:          c.version,
		Items:            items,
		Paused:           c.paused,
		ActiveCount:      c.active,
		ConcurrencyLimit: c.limit,
		MaxItems:         c.maxItems,
		Stats:            stats,
	}
}

// commitLocked runs a scheduling pass, bumps the version, queues the snapshot
// for delivery and releases c.mu. Gateway calls and subscriber delivery happen
// after the lock is released.
func (c *Coordinator) commitLocked(cancelled []string) {
	starts := c.scheduleLocked()
	c.version++
	snap := c.snapshotLocked()

	// queued under c.mu so the outbox stays in version order
	c.deliverMu.Lock()
	c.outbox = append(c.outbox, snap)
	c.deliverMu.Unlock()
	c.mu.Unlock()

	for _, id := range cancelled {
		c.gateway.Cancel(id)
	}
	c.deliver()
	for _, s := range starts {
		c.dispatch(s)
	}
}

// deliver drains the outbox, publishing every snapshot in order. Only one
// goroutine delivers at a time; a caller arriving while a delivery is running
// (including a subscriber callback that mutates the queue) leaves its snapshot
// to that loop instead of blocking.
func (c *Coordinator) deliver() {
	c.deliverMu.Lock()
	if c.delivering {
		c.deliverMu.Unlock()
		return
	}
	c.delivering = true
	for len(c.outbox) > 0 {
		next := c.outbox[0]
		c.outbox[0] = Snapshot{}
		c.outbox = c.outbox[1:]
		c.deliverMu.Unlock()

		c.notifier.Publish(next)

		c.deliverMu.Lock()
	}
	c.outbox = nil
	c.delivering = false
	c.deliverMu.Unlock()
}
