package queue

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/domain/item"
)

// scheduleLocked promotes pending items to downloading while the queue is not
// paused and the concurrency limit has room. It returns the dispatches to start
// once the lock is released.
//
// Each promotion changes the item's status before returning, so redundant passes
// never start the same item twice.
func (c *Coordinator) scheduleLocked() []startRequest {
	if c.paused || c.closed {
		return nil
	}

	var starts []startRequest
	for c.active < c.limit {
		e := c.nextPendingLocked()
		if e == nil {
			break
		}

		now := c.now()
		e.item.Status = item.StatusDownloading
		e.item.Progress = 0
		e.item.StartedAt = &now
		e.item.CompletedAt = nil
		e.attempt++

		ctx, cancel := context.WithCancel(c.ctx)
		e.cancel = cancel
		c.active++

		starts = append(starts, startRequest{ctx: ctx, item: e.item.Clone(), attempt: e.attempt})
		zlog.Debug().Msgf("item admitted: id=%s attempt=%d active=%d/%d", e.item.ID, e.attempt, c.active, c.limit)
	}
	return starts
}

// nextPendingLocked returns the oldest pending entry by addedAt, then id.
func (c *Coordinator) nextPendingLocked() *entry {
	var next *entry
	for _, e := range c.entries {
		if e.item.Status != item.StatusPending {
			continue
		}
		if next == nil || e.item.Before(next.item) {
			next = e
		}
	}
	return next
}

// dispatch hands an admitted item to the gateway. A synchronous failure
// (error or panic) is applied exactly like a reported failure event.
func (c *Coordinator) dispatch(s startRequest) {
	id, attempt := s.item.ID, s.attempt
	job := Job{
		Item: s.item,
		Report: func(ev Event) {
			c.applyEvent(id, attempt, ev)
		},
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("gateway panic: %v", r)
			}
		}()
		return c.gateway.Start(s.ctx, job)
	}()
	if err != nil {
		zlog.Warn().Err(err).Msgf("dispatch start failed: id=%s", id)
		c.applyEvent(id, attempt, Failed(failureReason(err)))
	}
}
