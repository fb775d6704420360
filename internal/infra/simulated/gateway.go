// Package simulated implements a download gateway that fakes transfers.
package simulated

import (
	"context"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/queue"
)

// FailMarker makes a transfer fail when present in the source URL.
const FailMarker = "fail"

// Config represents simulated transfer timing.
type Config struct {
	Steps int
	Step  time.Duration
}

// Gateway emits Steps progress events, one every Step, then completes.
type Gateway struct {
	cfg Config

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
}

var _ queue.Gateway = (*Gateway)(nil)

// New creates a simulated gateway.
func New(cfg Config) *Gateway {
	if cfg.Steps < 1 {
		cfg.Steps = 10
	}
	if cfg.Step <= 0 {
		cfg.Step = 250 * time.Millisecond
	}
	return &Gateway{cfg: cfg, runs: make(map[string]*run)}
}

// Start launches the simulated transfer.
func (g *Gateway) Start(ctx context.Context, job queue.Job) error {
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	g.mu.Lock()
	if prev, ok := g.runs[job.Item.ID]; ok {
		prev.cancel()
	}
	g.runs[job.Item.ID] = r
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.release(job.Item.ID, r)
		g.transfer(ctx, job)
	}()
	return nil
}

// Cancel stops a running transfer.
func (g *Gateway) Cancel(id string) {
	g.mu.Lock()
	r, ok := g.runs[id]
	g.mu.Unlock()
	if ok {
		r.cancel()
	}
}

func (g *Gateway) release(id string, r *run) {
	r.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runs[id] == r {
		delete(g.runs, id)
	}
}

// Wait blocks until every transfer has returned.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) transfer(ctx context.Context, job queue.Job) {
	id := job.Item.ID
	failAt := -1
	if strings.Contains(job.Item.SourceURL, FailMarker) {
		failAt = g.cfg.Steps / 2
	}

	ticker := time.NewTicker(g.cfg.Step)
	defer ticker.Stop()

	for step := 1; step <= g.cfg.Steps; step++ {
		select {
		case <-ctx.Done():
			zlog.Debug().Msgf("simulated transfer cancelled: id=%s step=%d", id, step)
			job.Report(queue.Failed("cancelled"))
			return
		case <-ticker.C:
		}

		if step == failAt {
			job.Report(queue.Failed("simulated failure"))
			return
		}
		if step < g.cfg.Steps {
			job.Report(queue.Progress(float64(step) / float64(g.cfg.Steps)))
		}
	}

	zlog.Debug().Msgf("simulated transfer completed: id=%s", id)
	job.Report(queue.Completed())
}
