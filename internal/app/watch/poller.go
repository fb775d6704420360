// Package watch polls watched artists and playlists and enqueues new releases.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/app/queue"
	"github.com/osa030/tunedl/internal/domain/item"
	"github.com/osa030/tunedl/internal/domain/media"
	"github.com/osa030/tunedl/internal/domain/watch"
)

// Store persists watch entries and the media already seen for each.
type Store interface {
	AddWatch(ctx context.Context, e watch.Entry) error
	ListWatches(ctx context.Context) ([]watch.Entry, error)
	GetWatch(ctx context.Context, id string) (watch.Entry, error)
	RemoveWatch(ctx context.Context, id string) error
	SetWatchActive(ctx context.Context, id string, active bool) error
	MarkWatchChecked(ctx context.Context, id string, at time.Time) error
	SeenMedia(ctx context.Context, watchID string) (map[string]bool, error)
	MarkMediaSeen(ctx context.Context, watchID string, mediaIDs ...string) error
}

// Catalog lists the current media of a watched source.
type Catalog interface {
	ListMedia(ctx context.Context, kind watch.Kind, sourceID string) ([]media.Media, error)
	SourceName(ctx context.Context, kind watch.Kind, sourceID string) (string, error)
}

// Enqueuer accepts download requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, req item.Request) (string, error)
}

// Result summarises one check of a watch entry.
type Result struct {
	WatchID  string `json:"watchId"`
	Seeded   bool   `json:"seeded"`
	Found    int    `json:"found"`
	Enqueued int    `json:"enqueued"`
	Skipped  int    `json:"skipped"`
}

// Poller manages the watch list.
type Poller struct {
	store    Store
	catalog  Catalog
	queue    Enqueuer
	interval time.Duration
	now      func() time.Time
	validate *validator.Validate

	// serialises checks so a manual check never races the loop on the same entry
	checkMu sync.Mutex
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration
	Clock    func() time.Time
}

// NewPoller creates a poller.
func NewPoller(store Store, catalog Catalog, q Enqueuer, cfg Config) (*Poller, error) {
	if store == nil || catalog == nil || q == nil {
		return nil, errors.New("store, catalog and enqueuer are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Poller{
		store:    store,
		catalog:  catalog,
		queue:    q,
		interval: cfg.Interval,
		now:      cfg.Clock,
		validate: validator.New(),
	}, nil
}

// Add resolves the source and adds it to the watch list.
// An empty name is replaced with the source's name from the catalog.
func (p *Poller) Add(ctx context.Context, req watch.AddRequest) (watch.Entry, error) {
	if err := p.validate.Struct(req); err != nil {
		return watch.Entry{}, errors.Wrap(err, "invalid watch request")
	}
	kind, sourceID, err := watch.ParseSource(req.URL)
	if err != nil {
		return watch.Entry{}, err
	}

	name := req.Name
	if name == "" {
		name, err = p.catalog.SourceName(ctx, kind, sourceID)
		if err != nil {
			return watch.Entry{}, errors.Wrap(err, "failed to resolve source name")
		}
	}

	e := watch.Entry{
		ID:       uuid.New().String(),
		Name:     name,
		Kind:     kind,
		URL:      req.URL,
		SourceID: sourceID,
		AddedAt:  p.now(),
		Active:   true,
	}
	if err := p.store.AddWatch(ctx, e); err != nil {
		return watch.Entry{}, err
	}

	zlog.Info().Msgf("watch added: watch=%s kind=%s name=%s", e.ID, kind, name)
	return e, nil
}

// List returns every watch entry.
func (p *Poller) List(ctx context.Context) ([]watch.Entry, error) {
	return p.store.ListWatches(ctx)
}

// Remove deletes a watch entry.
func (p *Poller) Remove(ctx context.Context, id string) error {
	if err := p.store.RemoveWatch(ctx, id); err != nil {
		return err
	}
	zlog.Info().Msgf("watch removed: watch=%s", id)
	return nil
}

// SetActive enables or disables polling of an entry.
func (p *Poller) SetActive(ctx context.Context, id string, active bool) (watch.Entry, error) {
	if err := p.store.SetWatchActive(ctx, id, active); err != nil {
		return watch.Entry{}, err
	}
	return p.store.GetWatch(ctx, id)
}

// CheckNow checks a single entry immediately, whether or not it is due or active.
func (p *Poller) CheckNow(ctx context.Context, id string) (Result, error) {
	e, err := p.store.GetWatch(ctx, id)
	if err != nil {
		return Result{}, err
	}

	p.checkMu.Lock()
	defer p.checkMu.Unlock()
	return p.check(ctx, e, p.now())
}

// Run checks due entries every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	zlog.Info().Msgf("watch poller started: interval=%s", p.interval)
	defer zlog.Info().Msg("watch poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one round over every due entry. A full queue ends the round early.
func (p *Poller) Poll(ctx context.Context) []Result {
	p.checkMu.Lock()
	defer p.checkMu.Unlock()

	entries, err := p.store.ListWatches(ctx)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to list watches")
		return nil
	}

	var results []Result
	now := p.now()
	for _, e := range entries {
		if ctx.Err() != nil {
			return results
		}
		if !e.Due(now, p.interval) {
			continue
		}
		res, err := p.check(ctx, e, now)
		if err != nil {
			if queue.IsCapacity(err) {
				zlog.Warn().Msgf("queue full, stopping watch round: watch=%s", e.ID)
				results = append(results, res)
				return results
			}
			zlog.Warn().Err(err).Msgf("watch check failed: watch=%s name=%s", e.ID, e.Name)
			continue
		}
		results = append(results, res)
	}
	return results
}

// check lists the entry's media and enqueues unseen ones. The first check of an
// entry only records what already exists. at is stored as the check time so
// entries checked in one round fall due together in the next.
func (p *Poller) check(ctx context.Context, e watch.Entry, at time.Time) (Result, error) {
	res := Result{WatchID: e.ID, Seeded: !e.Seeded()}

	found, err := p.catalog.ListMedia(ctx, e.Kind, e.SourceID)
	if err != nil {
		return res, errors.Wrapf(err, "failed to list media for %s", e.Name)
	}
	res.Found = len(found)

	seen, err := p.store.SeenMedia(ctx, e.ID)
	if err != nil {
		return res, err
	}

	var fresh []media.Media
	for _, m := range found {
		if !seen[m.ID] {
			fresh = append(fresh, m)
			seen[m.ID] = true
		}
	}

	if res.Seeded {
		if err := p.store.MarkMediaSeen(ctx, e.ID, mediaIDs(fresh)...); err != nil {
			return res, err
		}
		return res, p.markChecked(ctx, e, res, at)
	}

	for _, m := range fresh {
		_, err := p.queue.Enqueue(ctx, m.Request(item.OriginWatch))
		switch {
		case err == nil:
			res.Enqueued++
		case queue.IsCapacity(err):
			// unseen media stay unmarked and are retried next round
			return res, err
		case queue.IsValidation(err):
			// filtered or malformed; do not offer it again
			res.Skipped++
			zlog.Debug().Err(err).Msgf("watch media rejected: media=%s", m.ID)
		default:
			return res, err
		}
		if err := p.store.MarkMediaSeen(ctx, e.ID, m.ID); err != nil {
			return res, err
		}
	}

	return res, p.markChecked(ctx, e, res, at)
}

func (p *Poller) markChecked(ctx context.Context, e watch.Entry, res Result, at time.Time) error {
	if err := p.store.MarkWatchChecked(ctx, e.ID, at); err != nil {
		return err
	}
	zlog.Info().Msgf("watch checked: watch=%s name=%s seeded=%t found=%d enqueued=%d",
		e.ID, e.Name, res.Seeded, res.Found, res.Enqueued)
	return nil
}

func mediaIDs(ms []media.Media) []string {
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	return ids
}
