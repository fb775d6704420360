package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedl/internal/domain/watch"
)

type watchRow struct {
	ID          string     `db:"id"`
	Name        string     `db:"name"`
	Kind        string     `db:"kind"`
	URL         string     `db:"url"`
	SourceID    string     `db:"source_id"`
	AddedAt     time.Time  `db:"added_at"`
	LastChecked *time.Time `db:"last_checked"`
	Active      bool       `db:"active"`
}

// seenBatchSize keeps multi-row inserts below SQLite's bound parameter limit.
const seenBatchSize = 300

var watchColumns = []string{"id", "name", "kind", "url", "source_id", "added_at", "last_checked", "active"}

func (r watchRow) entry() watch.Entry {
	return watch.Entry{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        watch.Kind(r.Kind),
		URL:         r.URL,
		SourceID:    r.SourceID,
		AddedAt:     r.AddedAt,
		LastChecked: r.LastChecked,
		Active:      r.Active,
	}
}

// AddWatch inserts a watch entry. Returns ErrDuplicate if the source is already watched.
func (s *Store) AddWatch(ctx context.Context, e watch.Entry) error {
	var lastChecked any
	if e.LastChecked != nil {
		lastChecked = e.LastChecked.UTC()
	}
	q := s.qb.Insert("watches").
		Columns(watchColumns...).
		Values(e.ID, e.Name, string(e.Kind), e.URL, e.SourceID, e.AddedAt.UTC(), lastChecked, e.Active)
	if _, err := s.exec(ctx, q); err != nil {
		return errors.Wrapf(err, "failed to add watch %s", e.SourceID)
	}
	return nil
}

// ListWatches returns every watch entry, oldest first.
func (s *Store) ListWatches(ctx context.Context) ([]watch.Entry, error) {
	var rows []watchRow
	q := s.qb.Select(watchColumns...).From("watches").OrderBy("added_at", "id")
	if err := s.selectInto(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "failed to list watches")
	}
	entries := make([]watch.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, nil
}

// GetWatch returns a watch entry by id.
func (s *Store) GetWatch(ctx context.Context, id string) (watch.Entry, error) {
	var row watchRow
	q := s.qb.Select(watchColumns...).From("watches").Where(sq.Eq{"id": id})
	if err := s.getInto(ctx, &row, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return watch.Entry{}, errors.Wrapf(ErrNotFound, "watch %s", id)
		}
		return watch.Entry{}, errors.Wrapf(err, "failed to get watch %s", id)
	}
	return row.entry(), nil
}

// RemoveWatch deletes a watch entry and its seen media.
func (s *Store) RemoveWatch(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.qb.Delete("watches").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to remove watch %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "watch %s", id)
	}

	query, args, err = s.qb.Delete("seen_media").Where(sq.Eq{"watch_id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "failed to remove seen media for %s", id)
	}

	return errors.Wrap(tx.Commit(), "failed to commit")
}

// SetWatchActive enables or disables polling of an entry.
func (s *Store) SetWatchActive(ctx context.Context, id string, active bool) error {
	return s.updateWatch(ctx, id, map[string]any{"active": active})
}

// MarkWatchChecked records the time of the latest check.
func (s *Store) MarkWatchChecked(ctx context.Context, id string, at time.Time) error {
	return s.updateWatch(ctx, id, map[string]any{"last_checked": at.UTC()})
}

func (s *Store) updateWatch(ctx context.Context, id string, set map[string]any) error {
	n, err := s.exec(ctx, s.qb.Update("watches").SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrapf(err, "failed to update watch %s", id)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "watch %s", id)
	}
	return nil
}

// SeenMedia returns the media ids already observed for a watch entry.
func (s *Store) SeenMedia(ctx context.Context, watchID string) (map[string]bool, error) {
	var ids []string
	q := s.qb.Select("media_id").From("seen_media").Where(sq.Eq{"watch_id": watchID})
	if err := s.selectInto(ctx, &ids, q); err != nil {
		return nil, errors.Wrapf(err, "failed to list seen media for %s", watchID)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}

// MarkMediaSeen records media ids as observed. Already seen ids are ignored.
func (s *Store) MarkMediaSeen(ctx context.Context, watchID string, mediaIDs ...string) error {
	now := time.Now().UTC()
	for len(mediaIDs) > 0 {
		n := min(len(mediaIDs), seenBatchSize)
		q := s.qb.Insert("seen_media").Options("OR IGNORE").Columns("watch_id", "media_id", "seen_at")
		for _, id := range mediaIDs[:n] {
			q = q.Values(watchID, id, now)
		}
		if _, err := s.exec(ctx, q); err != nil {
			return errors.Wrapf(err, "failed to mark media seen for %s", watchID)
		}
		mediaIDs = mediaIDs[n:]
	}
	return nil
}
