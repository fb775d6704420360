package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedl/internal/domain/history"
	"github.com/osa030/tunedl/internal/domain/item"
)

type historyRow struct {
	ID         string    `db:"id"`
	ItemID     string    `db:"item_id"`
	SourceURL  string    `db:"source_url"`
	Kind       string    `db:"kind"`
	Title      string    `db:"title"`
	Artist     string    `db:"artist"`
	Album      string    `db:"album"`
	Quality    string    `db:"quality"`
	Format     string    `db:"format"`
	Status     string    `db:"status"`
	Error      string    `db:"error"`
	AddedAt    time.Time `db:"added_at"`
	FinishedAt time.Time `db:"finished_at"`
}

var historyColumns = []string{
	"id", "item_id", "source_url", "kind", "title", "artist", "album",
	"quality", "format", "status", "error", "added_at", "finished_at",
}

func (r historyRow) entry() history.Entry {
	return history.Entry{
		ID:         r.ID,
		ItemID:     r.ItemID,
		SourceURL:  r.SourceURL,
		Kind:       item.Kind(r.Kind),
		Title:      r.Title,
		Artist:     r.Artist,
		Album:      r.Album,
		Quality:    item.Quality(r.Quality),
		Format:     item.Format(r.Format),
		Status:     item.Status(r.Status),
		Error:      r.Error,
		AddedAt:    r.AddedAt,
		FinishedAt: r.FinishedAt,
	}
}

// SaveHistory inserts a history entry.
func (s *Store) SaveHistory(ctx context.Context, e history.Entry) error {
	q := s.qb.Insert("history").
		Columns(historyColumns...).
		Values(
			e.ID, e.ItemID, e.SourceURL, string(e.Kind), e.Title, e.Artist, e.Album,
			string(e.Quality), string(e.Format), string(e.Status), e.Error,
			e.AddedAt.UTC(), e.FinishedAt.UTC(),
		)
	if _, err := s.exec(ctx, q); err != nil {
		return errors.Wrapf(err, "failed to save history %s", e.ID)
	}
	return nil
}

// ListHistory returns entries newest first, and the total number of entries.
func (s *Store) ListHistory(ctx context.Context, limit, offset int) ([]history.Entry, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, errors.Newf("invalid page: limit=%d offset=%d", limit, offset)
	}

	var total int
	if err := s.getInto(ctx, &total, s.qb.Select("COUNT(*)").From("history")); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count history")
	}

	q := s.qb.Select(historyColumns...).
		From("history").
		OrderBy("finished_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	var rows []historyRow
	if err := s.selectInto(ctx, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list history")
	}

	entries := make([]history.Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries, total, nil
}

// ClearHistory deletes every entry and returns the number removed.
func (s *Store) ClearHistory(ctx context.Context) (int, error) {
	n, err := s.exec(ctx, s.qb.Delete("history"))
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear history")
	}
	return int(n), nil
}
