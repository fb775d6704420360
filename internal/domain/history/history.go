// Package history provides the download history entity.
package history

import (
	"time"

	"github.com/osa030/tunedl/internal/domain/item"
)

// Entry is a finished download, recorded once per terminal transition.
type Entry struct {
	ID         string       `json:"id"`
	ItemID     string       `json:"itemId"`
	SourceURL  string       `json:"sourceUrl"`
	Kind       item.Kind    `json:"kind"`
	Title      string       `json:"title,omitempty"`
	Artist     string       `json:"artist,omitempty"`
	Album      string       `json:"album,omitempty"`
	Quality    item.Quality `json:"quality"`
	Format     item.Format  `json:"format"`
	Status     item.Status  `json:"status"`
	Error      string       `json:"error,omitempty"`
	AddedAt    time.Time    `json:"addedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// FromItem builds a history entry from a finished item.
// finishedAt falls back to now when the item has no completion time.
func FromItem(id string, it item.Item, now time.Time) Entry {
	finished := now
	if it.CompletedAt != nil {
		finished = *it.CompletedAt
	}
	return Entry{
		ID:         id,
		ItemID:     it.ID,
		SourceURL:  it.SourceURL,
		Kind:       it.Kind,
		Title:      it.Title,
		Artist:     it.Artist,
		Album:      it.Album,
		Quality:    it.Quality,
		Format:     it.Format,
		Status:     it.Status,
		Error:      it.Error,
		AddedAt:    it.AddedAt,
		FinishedAt: finished,
	}
}

// Succeeded reports whether the download completed.
func (e Entry) Succeeded() bool {
	return e.Status == item.StatusCompleted
}

// Page is one page of history entries, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
}
