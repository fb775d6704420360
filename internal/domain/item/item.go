// Package item provides the queued download record and its enumerations.
package item

import (
	"strings"
	"time"
)

// Kind is the type of resource a download fetches.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// Kinds lists every known kind.
var Kinds = []Kind{KindTrack, KindAlbum, KindPlaylist, KindArtist}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsCollection reports whether the kind expands to multiple tracks.
func (k Kind) IsCollection() bool {
	return k != KindTrack
}

// Status is the lifecycle state of a queued item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusDownloading, StatusPaused, StatusCompleted, StatusFailed}

// IsTerminal reports whether no further dispatch events are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsUnfinished reports whether the item still occupies the queue as work to do.
func (s Status) IsUnfinished() bool {
	return s == StatusPending || s == StatusPaused || s == StatusDownloading
}

// Quality is the requested audio quality.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityLossless Quality = "lossless"
)

// Valid reports whether q is a known quality.
func (q Quality) Valid() bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityLossless:
		return true
	}
	return false
}

// Format is the requested output container.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatOGG  Format = "ogg"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatMP3, FormatFLAC, FormatOGG:
		return true
	}
	return false
}

// Origin identifies who asked for a download.
type Origin string

const (
	OriginUser  Origin = "user"
	OriginWatch Origin = "watch"
)

// Request is the caller-supplied description of a download to enqueue.
type Request struct {
	SourceURL string  `json:"sourceUrl" validate:"required"`
	Kind      Kind    `json:"kind" validate:"required,oneof=track album playlist artist"`
	Quality   Quality `json:"quality,omitempty" validate:"omitempty,oneof=low medium high lossless"`
	Format    Format  `json:"format,omitempty" validate:"omitempty,oneof=mp3 flac ogg"`
	Title     string  `json:"title,omitempty"`
	Artist    string  `json:"artist,omitempty"`
	Album     string  `json:"album,omitempty"`
	Origin    Origin  `json:"origin,omitempty" validate:"omitempty,oneof=user watch"`
}

// Normalize trims whitespace, lowercases the enumerations and defaults the origin to user.
func (r Request) Normalize() Request {
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	r.Kind = Kind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	r.Quality = Quality(strings.ToLower(strings.TrimSpace(string(r.Quality))))
	r.Format = Format(strings.ToLower(strings.TrimSpace(string(r.Format))))
	r.Title = strings.TrimSpace(r.Title)
	r.Artist = strings.TrimSpace(r.Artist)
	r.Album = strings.TrimSpace(r.Album)
	if r.Origin == "" {
		r.Origin = OriginUser
	}
	return r
}

// Item is a single queued download.
// ID, SourceURL, Kind, Quality, Format, metadata and AddedAt never change after enqueue.
type Item struct {
	ID          string     `json:"id"`
	SourceURL   string     `json:"sourceUrl"`
	Kind        Kind       `json:"kind"`
	Quality     Quality    `json:"quality"`
	Format      Format     `json:"format"`
	Title       string     `json:"title,omitempty"`
	Artist      string     `json:"artist,omitempty"`
	Album       string     `json:"album,omitempty"`
	Origin      Origin     `json:"origin"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	AddedAt     time.Time  `json:"addedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	if i.StartedAt != nil {
		t := *i.StartedAt
		i.StartedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		i.CompletedAt = &t
	}
	return i
}

// DisplayName returns a human readable label for logs and CLIs.
func (i Item) DisplayName() string {
	switch {
	case i.Title != "" && i.Artist != "":
		return i.Artist + " - " + i.Title
	case i.Title != "":
		return i.Title
	default:
		return i.SourceURL
	}
}

// Duration returns the time spent downloading, if the item has finished.
func (i Item) Duration() (time.Duration, bool) {
	if i.StartedAt == nil || i.CompletedAt == nil {
		return 0, false
	}
	return i.CompletedAt.Sub(*i.StartedAt), true
}

// Before reports whether i is ahead of other in FIFO order (addedAt, then id).
func (i Item) Before(other Item) bool {
	if !i.AddedAt.Equal(other.AddedAt) {
		return i.AddedAt.Before(other.AddedAt)
	}
	return i.ID < other.ID
}
