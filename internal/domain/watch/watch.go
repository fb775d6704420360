// Package watch provides the watch list entity.
package watch

import (
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind is the type of a watched source.
type Kind string

const (
	KindArtist   Kind = "artist"
	KindPlaylist Kind = "playlist"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindArtist || k == KindPlaylist
}

// ErrUnsupportedSource is returned for URLs that are not Spotify artists or playlists.
var ErrUnsupportedSource = errors.New("unsupported watch source")

// Entry represents a watched artist or playlist.
type Entry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        Kind       `json:"kind"`
	URL         string     `json:"url"`
	SourceID    string     `json:"sourceId"`
	AddedAt     time.Time  `json:"addedAt"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
	Active      bool       `json:"active"`
}

// Seeded reports whether the entry has been checked at least once.
func (e Entry) Seeded() bool {
	return e.LastChecked != nil
}

// Due reports whether the entry should be checked at now for the given interval.
func (e Entry) Due(now time.Time, interval time.Duration) bool {
	if !e.Active {
		return false
	}
	if e.LastChecked == nil {
		return true
	}
	return !now.Before(e.LastChecked.Add(interval))
}

// AddRequest is the input for adding a watch entry.
type AddRequest struct {
	Name string `json:"name"`
	URL  string `json:"url" validate:"required"`
}

// ParseSource extracts the kind and Spotify ID from a URI ("spotify:playlist:ID")
// or an open.spotify.com URL.
func ParseSource(raw string) (Kind, string, error) {
	raw = strings.TrimSpace(raw)

	if rest, ok := strings.CutPrefix(raw, "spotify:"); ok {
		parts := strings.Split(rest, ":")
		if len(parts) == 2 {
			return sourceParts(parts[0], parts[1], raw)
		}
		return "", "", errors.Wrapf(ErrUnsupportedSource, "%q", raw)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", errors.Wrapf(ErrUnsupportedSource, "%q", raw)
	}
	if strings.TrimPrefix(strings.ToLower(u.Host), "www.") != "open.spotify.com" {
		return "", "", errors.Wrapf(ErrUnsupportedSource, "%q", raw)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) > 0 && strings.HasPrefix(segs[0], "intl-") {
		segs = segs[1:]
	}
	if len(segs) != 2 {
		return "", "", errors.Wrapf(ErrUnsupportedSource, "%q", raw)
	}
	return sourceParts(segs[0], segs[1], raw)
}

func sourceParts(kind, id, raw string) (Kind, string, error) {
	k := Kind(kind)
	if !k.Valid() || id == "" {
		return "", "", errors.Wrapf(ErrUnsupportedSource, "%q", raw)
	}
	return k, id, nil
}
