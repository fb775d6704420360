// Package media provides catalog entities returned by search and watch lookups.
package media

import (
	"strings"
	"time"

	"github.com/osa030/tunedl/internal/domain/item"
)

// Type represents the catalog entity type.
type Type string

const (
	TypeTrack    Type = "track"
	TypeAlbum    Type = "album"
	TypeArtist   Type = "artist"
	TypePlaylist Type = "playlist"
)

// SearchType represents a search scope. SearchAll covers every Type.
type SearchType string

const (
	SearchAll      SearchType = "all"
	SearchTrack    SearchType = "track"
	SearchAlbum    SearchType = "album"
	SearchArtist   SearchType = "artist"
	SearchPlaylist SearchType = "playlist"
)

// Valid reports whether the search type is known.
func (s SearchType) Valid() bool {
	switch s {
	case SearchAll, SearchTrack, SearchAlbum, SearchArtist, SearchPlaylist:
		return true
	}
	return false
}

// Types returns the entity types covered by the search scope.
func (s SearchType) Types() []Type {
	if s == SearchAll {
		return []Type{TypeTrack, TypeAlbum, TypeArtist, TypePlaylist}
	}
	return []Type{Type(s)}
}

// Media represents a track, album, artist or playlist from the catalog.
type Media struct {
	ID          string        `json:"id"`
	Type        Type          `json:"type"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Album       string        `json:"album,omitempty"`
	URL         string        `json:"url"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	Duration    time.Duration `json:"-"`
	ReleaseDate string        `json:"releaseDate,omitempty"`
}

// DurationSeconds returns the duration in whole seconds, or 0 when unknown.
func (m Media) DurationSeconds() int {
	return int(m.Duration / time.Second)
}

// Kind maps the media type onto a queue item kind.
func (m Media) Kind() item.Kind {
	return item.Kind(m.Type)
}

// Request builds a queue request for the media.
func (m Media) Request(origin item.Origin) item.Request {
	return item.Request{
		SourceURL: m.URL,
		Kind:      m.Kind(),
		Title:     m.Title,
		Artist:    m.Artist,
		Album:     m.Album,
		Origin:    origin,
	}
}

// JoinArtists joins artist names for display.
func JoinArtists(names []string) string {
	return strings.Join(names, ", ")
}

// Page is one page of search results.
type Page struct {
	Results []Media `json:"results"`
	Total   int     `json:"total"`
	HasMore bool    `json:"hasMore"`
}
