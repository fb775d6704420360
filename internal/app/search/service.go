// Package search provides catalog search and query suggestions.
package search

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedl/internal/domain/media"
	"github.com/osa030/tunedl/internal/infra/lastfm"
)

// Limits applied to Search.
const (
	DefaultLimit   = 20
	MaxLimit       = 50
	MaxSuggestions = 10
)

// ErrUnavailable is returned when the backing client is not configured.
var ErrUnavailable = errors.New("search backend not configured")

// ErrInvalidQuery is returned for empty queries and unknown search types.
var ErrInvalidQuery = errors.New("invalid search query")

// Searcher searches the music catalog.
type Searcher interface {
	Search(ctx context.Context, query string, types []media.Type, limit, offset int) (media.Page, error)
}

// Suggester returns tracks matching a partial query.
type Suggester interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]lastfm.TrackMatch, error)
}

// Service combines catalog search and suggestions. Either backend may be nil.
type Service struct {
	searcher  Searcher
	suggester Suggester
}

// NewService creates a search service.
func NewService(searcher Searcher, suggester Suggester) *Service {
	return &Service{searcher: searcher, suggester: suggester}
}

// SearchAvailable reports whether catalog search is configured.
func (s *Service) SearchAvailable() bool {
	return s.searcher != nil
}

// SuggestionsAvailable reports whether suggestions are configured.
func (s *Service) SuggestionsAvailable() bool {
	return s.suggester != nil
}

// Search searches the catalog. An empty type means all types.
func (s *Service) Search(ctx context.Context, query string, typ media.SearchType, limit, offset int) (media.Page, error) {
	if s.searcher == nil {
		return media.Page{}, ErrUnavailable
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return media.Page{}, errors.Wrap(ErrInvalidQuery, "query is required")
	}
	if typ == "" {
		typ = media.SearchAll
	}
	if !typ.Valid() {
		return media.Page{}, errors.Wrapf(ErrInvalidQuery, "unknown type %q", typ)
	}
	if offset < 0 {
		return media.Page{}, errors.Wrap(ErrInvalidQuery, "offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	page, err := s.searcher.Search(ctx, query, typ.Types(), limit, offset)
	if err != nil {
		return media.Page{}, errors.Wrap(err, "search failed")
	}
	if page.Results == nil {
		page.Results = []media.Media{}
	}
	return page, nil
}

// Suggestions returns up to MaxSuggestions "artist - track" strings, without duplicates.
func (s *Service) Suggestions(ctx context.Context, query string) ([]string, error) {
	if s.suggester == nil {
		return nil, ErrUnavailable
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	tracks, err := s.suggester.SearchTracks(ctx, query, MaxSuggestions)
	if err != nil {
		return nil, errors.Wrap(err, "suggestions failed")
	}

	seen := make(map[string]bool, len(tracks))
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		label := t.String()
		key := strings.ToLower(label)
		if seen[key] || t.Name == "" {
			continue
		}
		seen[key] = true
		out = append(out, label)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out, nil
}
