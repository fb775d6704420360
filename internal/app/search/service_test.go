package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tunedl/internal/domain/media"
	"github.com/osa030/tunedl/internal/infra/lastfm"
)

type fakeSearcher struct {
	query  string
	types  []media.Type
	limit  int
	offset int
	page   media.Page
	err    error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, types []media.Type, limit, offset int) (media.Page, error) {
	f.query, f.types, f.limit, f.offset = query, types, limit, offset
	return f.page, f.err
}

type fakeSuggester struct {
	tracks []lastfm.TrackMatch
	err    error
	limit  int
}

func (f *fakeSuggester) SearchTracks(ctx context.Context, query string, limit int) ([]lastfm.TrackMatch, error) {
	f.limit = limit
	return f.tracks, f.err
}

func TestSearch_Unavailable(t *testing.T) {
	s := NewService(nil, nil)
	assert.False(t, s.SearchAvailable())
	assert.False(t, s.SuggestionsAvailable())

	_, err := s.Search(context.Background(), "q", media.SearchAll, 0, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.Suggestions(context.Background(), "q")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		typ        media.SearchType
		limit      int
		offset     int
		wantErr    error
		wantQuery  string
		wantTypes  []media.Type
		wantLimit  int
		wantOffset int
	}{
		{
			name: "defaults", query: " radiohead ",
			wantQuery: "radiohead", wantLimit: DefaultLimit,
			wantTypes: []media.Type{media.TypeTrack, media.TypeAlbum, media.TypeArtist, media.TypePlaylist},
		},
		{
			name: "single type and paging", query: "ok computer", typ: media.SearchAlbum, limit: 5, offset: 10,
			wantQuery: "ok computer", wantTypes: []media.Type{media.TypeAlbum}, wantLimit: 5, wantOffset: 10,
		},
		{
			name: "limit capped", query: "x", typ: media.SearchTrack, limit: 500,
			wantQuery: "x", wantTypes: []media.Type{media.TypeTrack}, wantLimit: MaxLimit,
		},
		{name: "empty query", query: "  ", wantErr: ErrInvalidQuery},
		{name: "unknown type", query: "x", typ: "podcast", wantErr: ErrInvalidQuery},
		{name: "negative offset", query: "x", offset: -1, wantErr: ErrInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{page: media.Page{Total: 1, Results: []media.Media{{ID: "1"}}}}
			s := NewService(searcher, nil)

			page, err := s.Search(context.Background(), tt.query, tt.typ, tt.limit, tt.offset)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, searcher.query, "backend must not be called")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)
			assert.Equal(t, tt.wantQuery, searcher.query)
			assert.Equal(t, tt.wantTypes, searcher.types)
			assert.Equal(t, tt.wantLimit, searcher.limit)
			assert.Equal(t, tt.wantOffset, searcher.offset)
		})
	}
}

func TestSearch_BackendError(t *testing.T) {
	s := NewService(&fakeSearcher{err: errors.New("rate limited")}, nil)
	_, err := s.Search(context.Background(), "x", media.SearchAll, 0, 0)
	assert.ErrorContains(t, err, "rate limited")
}

func TestSearch_EmptyResultsNotNil(t *testing.T) {
	s := NewService(&fakeSearcher{}, nil)
	page, err := s.Search(context.Background(), "x", media.SearchAll, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, page.Results)
}

func TestSuggestions(t *testing.T) {
	var many []lastfm.TrackMatch
	for i := range 15 {
		many = append(many, lastfm.TrackMatch{Name: fmt.Sprintf("Song %d", i), Artist: "Band"})
	}

	tests := []struct {
		name   string
		query  string
		tracks []lastfm.TrackMatch
		want   []string
	}{
		{"empty query", " ", nil, []string{}},
		{
			"dedup case insensitive",
			"karma",
			[]lastfm.TrackMatch{
				{Name: "Karma Police", Artist: "Radiohead"},
				{Name: "karma police", Artist: "radiohead"},
				{Name: "", Artist: "Nobody"},
				{Name: "Karma", Artist: "Taylor Swift"},
			},
			[]string{"Radiohead - Karma Police", "Taylor Swift - Karma"},
		},
		{"capped", "song", many, []string{
			"Band - Song 0", "Band - Song 1", "Band - Song 2", "Band - Song 3", "Band - Song 4",
			"Band - Song 5", "Band - Song 6", "Band - Song 7", "Band - Song 8", "Band - Song 9",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := &fakeSuggester{tracks: tt.tracks}
			s := NewService(nil, sg)
			got, err := s.Suggestions(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestions_Error(t *testing.T) {
	s := NewService(nil, &fakeSuggester{err: errors.New("bad key")})
	_, err := s.Suggestions(context.Background(), "x")
	assert.ErrorContains(t, err, "bad key")
}
