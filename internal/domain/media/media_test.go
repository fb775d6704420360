package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/tunedl/internal/domain/item"
)

func TestSearchType_Valid(t *testing.T) {
	tests := []struct {
		in   SearchType
		want bool
	}{
		{SearchAll, true},
		{SearchTrack, true},
		{SearchAlbum, true},
		{SearchArtist, true},
		{SearchPlaylist, true},
		{"podcast", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Valid())
		})
	}
}

func TestSearchType_Types(t *testing.T) {
	assert.Equal(t, []Type{TypeTrack, TypeAlbum, TypeArtist, TypePlaylist}, SearchAll.Types())
	assert.Equal(t, []Type{TypeAlbum}, SearchAlbum.Types())
}

func TestMedia_Request(t *testing.T) {
	m := Media{
		ID:       "abc",
		Type:     TypeAlbum,
		Title:    "Kind of Blue",
		Artist:   "Miles Davis",
		URL:      "https://open.spotify.com/album/abc",
		Duration: 3*time.Minute + 500*time.Millisecond,
	}

	req := m.Request(item.OriginWatch)
	assert.Equal(t, item.KindAlbum, req.Kind)
	assert.Equal(t, m.URL, req.SourceURL)
	assert.Equal(t, "Kind of Blue", req.Title)
	assert.Equal(t, "Miles Davis", req.Artist)
	assert.Equal(t, item.OriginWatch, req.Origin)
	assert.Equal(t, 180, m.DurationSeconds())
}

func TestJoinArtists(t *testing.T) {
	assert.Equal(t, "", JoinArtists(nil))
	assert.Equal(t, "A, B", JoinArtists([]string{"A", "B"}))
}
