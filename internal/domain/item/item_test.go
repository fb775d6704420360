package item

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind_Valid(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected bool
	}{
		{KindTrack, true},
		{KindAlbum, true},
		{KindPlaylist, true},
		{KindArtist, true},
		{Kind(""), false},
		{Kind("podcast"), false},
		{Kind("Track"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.Valid())
		})
	}
}

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status     Status
		terminal   bool
		unfinished bool
	}{
		{StatusPending, false, true},
		{StatusDownloading, false, true},
		{StatusPaused, false, true},
		{StatusCompleted, true, false},
		{StatusFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.unfinished, tt.status.IsUnfinished())
		})
	}
}

func TestRequest_Normalize(t *testing.T) {
	req := Request{
		SourceURL: "  https://open.spotify.com/track/abc \n",
		Kind:      " Track ",
		Quality:   "HIGH",
		Format:    " Flac",
		Title:     " Song ",
	}

	got := req.Normalize()

	assert.Equal(t, "https://open.spotify.com/track/abc", got.SourceURL)
	assert.Equal(t, KindTrack, got.Kind)
	assert.Equal(t, QualityHigh, got.Quality)
	assert.Equal(t, FormatFLAC, got.Format)
	assert.Equal(t, "Song", got.Title)
}

func TestItem_Clone(t *testing.T) {
	now := time.Now()
	orig := Item{ID: "a", StartedAt: &now, CompletedAt: &now}

	cp := orig.Clone()
	*cp.StartedAt = now.Add(time.Hour)

	assert.Equal(t, now, *orig.StartedAt)
	assert.NotSame(t, orig.CompletedAt, cp.CompletedAt)
}

func TestItem_Before(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		a, b     Item
		expected bool
	}{
		{
			name:     "earlier addedAt wins",
			a:        Item{ID: "z", AddedAt: base},
			b:        Item{ID: "a", AddedAt: base.Add(time.Second)},
			expected: true,
		},
		{
			name:     "later addedAt loses",
			a:        Item{ID: "a", AddedAt: base.Add(time.Second)},
			b:        Item{ID: "z", AddedAt: base},
			expected: false,
		},
		{
			name:     "tie broken by id",
			a:        Item{ID: "a", AddedAt: base},
			b:        Item{ID: "b", AddedAt: base},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Before(tt.b))
		})
	}
}

func TestItem_DisplayName(t *testing.T) {
	assert.Equal(t, "Artist - Song", Item{Title: "Song", Artist: "Artist"}.DisplayName())
	assert.Equal(t, "Song", Item{Title: "Song"}.DisplayName())
	assert.Equal(t, "https://x", Item{SourceURL: "https://x"}.DisplayName())
}

func TestItem_Duration(t *testing.T) {
	start := time.Now()
	end := start.Add(90 * time.Second)

	d, ok := Item{StartedAt: &start, CompletedAt: &end}.Duration()
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	_, ok = Item{StartedAt: &start}.Duration()
	assert.False(t, ok)
}
