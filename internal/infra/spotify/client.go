// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/tunedl/internal/domain/media"
	"github.com/osa030/tunedl/internal/domain/watch"
)

const (
	maxSearchLimit = 50
	playlistPage   = 100
	albumPage      = 50
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// Scopes are the OAuth scopes requested by the auth flow.
var Scopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)

	// Token refresh happens on first use
	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	return newClient(spotify.New(auth.Client(ctx, token)), cfg.Market), nil
}

// NewWithHTTPClient creates a client using an already authorized HTTP client.
// baseURL overrides the API endpoint when non-empty.
func NewWithHTTPClient(httpClient *http.Client, market, baseURL string) *Client {
	var opts []spotify.ClientOption
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, spotify.WithBaseURL(baseURL))
	}
	return newClient(spotify.New(httpClient, opts...), market)
}

func newClient(client *spotify.Client, market string) *Client {
	if market == "" {
		market = "US"
	}
	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Search searches the catalog for the given entity types.
// Total and HasMore are aggregated over every requested type.
func (c *Client) Search(ctx context.Context, query string, types []media.Type, limit, offset int) (media.Page, error) {
	if strings.TrimSpace(query) == "" {
		return media.Page{}, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	st := searchType(types)
	if st == 0 {
		return media.Page{}, errors.Newf("no search type in %v", types)
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, st,
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return media.Page{}, errors.Wrap(err, "failed to search")
	}

	page := media.Page{Results: []media.Media{}}
	more := func(total, n int) {
		page.Total += total
		if offset+n < total {
			page.HasMore = true
		}
	}
	if result.Tracks != nil {
		for i := range result.Tracks.Tracks {
			page.Results = append(page.Results, convertTrack(&result.Tracks.Tracks[i]))
		}
		more(int(result.Tracks.Total), len(result.Tracks.Tracks))
	}
	if result.Albums != nil {
		for _, a := range result.Albums.Albums {
			page.Results = append(page.Results, convertAlbum(a))
		}
		more(int(result.Albums.Total), len(result.Albums.Albums))
	}
	if result.Artists != nil {
		for _, a := range result.Artists.Artists {
			page.Results = append(page.Results, convertArtist(a))
		}
		more(int(result.Artists.Total), len(result.Artists.Artists))
	}
	if result.Playlists != nil {
		for _, p := range result.Playlists.Playlists {
			page.Results = append(page.Results, convertPlaylist(p))
		}
		more(int(result.Playlists.Total), len(result.Playlists.Playlists))
	}
	return page, nil
}

func searchType(types []media.Type) spotify.SearchType {
	var st spotify.SearchType
	for _, t := range types {
		switch t {
		case media.TypeTrack:
			st |= spotify.SearchTypeTrack
		case media.TypeAlbum:
			st |= spotify.SearchTypeAlbum
		case media.TypeArtist:
			st |= spotify.SearchTypeArtist
		case media.TypePlaylist:
			st |= spotify.SearchTypePlaylist
		}
	}
	return st
}

// ListMedia returns the current contents of a watched source:
// tracks for a playlist, albums and singles for an artist.
func (c *Client) ListMedia(ctx context.Context, kind watch.Kind, sourceID string) ([]media.Media, error) {
	switch kind {
	case watch.KindPlaylist:
		return c.PlaylistTracks(ctx, sourceID)
	case watch.KindArtist:
		return c.ArtistAlbums(ctx, sourceID)
	default:
		return nil, errors.Newf("unsupported watch kind: %s", kind)
	}
}

// SourceName returns the display name of a watched source.
func (c *Client) SourceName(ctx context.Context, kind watch.Kind, sourceID string) (string, error) {
	var name string
	err := c.retry(func() error {
		switch kind {
		case watch.KindPlaylist:
			p, err := c.client.GetPlaylist(ctx, spotify.ID(sourceID), spotify.Fields("name"))
			if err != nil {
				return err
			}
			name = p.Name
		case watch.KindArtist:
			a, err := c.client.GetArtist(ctx, spotify.ID(sourceID))
			if err != nil {
				return err
			}
			name = a.Name
		default:
			return errors.Newf("unsupported watch kind: %s", kind)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get %s %s", kind, sourceID)
	}
	return name, nil
}

// PlaylistTracks retrieves all tracks from a playlist.
func (c *Client) PlaylistTracks(ctx context.Context, playlist string) ([]media.Media, error) {
	playlistID := extractID(playlist, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []media.Media
	offset := 0
	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(playlistPage),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, it := range page.Items {
			// Episodes have no track
			if it.Track.Track != nil && it.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(it.Track.Track))
			}
		}

		if len(page.Items) < playlistPage {
			break
		}
		offset += playlistPage
	}
	return tracks, nil
}

// ArtistAlbums retrieves an artist's albums and singles.
func (c *Client) ArtistAlbums(ctx context.Context, artist string) ([]media.Media, error) {
	artistID := extractID(artist, "artist")
	if artistID == "" {
		return nil, errors.New("invalid artist URL")
	}

	var albums []media.Media
	offset := 0
	for {
		var page *spotify.SimpleAlbumPage
		err := c.retry(func() error {
			p, err := c.client.GetArtistAlbums(ctx, spotify.ID(artistID),
				[]spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle},
				spotify.Limit(albumPage),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get artist albums")
		}

		for _, a := range page.Albums {
			albums = append(albums, convertAlbum(a))
		}

		if len(page.Albums) < albumPage {
			break
		}
		offset += albumPage
	}
	return albums, nil
}

func convertTrack(t *spotify.FullTrack) media.Media {
	return media.Media{
		ID:          string(t.ID),
		Type:        media.TypeTrack,
		Title:       t.Name,
		Artist:      artistNames(t.Artists),
		Album:       t.Album.Name,
		URL:         ItemURL("track", string(t.ID)),
		Thumbnail:   firstImage(t.Album.Images),
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		ReleaseDate: t.Album.ReleaseDate,
	}
}

func convertAlbum(a spotify.SimpleAlbum) media.Media {
	return media.Media{
		ID:          string(a.ID),
		Type:        media.TypeAlbum,
		Title:       a.Name,
		Artist:      artistNames(a.Artists),
		Album:       a.Name,
		URL:         ItemURL("album", string(a.ID)),
		Thumbnail:   firstImage(a.Images),
		ReleaseDate: a.ReleaseDate,
	}
}

func convertArtist(a spotify.FullArtist) media.Media {
	return media.Media{
		ID:        string(a.ID),
		Type:      media.TypeArtist,
		Title:     a.Name,
		Artist:    a.Name,
		URL:       ItemURL("artist", string(a.ID)),
		Thumbnail: firstImage(a.Images),
	}
}

func convertPlaylist(p spotify.SimplePlaylist) media.Media {
	return media.Media{
		ID:        string(p.ID),
		Type:      media.TypePlaylist,
		Title:     p.Name,
		Artist:    p.Owner.DisplayName,
		URL:       ItemURL("playlist", string(p.ID)),
		Thumbnail: firstImage(p.Images),
	}
}

func artistNames(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return media.JoinArtists(names)
}

func firstImage(images []spotify.Image) string {
	if len(images) > 0 {
		return images[0].URL
	}
	return ""
}

// ItemURL returns the open.spotify.com URL of a catalog entity.
func ItemURL(kind, id string) string {
	return fmt.Sprintf("https://open.spotify.com/%s/%s", kind, id)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts an entity id from a Spotify URL or URI. Anything else is
// assumed to be an id already.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if id, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return id
	}

	// https://open.spotify.com/<kind>/<id> or https://open.spotify.com/intl-XX/<kind>/<id>
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
