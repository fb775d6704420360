// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	now        func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	tracks  []TrackMatch
	expires time.Time
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey   string
	CacheTTL time.Duration
}

// TrackMatch is a track returned by track.search.
type TrackMatch struct {
	Name      string
	Artist    string
	Listeners int
}

// String renders the match as "artist - track".
func (t TrackMatch) String() string {
	return t.Artist + " - " + t.Name
}

// trackSearchResponse is the body of track.search. Listeners arrives as a string.
type trackSearchResponse struct {
	Results struct {
		TrackMatches struct {
			Track []struct {
				Name      string `json:"name"`
				Artist    string `json:"artist"`
				Listeners string `json:"listeners"`
			} `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   cfg.CacheTTL,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}, nil
}

// SearchTracks searches tracks matching query, most relevant first.
// Reference: https://www.last.fm/api/show/track.search
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]TrackMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("track.search:%d:%s", limit, strings.ToLower(query))
	if tracks, ok := c.cached(cacheKey); ok {
		zlog.Debug().Msgf("last.fm cache hit: %s", cacheKey)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "track.search")
	params.Set("track", query)
	params.Set("limit", fmt.Sprintf("%d", limit))

	var response trackSearchResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := make([]TrackMatch, 0, len(response.Results.TrackMatches.Track))
	for _, t := range response.Results.TrackMatches.Track {
		var listeners int
		_, _ = fmt.Sscanf(t.Listeners, "%d", &listeners)
		tracks = append(tracks, TrackMatch{Name: t.Name, Artist: t.Artist, Listeners: listeners})
	}

	c.store(cacheKey, tracks)
	return tracks, nil
}

func (c *Client) cached(key string) ([]TrackMatch, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	e, ok := c.cache[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.tracks, true
}

func (c *Client) store(key string, tracks []TrackMatch) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	now := c.now()
	for k, e := range c.cache {
		if now.After(e.expires) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cacheEntry{tracks: tracks, expires: now.Add(c.cacheTTL)}
}

// get calls a read method and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiErr.Code, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
