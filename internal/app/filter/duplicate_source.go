package filter

import (
	"context"
	"net/url"
	"strings"

	"github.com/osa030/tunedl/internal/domain/item"
)

// DuplicateSourceFilter rejects a request whose source is already queued and unfinished.
// Finished items do not count, so a completed or failed download can be requested again.
type DuplicateSourceFilter struct{}

// NewDuplicateSourceFilter creates a new duplicate source filter.
func NewDuplicateSourceFilter() *DuplicateSourceFilter {
	return &DuplicateSourceFilter{}
}

// Name returns the filter name.
func (f *DuplicateSourceFilter) Name() string {
	return "duplicate_source_filter"
}

// Description returns the filter description.
func (f *DuplicateSourceFilter) Description() string {
	return "Rejects a source that is already pending, paused or downloading"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateSourceFilter) ReturnCodes() []string {
	return []string{"duplicate_source"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateSourceFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// AppliesTo returns which origins this filter applies to.
func (f *DuplicateSourceFilter) AppliesTo(origin item.Origin) bool {
	return true
}

// Check checks if the source is a duplicate.
func (f *DuplicateSourceFilter) Check(ctx context.Context, req item.Request, queued []item.Item) Result {
	key := normalizeSource(req.SourceURL)
	for _, q := range queued {
		if !q.Status.IsUnfinished() {
			continue
		}
		if normalizeSource(q.SourceURL) == key {
			return Reject("duplicate_source")
		}
	}
	return Accept()
}

// normalizeSource maps equivalent spellings of a source to one key.
// Share links differ only by tracking query ("?si=...") or trailing slash,
// and open.spotify.com links are folded into spotify: URIs.
func normalizeSource(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	if strings.EqualFold(u.Scheme, "spotify") {
		return strings.ToLower(u.Scheme) + ":" + u.Opaque
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.Path, "/")

	if host == "open.spotify.com" {
		parts := strings.Split(strings.Trim(path, "/"), "/")
		// drop locale prefix, e.g. /intl-ja/track/<id>
		if len(parts) == 3 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) == 2 {
			return "spotify:" + parts[0] + ":" + parts[1]
		}
	}

	if host == "youtube.com" || host == "music.youtube.com" {
		if v := u.Query().Get("v"); v != "" {
			return "youtube:" + v
		}
		if list := u.Query().Get("list"); list != "" {
			return "youtube:list:" + list
		}
	}
	if host == "youtu.be" {
		return "youtube:" + strings.Trim(path, "/")
	}

	return host + path
}

func init() {
	Register("duplicate_source_filter", func() Filter {
		return NewDuplicateSourceFilter()
	})
}
