package filter

import (
	"context"
	"net/url"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/domain/item"
)

// SourceHostConfig represents the configuration for SourceHostFilter.
type SourceHostConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" mapstructure:"allowed_hosts" validate:"min=1,dive,required,hostname_rfc1123"`
}

// SourceHostFilter only admits sources served from an allowed host.
// A host matches when it equals an allowed entry or is a subdomain of it.
// spotify: URIs are treated as host spotify.com.
type SourceHostFilter struct {
	config *SourceHostConfig
}

// NewSourceHostFilter creates a new source host filter.
func NewSourceHostFilter() *SourceHostFilter {
	return &SourceHostFilter{}
}

func (f *SourceHostFilter) Name() string {
	return "source_host_filter"
}

func (f *SourceHostFilter) Description() string {
	return "Admits only sources whose host is in allowed_hosts"
}

func (f *SourceHostFilter) ReturnCodes() []string {
	return []string{"host_not_allowed"}
}

func (f *SourceHostFilter) ValidateConfig(settings map[string]any) error {
	var config SourceHostConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	for i, h := range config.AllowedHosts {
		config.AllowedHosts[i] = strings.ToLower(strings.TrimPrefix(h, "."))
	}
	f.config = &config
	zlog.Info().Msgf("source host filter config: %+v", config)
	return nil
}

func (f *SourceHostFilter) AppliesTo(origin item.Origin) bool {
	return true
}

func (f *SourceHostFilter) Check(ctx context.Context, req item.Request, queued []item.Item) Result {
	// If config is not set, accept all sources
	if f.config == nil {
		return Accept()
	}

	host := sourceHost(req.SourceURL)
	if host == "" {
		return Reject("host_not_allowed")
	}
	for _, allowed := range f.config.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return Accept()
		}
	}
	return Reject("host_not_allowed")
}

func sourceHost(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if strings.EqualFold(u.Scheme, "spotify") {
		return "spotify.com"
	}
	return strings.ToLower(u.Hostname())
}

func init() {
	Register("source_host_filter", func() Filter {
		return NewSourceHostFilter()
	})
}
