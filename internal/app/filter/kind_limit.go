package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/domain/item"
)

// KindLimitConfig represents the configuration for KindLimitFilter.
type KindLimitConfig struct {
	MaxPerKind map[string]int `yaml:"max_per_kind" mapstructure:"max_per_kind" validate:"min=1,dive,keys,oneof=track album playlist artist,endkeys,gte=1"`
}

// KindLimitFilter caps the number of unfinished items of each kind.
// Albums and playlists fan out into many tracks, so operators usually cap them lower.
type KindLimitFilter struct {
	config *KindLimitConfig
}

// NewKindLimitFilter creates a new kind limit filter.
func NewKindLimitFilter() *KindLimitFilter {
	return &KindLimitFilter{}
}

func (f *KindLimitFilter) Name() string {
	return "kind_limit_filter"
}

func (f *KindLimitFilter) Description() string {
	return "Limits how many unfinished items of each kind may be queued"
}

func (f *KindLimitFilter) ReturnCodes() []string {
	return []string{"kind_limit_exceeded"}
}

func (f *KindLimitFilter) ValidateConfig(settings map[string]any) error {
	var config KindLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("kind limit filter config: %+v", config)
	return nil
}

func (f *KindLimitFilter) AppliesTo(origin item.Origin) bool {
	// Apply to user requests only; watch results are bounded by the watch list itself
	return origin == item.OriginUser
}

func (f *KindLimitFilter) Check(ctx context.Context, req item.Request, queued []item.Item) Result {
	if f.config == nil {
		return Accept()
	}

	limit, ok := f.config.MaxPerKind[string(req.Kind)]
	if !ok {
		return Accept()
	}

	count := 0
	for _, q := range queued {
		if q.Kind == req.Kind && q.Status.IsUnfinished() {
			count++
		}
	}
	if count >= limit {
		return Reject("kind_limit_exceeded")
	}
	return Accept()
}

func init() {
	Register("kind_limit_filter", func() Filter {
		return NewKindLimitFilter()
	})
}
