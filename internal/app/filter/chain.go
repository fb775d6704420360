package filter

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedl/internal/domain/item"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// Settings is the per-filter configuration consumed by Build.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// Build creates a chain from registered filters enabled in cfg.
// Filters are added in name order so the chain is stable across restarts.
func Build(cfg map[string]Settings) (*Chain, error) {
	chain := NewChain()
	for _, name := range sortedNames(cfg) {
		fc := cfg[name]
		if !fc.Enabled {
			continue
		}
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("admission filter enabled: %s", name)
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request origin.
func (c *Chain) Execute(ctx context.Context, req item.Request, queued []item.Item) Result {
	if c == nil {
		return Accept()
	}
	for _, f := range c.filters {
		if !f.AppliesTo(req.Origin) {
			continue
		}

		result := f.Check(ctx, req, queued)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

func sortedNames(cfg map[string]Settings) []string {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
