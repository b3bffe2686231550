// Package inventory lists resource descriptors from a backing store, region by region.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

// Source lists the resources of one region. An empty region means every region.
type Source interface {
	ListResources(ctx context.Context, region string) ([]api.Resource, error)
}

// Collector fans a listing out over regions. A failing region contributes no resources;
// only when every region fails is the inventory reported unavailable.
type Collector struct {
	source  Source
	regions []string
	logger  zerolog.Logger
}

// NewCollector creates a collector. With no regions the source is asked once for everything.
func NewCollector(source Source, regions []string, logger zerolog.Logger) *Collector {
	return &Collector{source: source, regions: regions, logger: logger}
}

type regionResult struct {
	resources []api.Resource
	err       error
}

// ListResources returns normalized resources in region order, keeping the first copy of a repeated id.
func (c *Collector) ListResources(ctx context.Context) ([]api.Resource, error) {
	regions := c.regions
	if len(regions) == 0 {
		regions = []string{""}
	}

	results := make([]regionResult, len(regions))
	g := new(errgroup.Group)
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			resources, err := c.source.ListResources(ctx, region)
			results[i] = regionResult{resources: resources, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("inventory listing: %w", err)
	}

	var (
		out      []api.Resource
		failures []error
	)
	seen := make(map[string]struct{})
	for i, res := range results {
		if res.err != nil {
			c.logger.Warn().
				Str("region", regions[i]).
				Err(res.err).
				Msg("Region listing failed, continuing without it")
			failures = append(failures, fmt.Errorf("region %q: %w", regions[i], res.err))
			continue
		}
		for _, r := range res.resources {
			if r.ID == "" {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r.Normalize())
		}
	}

	if len(failures) == len(regions) {
		return nil, topoerrors.NewInventoryUnavailableError(errors.Join(failures...))
	}
	if out == nil {
		out = []api.Resource{}
	}
	return out, nil
}
