// Package topology answers application-scoped graph queries by combining the inventory with discovery.
package topology

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/pkg/api"
)

// Inventory lists every resource in scope.
type Inventory interface {
	ListResources(ctx context.Context) ([]api.Resource, error)
}

// Discoverer produces relationships for a resource set.
type Discoverer interface {
	Discover(ctx context.Context, all, focus []api.Resource) (*discovery.Result, error)
}

// Service runs topology queries.
type Service struct {
	inventory  Inventory
	discoverer Discoverer
	logger     zerolog.Logger
}

func NewService(inventory Inventory, discoverer Discoverer, logger zerolog.Logger) *Service {
	return &Service{inventory: inventory, discoverer: discoverer, logger: logger}
}

// Query returns the graph for one application, or the whole fleet when application is empty.
// External resources are the resources outside the application; they are empty for an unfiltered query.
func (s *Service) Query(ctx context.Context, application string) (*api.TopologyResponse, *discovery.Result, error) {
	all, err := s.inventory.ListResources(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list resources: %w", err)
	}

	focus, external := SplitByApplication(all, application)
	var focusArg []api.Resource
	if application != "" {
		focusArg = focus
	}

	result, err := s.discoverer.Discover(ctx, all, focusArg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover relationships: %w", err)
	}

	s.logger.Info().
		Str("run_id", result.RunID).
		Str("application", application).
		Int("resources", len(focus)).
		Int("external", len(external)).
		Int("relationships", len(result.Relationships)).
		Msg("Topology query served")

	return &api.TopologyResponse{
		Resources:         focus,
		Relationships:     result.Relationships,
		ExternalResources: external,
	}, result, nil
}

// SplitByApplication partitions resources by case-insensitive application name.
// An empty application puts everything in focus.
func SplitByApplication(all []api.Resource, application string) (focus, external []api.Resource) {
	focus = []api.Resource{}
	external = []api.Resource{}
	if application == "" {
		return append(focus, all...), external
	}
	for _, r := range all {
		if strings.EqualFold(r.Application, application) {
			focus = append(focus, r)
		} else {
			external = append(external, r)
		}
	}
	return focus, external
}

// Applications lists the distinct application names in first-seen order.
func Applications(all []api.Resource) []string {
	seen := make(map[string]struct{})
	var apps []string
	for _, r := range all {
		if _, ok := seen[r.Application]; ok {
			continue
		}
		seen[r.Application] = struct{}{}
		apps = append(apps, r.Application)
	}
	return apps
}

// ListApplications returns the application names present in the inventory.
func (s *Service) ListApplications(ctx context.Context) ([]string, error) {
	all, err := s.inventory.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	apps := Applications(all)
	if apps == nil {
		apps = []string{}
	}
	return apps, nil
}
