package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/internal/provider"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

type staticInventory struct {
	resources []api.Resource
	err       error
}

func (s staticInventory) ListResources(ctx context.Context) ([]api.Resource, error) {
	return s.resources, s.err
}

var (
	clusterA  = api.Resource{ID: "c1", Type: api.ResourceTypeRDSCluster, Name: "ClusterA", Application: "platform"}
	instanceA = api.Resource{ID: "i1", Type: api.ResourceTypeRDS, Name: "InstanceA", Application: "billing", ClusterID: "c1"}
	workerA   = api.Resource{ID: "w1", Type: api.ResourceTypeEC2, Name: "WorkerA", Application: "Billing"}
)

func newService(inv Inventory) *Service {
	engine := discovery.NewEngine(provider.NewStatic(), discovery.Config{}, discovery.WithLogger(zerolog.Nop()))
	return NewService(inv, engine, zerolog.Nop())
}

func TestQuery_ApplicationFilterExposesExternalResources(t *testing.T) {
	svc := newService(staticInventory{resources: []api.Resource{clusterA, instanceA, workerA}})

	resp, result, err := svc.Query(context.Background(), "billing")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []api.Resource{instanceA, workerA}, resp.Resources)
	assert.Equal(t, []api.Resource{clusterA}, resp.ExternalResources)
	assert.Equal(t, []api.Relationship{{SourceID: "i1", TargetID: "c1", Type: api.RelInstanceOf}}, resp.Relationships)
}

func TestQuery_NoFilterHasNoExternalResources(t *testing.T) {
	svc := newService(staticInventory{resources: []api.Resource{clusterA, instanceA}})

	resp, _, err := svc.Query(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, resp.Resources, 2)
	assert.NotNil(t, resp.ExternalResources)
	assert.Empty(t, resp.ExternalResources)
	assert.Len(t, resp.Relationships, 1)
}

func TestQuery_UnknownApplication(t *testing.T) {
	svc := newService(staticInventory{resources: []api.Resource{clusterA, instanceA}})

	resp, _, err := svc.Query(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, resp.Resources)
	assert.Len(t, resp.ExternalResources, 2)
	assert.Empty(t, resp.Relationships)
}

func TestQuery_InventoryUnavailable(t *testing.T) {
	cause := topoerrors.NewInventoryUnavailableError(errors.New("every region failed"))
	svc := newService(staticInventory{err: cause})

	_, _, err := svc.Query(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, topoerrors.ErrInventoryUnavailable))
}

func TestListApplications(t *testing.T) {
	svc := newService(staticInventory{resources: []api.Resource{clusterA, instanceA, workerA, clusterA}})
	apps, err := svc.ListApplications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"platform", "billing", "Billing"}, apps)
}
