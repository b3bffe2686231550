package graphview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshpalla27/topograph/pkg/api"
)

var (
	r1 = api.Resource{ID: "R1", Type: api.ResourceTypeEC2}
	r2 = api.Resource{ID: "R2", Type: api.ResourceTypeRDS}
	x1 = api.Resource{ID: "X1", Type: api.ResourceTypeRDSCluster}
	x2 = api.Resource{ID: "X2", Type: api.ResourceTypeLambda}
)

func TestBuild_EmptyStates(t *testing.T) {
	view := Build(api.RenderRequest{})
	assert.Equal(t, EmptyNoResources, view.Empty)
	assert.Equal(t, "No resources to display", string(view.Empty))

	view = Build(api.RenderRequest{Resources: []api.Resource{r1}})
	assert.Equal(t, EmptyNoRelationships, view.Empty)
	assert.Equal(t, "No relationships found between resources", string(view.Empty))

	view = Build(api.RenderRequest{
		Resources:     []api.Resource{r1, r2},
		Relationships: []api.Relationship{{SourceID: "R1", TargetID: "R2", Type: api.RelConnectsTo}},
	})
	assert.Equal(t, NotEmpty, view.Empty)
}

func TestBuild_ExternalNodesOnlyWhenReferenced(t *testing.T) {
	req := api.RenderRequest{
		Resources:             []api.Resource{r2},
		ExternalResources:     []api.Resource{r1, x1, x2},
		ShowExternalResources: true,
		Relationships: []api.Relationship{
			{SourceID: "R2", TargetID: "X1", Type: api.RelInstanceOf},
			{SourceID: "R1", TargetID: "R2", Type: api.RelConnectsTo},
		},
	}
	view := Build(req)

	require.Len(t, view.Nodes, 3)
	assert.Equal(t, Node{Resource: r2}, view.Nodes[0])
	assert.Equal(t, Node{Resource: x1, External: true}, view.Nodes[1])
	assert.Equal(t, Node{Resource: r1, External: true}, view.Nodes[2])
	assert.Len(t, view.Edges, 2)

	_, ok := view.Node("X2")
	assert.False(t, ok, "unreferenced external resources are not drawn")
}

func TestBuild_HidesExternalEdges(t *testing.T) {
	view := Build(api.RenderRequest{
		Resources:         []api.Resource{r2},
		ExternalResources: []api.Resource{x1},
		Relationships:     []api.Relationship{{SourceID: "R2", TargetID: "X1", Type: api.RelInstanceOf}},
	})
	assert.Len(t, view.Nodes, 1)
	assert.Empty(t, view.Edges)
	assert.Equal(t, 1, view.Hidden)
	assert.Equal(t, EmptyNoRelationships, view.Empty)
}

func TestBuild_DropsUnresolvableEdges(t *testing.T) {
	view := Build(api.RenderRequest{
		Resources:             []api.Resource{r1, r2},
		ExternalResources:     []api.Resource{x1},
		ShowExternalResources: true,
		Relationships: []api.Relationship{
			{SourceID: "R1", TargetID: "R2", Type: api.RelConnectsTo},
			{SourceID: "X1", TargetID: "ghost", Type: api.RelDependsOn},
			{SourceID: "R1", TargetID: "R1", Type: api.RelConnectsTo},
			{SourceID: "", TargetID: "R2", Type: api.RelRoutesTo},
		},
	})
	assert.Equal(t, 3, view.Dropped)
	assert.Len(t, view.Edges, 1)
	assert.Len(t, view.Nodes, 2, "an external endpoint of a dropped edge is not added")
	assert.Equal(t, NotEmpty, view.Empty)
}
