// Package graphview derives the render-time node and edge sets from a render request.
package graphview

import "github.com/santoshpalla27/topograph/pkg/api"

// EmptyState explains why there is nothing to draw.
type EmptyState string

const (
	NotEmpty             EmptyState = ""
	EmptyNoResources     EmptyState = "No resources to display"
	EmptyNoRelationships EmptyState = "No relationships found between resources"
)

// Node is a resource placed in the graph.
type Node struct {
	Resource api.Resource
	External bool
}

// View is the node set (focus plus referenced external resources) and the edges between them.
type View struct {
	Nodes []Node
	Edges []api.Relationship
	// Dropped counts edges with an endpoint that resolves to no known resource.
	Dropped int
	// Hidden counts edges to external resources left out because externals are not shown.
	Hidden int
	Empty  EmptyState
}

// Build computes the view. Unresolvable edges are dropped rather than failing the render.
func Build(req api.RenderRequest) View {
	var view View
	index := make(map[string]int)
	add := func(r api.Resource, external bool) {
		if r.ID == "" {
			return
		}
		if _, ok := index[r.ID]; ok {
			return
		}
		index[r.ID] = len(view.Nodes)
		view.Nodes = append(view.Nodes, Node{Resource: r, External: external})
	}

	for _, r := range req.Resources {
		add(r, false)
	}

	externals := make(map[string]api.Resource, len(req.ExternalResources))
	for _, r := range req.ExternalResources {
		if _, ok := externals[r.ID]; !ok {
			externals[r.ID] = r
		}
	}

	for _, e := range req.Relationships {
		if e.SourceID == "" || e.TargetID == "" || e.SourceID == e.TargetID {
			view.Dropped++
			continue
		}
		var missing []api.Resource
		resolvable := true
		for _, id := range []string{e.SourceID, e.TargetID} {
			if _, ok := index[id]; ok {
				continue
			}
			ext, ok := externals[id]
			if !ok {
				resolvable = false
				break
			}
			missing = append(missing, ext)
		}
		switch {
		case !resolvable:
			view.Dropped++
		case len(missing) > 0 && !req.ShowExternalResources:
			view.Hidden++
		default:
			for _, ext := range missing {
				add(ext, true)
			}
			view.Edges = append(view.Edges, e)
		}
	}

	switch {
	case len(view.Nodes) == 0:
		view.Empty = EmptyNoResources
	case len(view.Edges) == 0:
		view.Empty = EmptyNoRelationships
	}
	return view
}

// Node returns the node with id.
func (v View) Node(id string) (Node, bool) {
	for _, n := range v.Nodes {
		if n.Resource.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
