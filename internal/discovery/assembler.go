package discovery

import "github.com/santoshpalla27/topograph/pkg/api"

// Assembly is the outcome of merging candidate edges.
type Assembly struct {
	Relationships []api.Relationship
	Duplicates    int
	Rejected      int
}

// Assemble merges candidate edges in order, keeping the first edge per (source, target, type).
// Self-edges and edges whose endpoints are not in known are rejected.
func Assemble(candidates []api.Relationship, known func(id string) bool) Assembly {
	out := Assembly{Relationships: make([]api.Relationship, 0, len(candidates))}
	seen := make(map[api.RelationshipKey]struct{}, len(candidates))
	for _, edge := range candidates {
		if edge.SourceID == "" || edge.TargetID == "" || edge.SourceID == edge.TargetID {
			out.Rejected++
			continue
		}
		if known != nil && (!known(edge.SourceID) || !known(edge.TargetID)) {
			out.Rejected++
			continue
		}
		key := edge.Key()
		if _, dup := seen[key]; dup {
			out.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out.Relationships = append(out.Relationships, edge)
	}
	return out
}

// FilterFocus keeps edges with at least one endpoint in focus. A nil focus keeps everything.
func FilterFocus(edges []api.Relationship, focus []api.Resource) []api.Relationship {
	if focus == nil {
		return edges
	}
	ids := make(map[string]struct{}, len(focus))
	for _, r := range focus {
		ids[r.ID] = struct{}{}
	}
	out := make([]api.Relationship, 0, len(edges))
	for _, e := range edges {
		_, src := ids[e.SourceID]
		_, dst := ids[e.TargetID]
		if src || dst {
			out = append(out, e)
		}
	}
	return out
}
