package discovery

import (
	"strings"

	"github.com/santoshpalla27/topograph/pkg/api"
)

// index is the read-only view of the full resource set shared by every extractor in a run.
type index struct {
	resources []api.Resource
	byID      map[string]int
	groups    [][]string       // resolved security groups per resource, same order as resources
	byGroup   map[string][]int // group id -> resource positions, ascending
	clusters  []int            // positions of database clusters
}

func newIndex(resources []api.Resource) *index {
	idx := &index{
		resources: resources,
		byID:      make(map[string]int, len(resources)),
		groups:    make([][]string, len(resources)),
		byGroup:   make(map[string][]int),
	}
	for i, r := range resources {
		if _, dup := idx.byID[r.ID]; !dup {
			idx.byID[r.ID] = i
		}
		idx.groups[i] = securityGroupsOf(r)
		for _, g := range idx.groups[i] {
			idx.byGroup[g] = append(idx.byGroup[g], i)
		}
		if r.Type == api.ResourceTypeRDSCluster {
			idx.clusters = append(idx.clusters, i)
		}
	}
	return idx
}

func (idx *index) has(id string) bool {
	_, ok := idx.byID[id]
	return ok
}

func (idx *index) get(id string) (api.Resource, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return api.Resource{}, false
	}
	return idx.resources[i], true
}

// groupsFor returns the resolved security groups of a resource in the set.
func (idx *index) groupsFor(id string) []string {
	if i, ok := idx.byID[id]; ok {
		return idx.groups[i]
	}
	return nil
}

// resolveCluster finds the database cluster a declared cluster id refers to.
// Candidates are tried by exact id, then the id's trailing path segment, then display name.
func (idx *index) resolveCluster(declared string) (api.Resource, bool) {
	if declared == "" {
		return api.Resource{}, false
	}
	for _, i := range idx.clusters {
		if idx.resources[i].ID == declared {
			return idx.resources[i], true
		}
	}
	short := lastSegment(declared)
	for _, i := range idx.clusters {
		seg := lastSegment(idx.resources[i].ID)
		if seg == declared || seg == short {
			return idx.resources[i], true
		}
	}
	for _, i := range idx.clusters {
		if idx.resources[i].Name == declared || idx.resources[i].Name == short {
			return idx.resources[i], true
		}
	}
	return api.Resource{}, false
}

// matchARN finds the resource an ARN (or URI embedding one) refers to.
// The longest resource id contained in s wins; failing that, a resource whose
// trailing id segment equals one of s's path tokens. self is never returned.
func (idx *index) matchARN(s, self string, kinds ...api.ResourceType) (api.Resource, bool) {
	if s == "" {
		return api.Resource{}, false
	}
	best := -1
	for i, r := range idx.resources {
		if r.ID == self || r.ID == "" || !kindAllowed(r.Type, kinds) {
			continue
		}
		if strings.Contains(s, r.ID) && (best < 0 || len(r.ID) > len(idx.resources[best].ID)) {
			best = i
		}
	}
	if best >= 0 {
		return idx.resources[best], true
	}

	tokens := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(s, func(c rune) bool { return c == ':' || c == '/' }) {
		tokens[t] = struct{}{}
	}
	for _, r := range idx.resources {
		if r.ID == self || !kindAllowed(r.Type, kinds) {
			continue
		}
		seg := lastSegment(r.ID)
		if len(seg) < 3 {
			continue
		}
		if _, ok := tokens[seg]; ok {
			return r, true
		}
	}
	return api.Resource{}, false
}

func kindAllowed(t api.ResourceType, kinds []api.ResourceType) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == t {
			return true
		}
	}
	return false
}

// lastSegment returns the part of an ARN or path after the final ':' or '/'.
func lastSegment(id string) string {
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		return id[i+1:]
	}
	return id
}
