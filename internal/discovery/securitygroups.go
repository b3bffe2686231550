package discovery

import (
	"context"
	"strings"

	"github.com/santoshpalla27/topograph/internal/provider"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

// Tag keys that may carry a comma or space separated list of security group ids.
var securityGroupTagKeys = []string{"SecurityGroups", "securityGroups", "security-groups"}

// Detail paths searched for security groups, in order.
var securityGroupDetailPaths = [][]string{
	{"securityGroups"},
	{"vpcSecurityGroups"},
	{"networkConfiguration", "securityGroups"},
	{"networkConfiguration", "awsvpcConfiguration", "securityGroups"},
}

// securityGroupsOf resolves a resource's groups: the explicit field, then tags, then detail fields.
// Malformed data yields no groups.
func securityGroupsOf(r api.Resource) []string {
	if groups := cleanGroups(r.SecurityGroups); len(groups) > 0 {
		return groups
	}
	for _, key := range securityGroupTagKeys {
		if v, ok := r.Tags[key]; ok {
			fields := strings.FieldsFunc(v, func(c rune) bool { return c == ',' || c == ' ' || c == ';' })
			if groups := cleanGroups(fields); len(groups) > 0 {
				return groups
			}
		}
	}
	for _, path := range securityGroupDetailPaths {
		if groups := cleanGroups(stringList(lookupPath(r.Details, path))); len(groups) > 0 {
			return groups
		}
	}
	return nil
}

// cleanGroups trims, drops anything that is not a group id, and removes repeats keeping order.
func cleanGroups(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, g := range in {
		g = strings.TrimSpace(g)
		if !strings.HasPrefix(g, "sg-") {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

func lookupPath(m map[string]any, path []string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// stringList accepts []string, []any of strings, or a single string.
func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else if obj, ok := item.(map[string]any); ok {
				// RDS-style {"VpcSecurityGroupId": "sg-..."} entries
				for _, k := range []string{"VpcSecurityGroupId", "vpcSecurityGroupId", "GroupId", "groupId"} {
					if s, ok := obj[k].(string); ok {
						out = append(out, s)
						break
					}
				}
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return nil
	}
}

// connection accumulates the rules behind one (source, target) pair within a single resolver call.
type connection struct {
	source, target string
	meta           *api.SecurityGroupMetadata
}

// resolveSecurityGroups emits connects_to edges for every other resource sharing a group
// referenced by one of ownerID's group rules. Ingress rules point from the referenced group's
// owner into ownerID; egress rules point from ownerID outward. Resources in exclude are skipped.
func (rn *run) resolveSecurityGroups(ctx context.Context, ownerID string, groups []string, exclude map[string]struct{}) ([]api.Relationship, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	var order []*connection
	byPair := make(map[[2]string]*connection)
	add := func(source, target, sourceGroup, targetGroup string, ref api.SecurityGroupRuleRef) {
		key := [2]string{source, target}
		c, ok := byPair[key]
		if !ok {
			c = &connection{source: source, target: target, meta: &api.SecurityGroupMetadata{}}
			byPair[key] = c
			order = append(order, c)
		}
		c.meta.Source = appendUnique(c.meta.Source, sourceGroup)
		c.meta.Target = appendUnique(c.meta.Target, targetGroup)
		c.meta.Rules = append(c.meta.Rules, ref)
	}

	for _, group := range groups {
		rules, err := rn.rules.Get(ctx, group)
		if err != nil {
			return nil, topoerrors.NewLookupError("security group rules "+group, ownerID, err)
		}
		if rules == nil {
			continue
		}
		rn.scanRules(ownerID, group, rules.Ingress, api.DirectionInbound, exclude, add)
		rn.scanRules(ownerID, group, rules.Egress, api.DirectionOutbound, exclude, add)
	}

	edges := make([]api.Relationship, 0, len(order))
	for _, c := range order {
		edges = append(edges, api.Relationship{
			SourceID: c.source,
			TargetID: c.target,
			Type:     api.RelConnectsTo,
			Metadata: &api.RelationshipMetadata{SecurityGroups: c.meta},
		})
	}
	return edges, nil
}

func (rn *run) scanRules(ownerID, group string, rules []provider.Rule, dir api.RuleDirection, exclude map[string]struct{},
	add func(source, target, sourceGroup, targetGroup string, ref api.SecurityGroupRuleRef)) {
	for _, rule := range rules {
		ref := api.SecurityGroupRuleRef{
			Protocol:        rule.Protocol,
			FromPort:        rule.FromPort,
			ToPort:          rule.ToPort,
			SecurityGroupID: group,
			Direction:       dir,
		}
		for _, referenced := range rule.ReferencedGroups {
			for _, pos := range rn.idx.byGroup[referenced] {
				other := rn.idx.resources[pos].ID
				if other == ownerID {
					continue
				}
				if _, skip := exclude[other]; skip {
					continue
				}
				if dir == api.DirectionInbound {
					add(other, ownerID, referenced, group, ref)
				} else {
					add(ownerID, other, group, referenced, ref)
				}
			}
		}
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
