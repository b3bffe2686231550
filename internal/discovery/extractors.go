package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santoshpalla27/topograph/internal/provider"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

var computeKinds = []api.ResourceType{api.ResourceTypeEC2, api.ResourceTypeECS, api.ResourceTypeLambda}

// extract dispatches the resource at position pos to the extractor for its kind.
func (rn *run) extract(ctx context.Context, pos int) ([]api.Relationship, error) {
	r := rn.idx.resources[pos]
	switch r.Type {
	case api.ResourceTypeLoadBalancer:
		return rn.extractLoadBalancer(ctx, r)
	case api.ResourceTypeLambda:
		return rn.extractFunction(ctx, r)
	case api.ResourceTypeAPIGateway:
		return rn.extractAPIGateway(ctx, r)
	case api.ResourceTypeEventBridge:
		return rn.extractEventRule(ctx, r)
	case api.ResourceTypeEC2, api.ResourceTypeECS:
		return rn.resolveSecurityGroups(ctx, r.ID, rn.idx.groups[pos], nil)
	case api.ResourceTypeRDS:
		return rn.extractDatabaseInstance(ctx, r, rn.idx.groups[pos])
	case api.ResourceTypeRDSCluster:
		return rn.extractDatabaseCluster(ctx, r, rn.idx.groups[pos])
	case api.ResourceTypeStepFunctions:
		return rn.extractWorkflow(ctx, r)
	case api.ResourceTypeDynamoDB:
		return nil, nil
	default:
		return nil, nil
	}
}

func (rn *run) extractLoadBalancer(ctx context.Context, lb api.Resource) ([]api.Relationship, error) {
	targets, err := rn.provider.LoadBalancerTargets(ctx, lb.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("load balancer targets", lb.ID, err)
	}

	var edges []api.Relationship
	for _, t := range targets {
		backend, ok := rn.matchTarget(lb.ID, t)
		if !ok {
			continue
		}
		edges = append(edges, api.Relationship{
			SourceID: lb.ID,
			TargetID: backend.ID,
			Type:     api.RelRoutesTo,
			Metadata: &api.RelationshipMetadata{Protocol: t.Protocol, Port: t.Port},
		})
	}
	return edges, nil
}

// matchTarget resolves a registered target to a compute resource by id, ARN, private
// address, or for container services by the hosting cluster name in the target group.
func (rn *run) matchTarget(lbID string, t provider.Target) (api.Resource, bool) {
	if t.ID != "" {
		if r, ok := rn.idx.get(t.ID); ok && r.ID != lbID && kindAllowed(r.Type, computeKinds) {
			return r, true
		}
		if r, ok := rn.idx.matchARN(t.ID, lbID, computeKinds...); ok {
			return r, true
		}
		for _, r := range rn.idx.resources {
			if kindAllowed(r.Type, computeKinds) && hasAddress(r, t.ID) {
				return r, true
			}
		}
	}
	if t.TargetGroupName == "" {
		return api.Resource{}, false
	}
	for _, r := range rn.idx.resources {
		if r.Type == api.ResourceTypeECS && len(r.Name) >= 3 && strings.Contains(t.TargetGroupName, r.Name) {
			return r, true
		}
	}
	for _, r := range rn.idx.resources {
		if r.Type != api.ResourceTypeECS {
			continue
		}
		cluster := r.DetailString("clusterName")
		if cluster == "" {
			cluster = lastSegment(r.ClusterID)
		}
		if cluster != "" && strings.Contains(t.TargetGroupName, cluster) {
			return r, true
		}
	}
	return api.Resource{}, false
}

func hasAddress(r api.Resource, addr string) bool {
	if r.DetailString("privateIp") == addr {
		return true
	}
	for _, ip := range stringList(r.Details["privateIps"]) {
		if ip == addr {
			return true
		}
	}
	return false
}

type policyDocument struct {
	Statement json.RawMessage `json:"Statement"`
}

type policyStatement struct {
	Effect    string                    `json:"Effect"`
	Principal any                       `json:"Principal"`
	Condition map[string]map[string]any `json:"Condition"`
}

func (rn *run) extractFunction(ctx context.Context, fn api.Resource) ([]api.Relationship, error) {
	policy, err := rn.provider.FunctionPolicy(ctx, fn.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("function policy", fn.ID, err)
	}
	env, err := rn.provider.FunctionEnvironment(ctx, fn.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("function environment", fn.ID, err)
	}

	var edges []api.Relationship
	if policy != "" {
		statements, err := parsePolicy(policy)
		if err != nil {
			return nil, err
		}
		for _, st := range statements {
			if strings.EqualFold(st.Effect, "Deny") {
				continue
			}
			service := principalService(st.Principal)
			for _, arn := range sourceARNs(st.Condition) {
				source, ok := rn.idx.matchARN(arn, fn.ID)
				if !ok {
					continue
				}
				edges = append(edges, api.Relationship{
					SourceID: source.ID,
					TargetID: fn.ID,
					Type:     api.RelTriggers,
					Metadata: &api.RelationshipMetadata{EventType: service},
				})
			}
		}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, value := range strings.FieldsFunc(env[k], func(c rune) bool { return c == ',' || c == ' ' || c == ';' }) {
			if !strings.Contains(value, "arn:") {
				continue
			}
			dep, ok := rn.idx.matchARN(value, fn.ID)
			if !ok {
				continue
			}
			edges = append(edges, api.Relationship{SourceID: fn.ID, TargetID: dep.ID, Type: api.RelDependsOn})
		}
	}
	return edges, nil
}

// parsePolicy accepts a Statement given as a list or a single object.
func parsePolicy(policy string) ([]policyStatement, error) {
	var doc policyDocument
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse function policy: %w", err)
	}
	if len(doc.Statement) == 0 {
		return nil, nil
	}
	var statements []policyStatement
	if err := json.Unmarshal(doc.Statement, &statements); err == nil {
		return statements, nil
	}
	var single policyStatement
	if err := json.Unmarshal(doc.Statement, &single); err != nil {
		return nil, fmt.Errorf("failed to parse policy statement: %w", err)
	}
	return []policyStatement{single}, nil
}

func principalService(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case map[string]any:
		if s := stringList(v["Service"]); len(s) > 0 {
			return s[0]
		}
		if s := stringList(v["AWS"]); len(s) > 0 {
			return s[0]
		}
	}
	return ""
}

// sourceARNs collects aws:SourceArn values from any ARN or string condition operator.
func sourceARNs(cond map[string]map[string]any) []string {
	operators := make([]string, 0, len(cond))
	for op := range cond {
		operators = append(operators, op)
	}
	sort.Strings(operators)

	var arns []string
	for _, op := range operators {
		for key, v := range cond[op] {
			if strings.EqualFold(key, "aws:SourceArn") {
				arns = append(arns, stringList(v)...)
			}
		}
	}
	return arns
}

func (rn *run) extractAPIGateway(ctx context.Context, gw api.Resource) ([]api.Relationship, error) {
	integrations, err := rn.provider.APIIntegrations(ctx, gw.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("api integrations", gw.ID, err)
	}
	integrations = append([]provider.Integration(nil), integrations...)
	sort.SliceStable(integrations, func(i, j int) bool {
		if integrations[i].Path != integrations[j].Path {
			return integrations[i].Path < integrations[j].Path
		}
		return integrations[i].Method < integrations[j].Method
	})

	var edges []api.Relationship
	for _, in := range integrations {
		fn, ok := rn.idx.matchARN(in.URI, gw.ID, api.ResourceTypeLambda)
		if !ok {
			continue
		}
		edges = append(edges, api.Relationship{
			SourceID: gw.ID,
			TargetID: fn.ID,
			Type:     api.RelTriggers,
			Metadata: &api.RelationshipMetadata{Method: in.Method, Path: in.Path},
		})
	}
	return edges, nil
}

func (rn *run) extractEventRule(ctx context.Context, rule api.Resource) ([]api.Relationship, error) {
	targets, err := rn.provider.RuleTargets(ctx, rule.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("rule targets", rule.ID, err)
	}

	var edges []api.Relationship
	for _, t := range targets {
		target, ok := rn.idx.matchARN(t.ARN, rule.ID)
		if !ok {
			continue
		}
		edges = append(edges, api.Relationship{
			SourceID: rule.ID,
			TargetID: target.ID,
			Type:     api.RelTriggers,
			Metadata: &api.RelationshipMetadata{EventType: "events.amazonaws.com"},
		})
	}
	return edges, nil
}

func declaredCluster(r api.Resource) string {
	if r.ClusterID != "" {
		return r.ClusterID
	}
	return r.DetailString("dbClusterIdentifier")
}

func (rn *run) extractDatabaseInstance(ctx context.Context, db api.Resource, groups []string) ([]api.Relationship, error) {
	var edges []api.Relationship
	if cluster, ok := rn.idx.resolveCluster(declaredCluster(db)); ok && cluster.ID != db.ID {
		edges = append(edges, api.Relationship{SourceID: db.ID, TargetID: cluster.ID, Type: api.RelInstanceOf})
	}
	connections, err := rn.resolveSecurityGroups(ctx, db.ID, groups, nil)
	if err != nil {
		return nil, err
	}
	return append(edges, connections...), nil
}

// extractDatabaseCluster links owned instances and, when the cluster has no groups of its
// own, resolves connections through the union of its instances' groups.
func (rn *run) extractDatabaseCluster(ctx context.Context, cluster api.Resource, groups []string) ([]api.Relationship, error) {
	var edges []api.Relationship
	owned := make(map[string]struct{})
	var inherited []string
	for i, r := range rn.idx.resources {
		if r.Type != api.ResourceTypeRDS || r.ID == cluster.ID {
			continue
		}
		c, ok := rn.idx.resolveCluster(declaredCluster(r))
		if !ok || c.ID != cluster.ID {
			continue
		}
		owned[r.ID] = struct{}{}
		edges = append(edges, api.Relationship{SourceID: r.ID, TargetID: cluster.ID, Type: api.RelInstanceOf})
		for _, g := range rn.idx.groups[i] {
			inherited = appendUnique(inherited, g)
		}
	}

	var (
		connections []api.Relationship
		err         error
	)
	if len(groups) > 0 {
		connections, err = rn.resolveSecurityGroups(ctx, cluster.ID, groups, nil)
	} else {
		connections, err = rn.resolveSecurityGroups(ctx, cluster.ID, inherited, owned)
	}
	if err != nil {
		return nil, err
	}
	return append(edges, connections...), nil
}
