// Package provider defines the per-resource lookups relationship discovery needs from a cloud provider.
package provider

import "context"

// Provider answers lookups scoped to a single resource. Implementations must be safe for concurrent use.
type Provider interface {
	// LoadBalancerTargets lists the registered targets behind a load balancer.
	LoadBalancerTargets(ctx context.Context, loadBalancerID string) ([]Target, error)

	// FunctionPolicy returns the resource-based invoke policy document, or "" when none is attached.
	FunctionPolicy(ctx context.Context, functionID string) (string, error)

	// FunctionEnvironment returns the function's environment variables.
	FunctionEnvironment(ctx context.Context, functionID string) (map[string]string, error)

	// APIIntegrations lists path+method integrations of a REST API.
	APIIntegrations(ctx context.Context, apiID string) ([]Integration, error)

	// RuleTargets lists the targets of an event rule.
	RuleTargets(ctx context.Context, ruleID string) ([]RuleTarget, error)

	// SecurityGroupRules returns the ingress and egress rules of a security group.
	SecurityGroupRules(ctx context.Context, groupID string) (*SecurityGroupRules, error)

	// StateMachineDefinition returns the workflow definition document, or "" when unavailable.
	StateMachineDefinition(ctx context.Context, workflowID string) (string, error)
}

// Target is a load balancer registration.
type Target struct {
	ID              string `json:"id" yaml:"id"`
	Port            int32  `json:"port" yaml:"port"`
	Protocol        string `json:"protocol" yaml:"protocol"`
	TargetGroupName string `json:"targetGroupName" yaml:"targetGroupName"`
}

// Integration is a REST API method integration.
type Integration struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method" yaml:"method"`
	URI    string `json:"uri" yaml:"uri"`
}

// RuleTarget is a single event rule target.
type RuleTarget struct {
	ID  string `json:"id" yaml:"id"`
	ARN string `json:"arn" yaml:"arn"`
}

// SecurityGroupRules holds both rule directions of a group.
type SecurityGroupRules struct {
	GroupID string `json:"groupId" yaml:"groupId"`
	Ingress []Rule `json:"ingress" yaml:"ingress"`
	Egress  []Rule `json:"egress" yaml:"egress"`
}

// Rule is one permission entry. A rule may reference groups, CIDR ranges, or both.
type Rule struct {
	Protocol         string   `json:"protocol" yaml:"protocol"`
	FromPort         int32    `json:"fromPort" yaml:"fromPort"`
	ToPort           int32    `json:"toPort" yaml:"toPort"`
	ReferencedGroups []string `json:"referencedGroups,omitempty" yaml:"referencedGroups,omitempty"`
	CIDRs            []string `json:"cidrs,omitempty" yaml:"cidrs,omitempty"`
}

type regionKey struct{}

// WithRegion scopes lookups made with ctx to a provider region.
func WithRegion(ctx context.Context, region string) context.Context {
	if region == "" {
		return ctx
	}
	return context.WithValue(ctx, regionKey{}, region)
}

// RegionFrom returns the region set by WithRegion, or "".
func RegionFrom(ctx context.Context) string {
	r, _ := ctx.Value(regionKey{}).(string)
	return r
}
