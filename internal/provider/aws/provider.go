package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/smithy-go"

	"github.com/santoshpalla27/topograph/internal/provider"
)

// ClientFactory builds the client bundle for a region.
type ClientFactory func(region string) *Clients

// Provider implements provider.Provider with regional AWS clients.
// The region comes from provider.RegionFrom(ctx), falling back to the default region.
type Provider struct {
	defaultRegion string
	factory       ClientFactory

	mu      sync.Mutex
	clients map[string]*Clients
}

// New loads the default AWS credential chain and returns a provider.
func New(ctx context.Context, defaultRegion string) (*Provider, error) {
	var opts []func(*config.LoadOptions) error
	if defaultRegion != "" {
		opts = append(opts, config.WithRegion(defaultRegion))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if defaultRegion == "" {
		defaultRegion = cfg.Region
	}
	return NewWithFactory(defaultRegion, FromConfig(cfg)), nil
}

// FromConfig returns a factory that derives regional SDK clients from cfg.
func FromConfig(cfg aws.Config) ClientFactory {
	return func(region string) *Clients {
		c := cfg.Copy()
		c.Region = region
		return &Clients{
			EC2:         ec2.NewFromConfig(c),
			ELBv2:       elbv2.NewFromConfig(c),
			Lambda:      lambda.NewFromConfig(c),
			APIGateway:  apigateway.NewFromConfig(c),
			EventBridge: eventbridge.NewFromConfig(c),
			SFN:         sfn.NewFromConfig(c),
		}
	}
}

// NewWithFactory builds a provider from an explicit client factory.
func NewWithFactory(defaultRegion string, factory ClientFactory) *Provider {
	return &Provider{
		defaultRegion: defaultRegion,
		factory:       factory,
		clients:       make(map[string]*Clients),
	}
}

func (p *Provider) clientsFor(ctx context.Context, id string) *Clients {
	region := provider.RegionFrom(ctx)
	if region == "" {
		region = arnRegion(id)
	}
	if region == "" {
		region = p.defaultRegion
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[region]; ok {
		return c
	}
	c := p.factory(region)
	p.clients[region] = c
	return c
}

// LoadBalancerTargets walks every target group of the load balancer.
func (p *Provider) LoadBalancerTargets(ctx context.Context, loadBalancerID string) ([]provider.Target, error) {
	c := p.clientsFor(ctx, loadBalancerID)

	groups, err := c.ELBv2.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(loadBalancerID),
	})
	if err != nil {
		return nil, fmt.Errorf("describe target groups: %w", err)
	}

	var targets []provider.Target
	for _, tg := range groups.TargetGroups {
		health, err := c.ELBv2.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
			TargetGroupArn: tg.TargetGroupArn,
		})
		if err != nil {
			return nil, fmt.Errorf("describe target health %s: %w", aws.ToString(tg.TargetGroupArn), err)
		}
		for _, desc := range health.TargetHealthDescriptions {
			if desc.Target == nil {
				continue
			}
			port := aws.ToInt32(desc.Target.Port)
			if port == 0 {
				port = aws.ToInt32(tg.Port)
			}
			targets = append(targets, provider.Target{
				ID:              aws.ToString(desc.Target.Id),
				Port:            port,
				Protocol:        string(tg.Protocol),
				TargetGroupName: aws.ToString(tg.TargetGroupName),
			})
		}
	}
	return targets, nil
}

// FunctionPolicy returns "" when the function has no resource policy.
func (p *Provider) FunctionPolicy(ctx context.Context, functionID string) (string, error) {
	c := p.clientsFor(ctx, functionID)
	out, err := c.Lambda.GetPolicy(ctx, &lambda.GetPolicyInput{FunctionName: aws.String(functionID)})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if errors.As(err, &notFound) || apiErrorCode(err) == "ResourceNotFoundException" {
			return "", nil
		}
		return "", fmt.Errorf("get policy: %w", err)
	}
	return aws.ToString(out.Policy), nil
}

func (p *Provider) FunctionEnvironment(ctx context.Context, functionID string) (map[string]string, error) {
	c := p.clientsFor(ctx, functionID)
	out, err := c.Lambda.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(functionID),
	})
	if err != nil {
		return nil, fmt.Errorf("get function configuration: %w", err)
	}
	if out.Environment == nil {
		return nil, nil
	}
	return out.Environment.Variables, nil
}

// APIIntegrations pages through the REST API resources with embedded methods.
func (p *Provider) APIIntegrations(ctx context.Context, apiID string) ([]provider.Integration, error) {
	c := p.clientsFor(ctx, apiID)
	restAPIID := lastSegment(apiID)

	var integrations []provider.Integration
	var position *string
	for {
		out, err := c.APIGateway.GetResources(ctx, &apigateway.GetResourcesInput{
			RestApiId: aws.String(restAPIID),
			Embed:     []string{"methods"},
			Position:  position,
		})
		if err != nil {
			return nil, fmt.Errorf("get resources: %w", err)
		}
		for _, res := range out.Items {
			for method, m := range res.ResourceMethods {
				if m.MethodIntegration == nil || m.MethodIntegration.Uri == nil {
					continue
				}
				httpMethod := aws.ToString(m.HttpMethod)
				if httpMethod == "" {
					httpMethod = method
				}
				integrations = append(integrations, provider.Integration{
					Path:   aws.ToString(res.Path),
					Method: httpMethod,
					URI:    aws.ToString(m.MethodIntegration.Uri),
				})
			}
		}
		if out.Position == nil || aws.ToString(out.Position) == "" {
			break
		}
		position = out.Position
	}
	return integrations, nil
}

// RuleTargets accepts either a rule ARN (rule/<bus>/<name> or rule/<name>) or a bare rule name.
func (p *Provider) RuleTargets(ctx context.Context, ruleID string) ([]provider.RuleTarget, error) {
	c := p.clientsFor(ctx, ruleID)
	bus, name := ruleNameAndBus(ruleID)

	in := &eventbridge.ListTargetsByRuleInput{Rule: aws.String(name)}
	if bus != "" {
		in.EventBusName = aws.String(bus)
	}

	var targets []provider.RuleTarget
	for {
		out, err := c.EventBridge.ListTargetsByRule(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("list targets by rule: %w", err)
		}
		for _, t := range out.Targets {
			targets = append(targets, provider.RuleTarget{
				ID:  aws.ToString(t.Id),
				ARN: aws.ToString(t.Arn),
			})
		}
		if out.NextToken == nil {
			break
		}
		in.NextToken = out.NextToken
	}
	return targets, nil
}

// SecurityGroupRules maps EC2 IP permissions. Protocol "-1" becomes "all".
func (p *Provider) SecurityGroupRules(ctx context.Context, groupID string) (*provider.SecurityGroupRules, error) {
	c := p.clientsFor(ctx, groupID)
	out, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security groups: %w", err)
	}

	rules := &provider.SecurityGroupRules{GroupID: groupID}
	for _, sg := range out.SecurityGroups {
		if aws.ToString(sg.GroupId) != groupID {
			continue
		}
		rules.Ingress = append(rules.Ingress, convertPermissions(sg.IpPermissions)...)
		rules.Egress = append(rules.Egress, convertPermissions(sg.IpPermissionsEgress)...)
	}
	return rules, nil
}

func (p *Provider) StateMachineDefinition(ctx context.Context, workflowID string) (string, error) {
	c := p.clientsFor(ctx, workflowID)
	out, err := c.SFN.DescribeStateMachine(ctx, &sfn.DescribeStateMachineInput{
		StateMachineArn: aws.String(workflowID),
	})
	if err != nil {
		if apiErrorCode(err) == "StateMachineDoesNotExist" {
			return "", nil
		}
		return "", fmt.Errorf("describe state machine: %w", err)
	}
	return aws.ToString(out.Definition), nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// arnRegion returns the region field of an ARN, or "" for non-ARN ids.
func arnRegion(id string) string {
	if !strings.HasPrefix(id, "arn:") {
		return ""
	}
	parts := strings.SplitN(id, ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return parts[3]
}

func lastSegment(id string) string {
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func ruleNameAndBus(ruleID string) (bus, name string) {
	if !strings.HasPrefix(ruleID, "arn:") {
		return "", ruleID
	}
	parts := strings.SplitN(ruleID, ":", 6)
	if len(parts) < 6 {
		return "", lastSegment(ruleID)
	}
	path := strings.Split(strings.TrimPrefix(parts[5], "rule/"), "/")
	if len(path) == 2 {
		return path[0], path[1]
	}
	return "", path[len(path)-1]
}
