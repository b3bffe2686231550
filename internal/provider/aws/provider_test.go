package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshpalla27/topograph/internal/provider"
)

type fakeEC2 struct {
	out *ec2.DescribeSecurityGroupsOutput
}

func (f *fakeEC2) DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return f.out, nil
}

type fakeELB struct{}

func (fakeELB) DescribeTargetGroups(ctx context.Context, in *elbv2.DescribeTargetGroupsInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error) {
	return &elbv2.DescribeTargetGroupsOutput{TargetGroups: []elbv2types.TargetGroup{{
		TargetGroupArn:  aws.String("arn:aws:elasticloadbalancing:us-east-1:1:targetgroup/web/abc"),
		TargetGroupName: aws.String("web"),
		Protocol:        elbv2types.ProtocolEnumHttp,
		Port:            aws.Int32(8080),
	}}}, nil
}

func (fakeELB) DescribeTargetHealth(ctx context.Context, in *elbv2.DescribeTargetHealthInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error) {
	return &elbv2.DescribeTargetHealthOutput{TargetHealthDescriptions: []elbv2types.TargetHealthDescription{
		{Target: &elbv2types.TargetDescription{Id: aws.String("i-1")}},
		{Target: &elbv2types.TargetDescription{Id: aws.String("i-2"), Port: aws.Int32(9090)}},
		{Target: nil},
	}}, nil
}

type fakeLambda struct {
	policyErr error
}

func (f fakeLambda) GetPolicy(ctx context.Context, in *lambda.GetPolicyInput, _ ...func(*lambda.Options)) (*lambda.GetPolicyOutput, error) {
	if f.policyErr != nil {
		return nil, f.policyErr
	}
	return &lambda.GetPolicyOutput{Policy: aws.String(`{"Statement":[]}`)}, nil
}

func (f fakeLambda) GetFunctionConfiguration(ctx context.Context, in *lambda.GetFunctionConfigurationInput, _ ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error) {
	return &lambda.GetFunctionConfigurationOutput{
		Environment: &lambdatypes.EnvironmentResponse{Variables: map[string]string{"TABLE": "orders"}},
	}, nil
}

type fakeAPIGateway struct {
	calls int
}

func (f *fakeAPIGateway) GetResources(ctx context.Context, in *apigateway.GetResourcesInput, _ ...func(*apigateway.Options)) (*apigateway.GetResourcesOutput, error) {
	f.calls++
	if in.Position == nil {
		return &apigateway.GetResourcesOutput{
			Items: []apigwtypes.Resource{{
				Path: aws.String("/orders"),
				ResourceMethods: map[string]apigwtypes.Method{
					"GET":     {HttpMethod: aws.String("GET"), MethodIntegration: &apigwtypes.Integration{Uri: aws.String("uri-get")}},
					"OPTIONS": {HttpMethod: aws.String("OPTIONS")},
				},
			}},
			Position: aws.String("next"),
		}, nil
	}
	return &apigateway.GetResourcesOutput{
		Items: []apigwtypes.Resource{{
			Path: aws.String("/users"),
			ResourceMethods: map[string]apigwtypes.Method{
				"POST": {MethodIntegration: &apigwtypes.Integration{Uri: aws.String("uri-post")}},
			},
		}},
	}, nil
}

type fakeEventBridge struct {
	lastBus  string
	lastRule string
}

func (f *fakeEventBridge) ListTargetsByRule(ctx context.Context, in *eventbridge.ListTargetsByRuleInput, _ ...func(*eventbridge.Options)) (*eventbridge.ListTargetsByRuleOutput, error) {
	f.lastBus = aws.ToString(in.EventBusName)
	f.lastRule = aws.ToString(in.Rule)
	if in.NextToken == nil {
		return &eventbridge.ListTargetsByRuleOutput{
			Targets:   []ebtypes.Target{{Id: aws.String("t1"), Arn: aws.String("arn:aws:lambda:us-east-1:1:function:a")}},
			NextToken: aws.String("page2"),
		}, nil
	}
	return &eventbridge.ListTargetsByRuleOutput{
		Targets: []ebtypes.Target{{Id: aws.String("t2"), Arn: aws.String("arn:aws:sqs:us-east-1:1:queue")}},
	}, nil
}

func newTestProvider(c *Clients) (*Provider, *[]string) {
	var regions []string
	return NewWithFactory("us-east-1", func(region string) *Clients {
		regions = append(regions, region)
		return c
	}), &regions
}

func TestSecurityGroupRules_ConvertsPermissions(t *testing.T) {
	ec2Client := &fakeEC2{out: &ec2.DescribeSecurityGroupsOutput{SecurityGroups: []ec2types.SecurityGroup{{
		GroupId: aws.String("sg-db"),
		IpPermissions: []ec2types.IpPermission{{
			IpProtocol:       aws.String("tcp"),
			FromPort:         aws.Int32(3306),
			ToPort:           aws.Int32(3306),
			UserIdGroupPairs: []ec2types.UserIdGroupPair{{GroupId: aws.String("sg-app")}},
		}, {
			IpProtocol: aws.String("-1"),
			IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("10.0.0.0/8")}},
		}},
		IpPermissionsEgress: []ec2types.IpPermission{{IpProtocol: aws.String("-1")}},
	}}}}
	p, _ := newTestProvider(&Clients{EC2: ec2Client})

	rules, err := p.SecurityGroupRules(context.Background(), "sg-db")
	require.NoError(t, err)
	require.Len(t, rules.Ingress, 2)
	assert.Equal(t, provider.Rule{Protocol: "tcp", FromPort: 3306, ToPort: 3306, ReferencedGroups: []string{"sg-app"}}, rules.Ingress[0])
	assert.Equal(t, "all", rules.Ingress[1].Protocol)
	assert.Equal(t, []string{"10.0.0.0/8"}, rules.Ingress[1].CIDRs)
	assert.Len(t, rules.Egress, 1)
}

func TestLoadBalancerTargets_FallsBackToGroupPort(t *testing.T) {
	p, _ := newTestProvider(&Clients{ELBv2: fakeELB{}})

	targets, err := p.LoadBalancerTargets(context.Background(), "arn:aws:elasticloadbalancing:us-east-1:1:loadbalancer/app/web/1")
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, provider.Target{ID: "i-1", Port: 8080, Protocol: "HTTP", TargetGroupName: "web"}, targets[0])
	assert.Equal(t, int32(9090), targets[1].Port)
}

func TestFunctionPolicy_MissingPolicyIsNotAnError(t *testing.T) {
	notFound := &lambdatypes.ResourceNotFoundException{Message: aws.String("no policy")}
	p, _ := newTestProvider(&Clients{Lambda: fakeLambda{policyErr: notFound}})

	policy, err := p.FunctionPolicy(context.Background(), "arn:aws:lambda:us-east-1:1:function:a")
	require.NoError(t, err)
	assert.Empty(t, policy)

	p, _ = newTestProvider(&Clients{Lambda: fakeLambda{policyErr: errors.New("throttled")}})
	_, err = p.FunctionPolicy(context.Background(), "arn:aws:lambda:us-east-1:1:function:a")
	assert.Error(t, err)
}

func TestFunctionEnvironment(t *testing.T) {
	p, _ := newTestProvider(&Clients{Lambda: fakeLambda{}})
	env, err := p.FunctionEnvironment(context.Background(), "fn")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TABLE": "orders"}, env)
}

func TestAPIIntegrations_Paginates(t *testing.T) {
	gw := &fakeAPIGateway{}
	p, _ := newTestProvider(&Clients{APIGateway: gw})

	integrations, err := p.APIIntegrations(context.Background(), "arn:aws:apigateway:us-east-1::/restapis/abc123")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls)
	assert.ElementsMatch(t, []provider.Integration{
		{Path: "/orders", Method: "GET", URI: "uri-get"},
		{Path: "/users", Method: "POST", URI: "uri-post"},
	}, integrations)
}

func TestRuleTargets_ParsesBusFromARN(t *testing.T) {
	eb := &fakeEventBridge{}
	p, _ := newTestProvider(&Clients{EventBridge: eb})

	targets, err := p.RuleTargets(context.Background(), "arn:aws:events:us-east-1:1:rule/orders-bus/order-created")
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	assert.Equal(t, "orders-bus", eb.lastBus)
	assert.Equal(t, "order-created", eb.lastRule)
}

func TestClientsFor_RegionResolution(t *testing.T) {
	p, regions := newTestProvider(&Clients{Lambda: fakeLambda{}})

	_, _ = p.FunctionEnvironment(context.Background(), "arn:aws:lambda:eu-west-1:1:function:a")
	_, _ = p.FunctionEnvironment(provider.WithRegion(context.Background(), "ap-south-1"), "fn")
	_, _ = p.FunctionEnvironment(context.Background(), "fn")
	_, _ = p.FunctionEnvironment(context.Background(), "arn:aws:lambda:eu-west-1:1:function:b")

	assert.Equal(t, []string{"eu-west-1", "ap-south-1", "us-east-1"}, *regions)
}

func TestRuleNameAndBus(t *testing.T) {
	tests := []struct {
		in   string
		bus  string
		name string
	}{
		{"order-created", "", "order-created"},
		{"arn:aws:events:us-east-1:1:rule/order-created", "", "order-created"},
		{"arn:aws:events:us-east-1:1:rule/custom/order-created", "custom", "order-created"},
	}
	for _, tt := range tests {
		bus, name := ruleNameAndBus(tt.in)
		assert.Equal(t, tt.bus, bus, tt.in)
		assert.Equal(t, tt.name, name, tt.in)
	}
}
