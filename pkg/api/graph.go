// Package api defines the resource topology model shared by discovery, rendering and the HTTP surface.
package api

import "strings"

// ResourceType identifies one of the tracked resource kinds.
type ResourceType string

const (
	ResourceTypeEC2           ResourceType = "ec2"
	ResourceTypeECS           ResourceType = "ecs"
	ResourceTypeLambda        ResourceType = "lambda"
	ResourceTypeRDS           ResourceType = "rds"
	ResourceTypeRDSCluster    ResourceType = "rds-cluster"
	ResourceTypeLoadBalancer  ResourceType = "elb"
	ResourceTypeAPIGateway    ResourceType = "apigateway"
	ResourceTypeEventBridge   ResourceType = "eventbridge"
	ResourceTypeStepFunctions ResourceType = "stepfunctions"
	ResourceTypeDynamoDB      ResourceType = "dynamodb"
)

// ResourceTypes lists every known kind in a stable order.
var ResourceTypes = []ResourceType{
	ResourceTypeEC2,
	ResourceTypeECS,
	ResourceTypeLambda,
	ResourceTypeRDS,
	ResourceTypeRDSCluster,
	ResourceTypeLoadBalancer,
	ResourceTypeAPIGateway,
	ResourceTypeEventBridge,
	ResourceTypeStepFunctions,
	ResourceTypeDynamoDB,
}

// Valid reports whether t is one of the known kinds.
func (t ResourceType) Valid() bool {
	for _, k := range ResourceTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ResourceStatus is the normalized lifecycle state of a resource.
type ResourceStatus string

const (
	StatusRunning    ResourceStatus = "running"
	StatusPending    ResourceStatus = "pending"
	StatusStopped    ResourceStatus = "stopped"
	StatusTerminated ResourceStatus = "terminated"
)

// DefaultApplication is assigned to resources that carry no application grouping.
const DefaultApplication = "Unknown"

// Resource is a single cloud-hosted entity. Discovery never mutates it.
type Resource struct {
	ID             string            `json:"id" yaml:"id"`
	Type           ResourceType      `json:"type" yaml:"type"`
	Name           string            `json:"name" yaml:"name"`
	Status         ResourceStatus    `json:"status" yaml:"status"`
	Application    string            `json:"application" yaml:"application"`
	Region         string            `json:"region" yaml:"region"`
	Tags           map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	SecurityGroups []string          `json:"securityGroups,omitempty" yaml:"securityGroups,omitempty"`
	ClusterID      string            `json:"clusterId,omitempty" yaml:"clusterId,omitempty"`
	Details        map[string]any    `json:"details,omitempty" yaml:"details,omitempty"`
}

// Normalize fills defaults for fields the inventory may leave empty.
func (r Resource) Normalize() Resource {
	if strings.TrimSpace(r.Application) == "" {
		r.Application = DefaultApplication
	}
	switch r.Status {
	case StatusRunning, StatusPending, StatusStopped, StatusTerminated:
	default:
		r.Status = StatusPending
	}
	if r.Name == "" {
		r.Name = r.ID
	}
	return r
}

// DetailString returns a string detail field or "".
func (r Resource) DetailString(key string) string {
	if r.Details == nil {
		return ""
	}
	s, _ := r.Details[key].(string)
	return s
}

// RelationshipType is the semantic kind of an edge.
type RelationshipType string

const (
	RelRoutesTo   RelationshipType = "routes_to"
	RelDependsOn  RelationshipType = "depends_on"
	RelTriggers   RelationshipType = "triggers"
	RelConnectsTo RelationshipType = "connects_to"
	RelPartOf     RelationshipType = "part_of"
	RelInstanceOf RelationshipType = "instance_of"
)

// RelationshipTypes lists every edge kind in legend order.
var RelationshipTypes = []RelationshipType{
	RelRoutesTo,
	RelDependsOn,
	RelTriggers,
	RelConnectsTo,
	RelPartOf,
	RelInstanceOf,
}

// Relationship is a directed, typed edge between two resources.
type Relationship struct {
	SourceID string                `json:"sourceId"`
	TargetID string                `json:"targetId"`
	Type     RelationshipType      `json:"type"`
	Metadata *RelationshipMetadata `json:"metadata,omitempty"`
}

// Key is the dedup identity of an edge. Metadata is not part of it.
func (r Relationship) Key() RelationshipKey {
	return RelationshipKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// RelationshipKey is the (source, target, type) tuple.
type RelationshipKey struct {
	SourceID string
	TargetID string
	Type     RelationshipType
}

// RelationshipMetadata explains why an edge exists.
type RelationshipMetadata struct {
	Protocol       string                 `json:"protocol,omitempty"`
	Port           int32                  `json:"port,omitempty"`
	EventType      string                 `json:"eventType,omitempty"`
	Method         string                 `json:"method,omitempty"`
	Path           string                 `json:"path,omitempty"`
	State          string                 `json:"state,omitempty"`
	SecurityGroups *SecurityGroupMetadata `json:"securityGroups,omitempty"`
}

// SecurityGroupMetadata records the groups and rules behind a connects_to edge.
type SecurityGroupMetadata struct {
	Source []string               `json:"source"`
	Target []string               `json:"target"`
	Rules  []SecurityGroupRuleRef `json:"rules"`
}

// RuleDirection is the side of a security group a rule applies to.
type RuleDirection string

const (
	DirectionInbound  RuleDirection = "inbound"
	DirectionOutbound RuleDirection = "outbound"
)

// SecurityGroupRuleRef is the matching rule carried on an edge.
type SecurityGroupRuleRef struct {
	Protocol        string        `json:"protocol"`
	FromPort        int32         `json:"fromPort"`
	ToPort          int32         `json:"toPort"`
	SecurityGroupID string        `json:"securityGroupId"`
	Direction       RuleDirection `json:"direction"`
}
