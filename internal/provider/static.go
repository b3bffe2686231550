package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Static serves lookups from in-memory fixtures. It backs offline runs and tests.
type Static struct {
	Targets         map[string][]Target            `json:"targets" yaml:"targets"`
	Policies        map[string]string              `json:"policies" yaml:"policies"`
	Environments    map[string]map[string]string   `json:"environments" yaml:"environments"`
	Integrations    map[string][]Integration       `json:"integrations" yaml:"integrations"`
	RuleTargetsByID map[string][]RuleTarget        `json:"ruleTargets" yaml:"ruleTargets"`
	SecurityGroups  map[string]*SecurityGroupRules `json:"securityGroups" yaml:"securityGroups"`
	Definitions     map[string]string              `json:"definitions" yaml:"definitions"`
	Failures        map[string]string              `json:"failures" yaml:"failures"`
}

// NewStatic returns an empty fixture provider.
func NewStatic() *Static {
	return &Static{
		Targets:         make(map[string][]Target),
		Policies:        make(map[string]string),
		Environments:    make(map[string]map[string]string),
		Integrations:    make(map[string][]Integration),
		RuleTargetsByID: make(map[string][]RuleTarget),
		SecurityGroups:  make(map[string]*SecurityGroupRules),
		Definitions:     make(map[string]string),
		Failures:        make(map[string]string),
	}
}

// LoadStatic reads fixtures from a JSON or YAML file, chosen by extension.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	s := NewStatic()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixtures %s: %w", path, err)
	}
	return s, nil
}

func (s *Static) fail(id string) error {
	if msg, ok := s.Failures[id]; ok {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func (s *Static) LoadBalancerTargets(ctx context.Context, id string) ([]Target, error) {
	if err := s.fail(id); err != nil {
		return nil, err
	}
	return s.Targets[id], ctx.Err()
}

func (s *Static) FunctionPolicy(ctx context.Context, id string) (string, error) {
	if err := s.fail(id); err != nil {
		return "", err
	}
	return s.Policies[id], ctx.Err()
}

func (s *Static) FunctionEnvironment(ctx context.Context, id string) (map[string]string, error) {
	if err := s.fail(id); err != nil {
		return nil, err
	}
	return s.Environments[id], ctx.Err()
}

func (s *Static) APIIntegrations(ctx context.Context, id string) ([]Integration, error) {
	if err := s.fail(id); err != nil {
		return nil, err
	}
	return s.Integrations[id], ctx.Err()
}

func (s *Static) RuleTargets(ctx context.Context, id string) ([]RuleTarget, error) {
	if err := s.fail(id); err != nil {
		return nil, err
	}
	return s.RuleTargetsByID[id], ctx.Err()
}

func (s *Static) SecurityGroupRules(ctx context.Context, id string) (*SecurityGroupRules, error) {
	if err := s.fail(id); err != nil {
		return nil, err
	}
	rules, ok := s.SecurityGroups[id]
	if !ok {
		return &SecurityGroupRules{GroupID: id}, ctx.Err()
	}
	return rules, ctx.Err()
}

func (s *Static) StateMachineDefinition(ctx context.Context, id string) (string, error) {
	if err := s.fail(id); err != nil {
		return "", err
	}
	return s.Definitions[id], ctx.Err()
}
