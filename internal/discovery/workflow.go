package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

// stateMachine is the subset of an Amazon States Language document needed to find invoked targets.
type stateMachine struct {
	StartAt string           `json:"StartAt"`
	States  map[string]state `json:"States"`
}

type state struct {
	Type          string         `json:"Type"`
	Resource      string         `json:"Resource"`
	Parameters    map[string]any `json:"Parameters"`
	Branches      []stateMachine `json:"Branches"`
	Iterator      *stateMachine  `json:"Iterator"`
	ItemProcessor *stateMachine  `json:"ItemProcessor"`
}

// Static parameters that name an invoked resource.
var taskTargetParameters = []string{"FunctionName", "StateMachineArn", "TopicArn", "QueueUrl"}

type taskTarget struct {
	state  string
	target string
}

func (rn *run) extractWorkflow(ctx context.Context, wf api.Resource) ([]api.Relationship, error) {
	definition, err := rn.provider.StateMachineDefinition(ctx, wf.ID)
	if err != nil {
		return nil, topoerrors.NewLookupError("state machine definition", wf.ID, err)
	}
	if definition == "" {
		return nil, nil
	}
	var sm stateMachine
	if err := json.Unmarshal([]byte(definition), &sm); err != nil {
		return nil, fmt.Errorf("failed to parse state machine definition: %w", err)
	}

	var edges []api.Relationship
	for _, t := range collectTaskTargets(sm, nil) {
		target, ok := rn.idx.matchARN(t.target, wf.ID)
		if !ok {
			continue
		}
		edges = append(edges, api.Relationship{
			SourceID: wf.ID,
			TargetID: target.ID,
			Type:     api.RelTriggers,
			Metadata: &api.RelationshipMetadata{EventType: "states:Task", State: t.state},
		})
	}
	return edges, nil
}

// collectTaskTargets walks states in name order, descending into Parallel branches and Map processors.
func collectTaskTargets(sm stateMachine, out []taskTarget) []taskTarget {
	names := make([]string, 0, len(sm.States))
	for name := range sm.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := sm.States[name]
		switch st.Type {
		case "Task":
			if st.Resource != "" {
				out = append(out, taskTarget{state: name, target: st.Resource})
			}
			for _, key := range taskTargetParameters {
				if v, ok := st.Parameters[key].(string); ok && v != "" {
					out = append(out, taskTarget{state: name, target: v})
				}
			}
		case "Parallel":
			for _, branch := range st.Branches {
				out = collectTaskTargets(branch, out)
			}
		case "Map":
			if st.ItemProcessor != nil {
				out = collectTaskTargets(*st.ItemProcessor, out)
			}
			if st.Iterator != nil {
				out = collectTaskTargets(*st.Iterator, out)
			}
		}
	}
	return out
}
