package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/internal/render"
	"github.com/santoshpalla27/topograph/pkg/api"
)

// discoverOutput is the JSON output format.
type discoverOutput struct {
	RunID             string              `json:"runId"`
	Resources         []api.Resource      `json:"resources"`
	Relationships     []api.Relationship  `json:"relationships"`
	ExternalResources []api.Resource      `json:"externalResources"`
	Stats             discovery.Stats     `json:"stats"`
	Failures          []discovery.Failure `json:"failures,omitempty"`
}

func outputJSON(w io.Writer, resp *api.TopologyResponse, result *discovery.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(discoverOutput{
		RunID:             result.RunID,
		Resources:         resp.Resources,
		Relationships:     resp.Relationships,
		ExternalResources: resp.ExternalResources,
		Stats:             result.Stats,
		Failures:          result.Failures,
	})
}

func outputTable(w io.Writer, resp *api.TopologyResponse, result *discovery.Result) error {
	names := make(map[string]string, len(resp.Resources)+len(resp.ExternalResources))
	external := make(map[string]bool, len(resp.ExternalResources))
	for _, r := range resp.Resources {
		names[r.ID] = r.Name
	}
	for _, r := range resp.ExternalResources {
		names[r.ID] = r.Name
		external[r.ID] = true
	}
	label := func(id string) string {
		name, ok := names[id]
		if !ok || name == "" {
			name = id
		}
		if external[id] {
			return name + " (external)"
		}
		return name
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTYPE\tTARGET\tDETAIL")
	for _, e := range resp.Relationships {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", label(e.SourceID), e.Type, label(e.TargetID), detail(e.Metadata))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := result.Stats
	fmt.Fprintf(w, "\n%d relationships from %d resources (%d candidates, %d duplicates dropped)\n",
		len(resp.Relationships), s.Resources, s.Candidates, s.Duplicates)
	if s.Failures > 0 {
		fmt.Fprintf(w, "%d extractors failed (%d timed out):\n", s.Failures, s.TimedOut)
		for _, f := range result.Failures {
			fmt.Fprintf(w, "  %s [%s] %s: %s\n", f.ResourceID, f.ResourceType, f.Code, f.Message)
		}
	}
	return nil
}

func detail(m *api.RelationshipMetadata) string {
	if m == nil {
		return "-"
	}
	switch {
	case m.SecurityGroups != nil && len(m.SecurityGroups.Rules) > 0:
		r := m.SecurityGroups.Rules[0]
		return fmt.Sprintf("%s %d-%d via %s", r.Protocol, r.FromPort, r.ToPort, r.SecurityGroupID)
	case m.Method != "" || m.Path != "":
		return m.Method + " " + m.Path
	case m.State != "":
		return m.EventType + " " + m.State
	case m.EventType != "":
		return m.EventType
	case m.Port != 0:
		return fmt.Sprintf("%s/%d", m.Protocol, m.Port)
	default:
		return "-"
	}
}

func renderRequest(resp *api.TopologyResponse, showExternal bool, highlight string) api.RenderRequest {
	return api.RenderRequest{
		Resources:             resp.Resources,
		Relationships:         resp.Relationships,
		ExternalResources:     resp.ExternalResources,
		ShowExternalResources: showExternal,
		Highlight:             highlight,
	}
}

// writeRender draws req into path, or into stdout when path is "-".
func writeRender(stdout io.Writer, path string, req api.RenderRequest) error {
	out := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	view, err := render.SVG(out, req, render.Options{})
	if err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %d nodes and %d edges to %s", len(view.Nodes), len(view.Edges), path)
		if view.Empty != "" {
			fmt.Fprintf(os.Stderr, " (%s)", view.Empty)
		}
		fmt.Fprintln(os.Stderr)
	}
	return nil
}
