package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshpalla27/topograph/pkg/api"
)

const (
	fleetFixture   = "../../internal/discovery/testdata/fleet.yaml"
	lookupsFixture = "../../internal/discovery/testdata/lookups.yaml"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	base := []string{"topograph", "--log-level", "error", "--fixtures", lookupsFixture, "--inventory", fleetFixture}
	err := app.Run(append(base, args...))
	return out.String(), err
}

func TestDiscover_JSON(t *testing.T) {
	out, err := run(t, "discover", "--format", "json")
	require.NoError(t, err)

	var got discoverOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.RunID)
	assert.Len(t, got.Resources, 12)
	assert.Empty(t, got.ExternalResources)
	assert.Len(t, got.Relationships, 12)
	assert.Equal(t, 6, got.Stats.Duplicates)
	for _, e := range got.Relationships {
		assert.NotEqual(t, e.SourceID, e.TargetID)
	}
}

func TestDiscover_ApplicationTable(t *testing.T) {
	out, err := run(t, "discover", "--application", "orders")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "SOURCE"))
	assert.Contains(t, out, "5 relationships from 12 resources")
}

func TestDiscover_UnknownFormat(t *testing.T) {
	_, err := run(t, "discover", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestDiscover_MissingInventory(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"topograph", "--log-level", "error", "discover"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--inventory is required")
}

func TestDiscover_UnknownBackend(t *testing.T) {
	_, err := run(t, "--inventory-backend", "etcd", "discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inventory backend")
}

func TestRender_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.svg")
	_, err := run(t, "render", "--application", "payments", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<svg "))
	assert.Contains(t, string(data), `class="node external"`)
}

func TestRender_Stdout(t *testing.T) {
	out, err := run(t, "render", "--application", "nothing-here", "--no-external", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "No resources to display")
}

func TestDetail(t *testing.T) {
	tests := []struct {
		name string
		meta *api.RelationshipMetadata
		want string
	}{
		{name: "nil", meta: nil, want: "-"},
		{name: "port", meta: &api.RelationshipMetadata{Protocol: "HTTPS", Port: 443}, want: "HTTPS/443"},
		{name: "route", meta: &api.RelationshipMetadata{Method: "GET", Path: "/orders"}, want: "GET /orders"},
		{name: "state", meta: &api.RelationshipMetadata{EventType: "states:Task", State: "Ship"}, want: "states:Task Ship"},
		{name: "event", meta: &api.RelationshipMetadata{EventType: "events.amazonaws.com"}, want: "events.amazonaws.com"},
		{
			name: "security group",
			meta: &api.RelationshipMetadata{Protocol: "tcp", Port: 5432, SecurityGroups: &api.SecurityGroupMetadata{
				Rules: []api.SecurityGroupRuleRef{{Protocol: "tcp", FromPort: 5432, ToPort: 5432, SecurityGroupID: "sg-0db"}},
			}},
			want: "tcp 5432-5432 via sg-0db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detail(tt.meta))
		})
	}
}
