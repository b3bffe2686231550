package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshpalla27/topograph/internal/discovery"
	"github.com/santoshpalla27/topograph/internal/metrics"
	"github.com/santoshpalla27/topograph/pkg/api"
	topoerrors "github.com/santoshpalla27/topograph/pkg/errors"
)

type fakeTopology struct {
	resp  *api.TopologyResponse
	err   error
	apps  []string
	query []string
}

func (f *fakeTopology) Query(ctx context.Context, application string) (*api.TopologyResponse, *discovery.Result, error) {
	f.query = append(f.query, application)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.resp, &discovery.Result{RunID: "run-1", Relationships: f.resp.Relationships}, nil
}

func (f *fakeTopology) ListApplications(ctx context.Context) ([]string, error) {
	return f.apps, f.err
}

func ordersTopology() *fakeTopology {
	return &fakeTopology{
		apps: []string{"orders", "payments"},
		resp: &api.TopologyResponse{
			Resources: []api.Resource{
				{ID: "fn-orders", Type: api.ResourceTypeLambda, Name: "orders", Application: "orders"},
				{ID: "tbl-orders", Type: api.ResourceTypeDynamoDB, Name: "orders-table", Application: "orders"},
			},
			ExternalResources: []api.Resource{
				{ID: "db-pay", Type: api.ResourceTypeRDS, Name: "payments-db", Application: "payments"},
			},
			Relationships: []api.Relationship{
				{SourceID: "fn-orders", TargetID: "tbl-orders", Type: api.RelDependsOn},
				{SourceID: "fn-orders", TargetID: "db-pay", Type: api.RelDependsOn},
			},
		},
	}
}

func newTestServer(topo Topology, cfg *Config) (*Server, *metrics.Collector) {
	collector := metrics.NewCollector()
	return New(topo, collector, cfg, zerolog.Nop()), collector
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(ordersTopology(), nil)
	rec := do(t, srv.Router(), http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "topograph", body["service"])

	rec = do(t, srv.Router(), http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTopology(t *testing.T) {
	topo := ordersTopology()
	srv, _ := newTestServer(topo, nil)

	rec := do(t, srv.Router(), http.MethodGet, "/api/v1/topology?application=orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "run-1", rec.Header().Get("X-Topograph-Run-ID"))
	assert.Equal(t, []string{"orders"}, topo.query)

	var resp api.TopologyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Resources, 2)
	assert.Len(t, resp.ExternalResources, 1)
	assert.Len(t, resp.Relationships, 2)
}

func TestTopology_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{
			name: "inventory unavailable",
			err:  topoerrors.NewInventoryUnavailableError(errors.New("eu-west-1: denied")),
			want: http.StatusServiceUnavailable,
			code: topoerrors.ErrCodeInventoryUnavailable,
		},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(&fakeTopology{err: tt.err}, nil)
			rec := do(t, srv.Router(), http.MethodGet, "/api/v1/topology", "", nil)
			assert.Equal(t, tt.want, rec.Code)

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestApplications(t *testing.T) {
	srv, _ := newTestServer(ordersTopology(), nil)
	rec := do(t, srv.Router(), http.MethodGet, "/api/v1/applications", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"applications":["orders","payments"]}`, rec.Body.String())
}

func TestTopologyRender(t *testing.T) {
	srv, _ := newTestServer(ordersTopology(), nil)

	rec := do(t, srv.Router(), http.MethodGet, "/api/v1/topology/render?application=orders&highlight=tbl-orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0", rec.Header().Get("X-Topograph-Hidden-Edges"))
	assert.Contains(t, rec.Body.String(), `data-id="db-pay"`)
	assert.Contains(t, rec.Body.String(), `opacity="0.15"`)

	rec = do(t, srv.Router(), http.MethodGet, "/api/v1/topology/render?application=orders&external=false", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Topograph-Hidden-Edges"))
	assert.NotContains(t, rec.Body.String(), `data-id="db-pay"`)

	rec = do(t, srv.Router(), http.MethodGet, "/api/v1/topology/render?external=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorCode(t, rec, topoerrors.ErrCodeInvalidRequest)
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, code string) {
	t.Helper()
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, code, body.Code)
}

func TestRender(t *testing.T) {
	srv, _ := newTestServer(ordersTopology(), nil)

	rec := do(t, srv.Router(), http.MethodPost, "/api/v1/render", `{"resources":[],"relationships":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No resources to display")

	body := `{"resources":[{"id":"R1","type":"ec2","name":"R1"},{"id":"R2","type":"rds","name":"R2"}],
		"relationships":[{"sourceId":"R1","targetId":"R2","type":"connects_to"},{"sourceId":"R1","targetId":"ghost","type":"depends_on"}]}`
	rec = do(t, srv.Router(), http.MethodPost, "/api/v1/render", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Topograph-Dropped-Edges"))
	assert.Contains(t, rec.Body.String(), `marker-end="url(#arrow-connects_to)"`)

	rec = do(t, srv.Router(), http.MethodPost, "/api/v1/render", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertErrorCode(t, rec, topoerrors.ErrCodeInvalidRequest)
}

func TestAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	srv, _ := newTestServer(ordersTopology(), cfg)

	rec := do(t, srv.Router(), http.MethodGet, "/api/v1/applications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv.Router(), http.MethodGet, "/api/v1/applications", "", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.Router(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind the key")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(ordersTopology(), nil)
	router := srv.Router()

	do(t, router, http.MethodGet, "/api/v1/applications", "", nil)
	rec := do(t, router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `topograph_http_requests_total{route="/api/v1/applications",status="200"} 1`)
}
