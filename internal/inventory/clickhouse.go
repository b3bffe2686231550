package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/santoshpalla27/topograph/pkg/api"
)

// ClickHouseConfig holds connection settings for the inventory snapshot table.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
	Debug    bool
}

// DefaultClickHouseConfig returns development settings.
func DefaultClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		Addr:     "localhost:9000",
		Database: "topograph",
		Username: "default",
		Table:    "resources",
	}
}

// ClickHouseSource reads the latest inventory snapshot from a ReplacingMergeTree table:
//
//	resources(id String, type LowCardinality(String), name String, status LowCardinality(String),
//	          application String, region LowCardinality(String), tags Map(String, String),
//	          security_groups Array(String), cluster_id String, details String, _deleted UInt8)
type ClickHouseSource struct {
	conn  clickhouse.Conn
	table string
}

// NewClickHouseSource opens a native-protocol connection.
func NewClickHouseSource(cfg *ClickHouseConfig) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "resources"
	}
	return &ClickHouseSource{conn: conn, table: table}, nil
}

func (s *ClickHouseSource) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *ClickHouseSource) Close() error {
	return s.conn.Close()
}

type clickhouseRow struct {
	ID             string            `ch:"id"`
	Type           string            `ch:"type"`
	Name           string            `ch:"name"`
	Status         string            `ch:"status"`
	Application    string            `ch:"application"`
	Region         string            `ch:"region"`
	Tags           map[string]string `ch:"tags"`
	SecurityGroups []string          `ch:"security_groups"`
	ClusterID      string            `ch:"cluster_id"`
	Details        string            `ch:"details"`
}

func (s *ClickHouseSource) ListResources(ctx context.Context, region string) ([]api.Resource, error) {
	query := fmt.Sprintf(`
		SELECT id, type, name, status, application, region, tags, security_groups, cluster_id, details
		FROM %s FINAL
		WHERE (? = '' OR region = ?) AND _deleted = 0
		ORDER BY id
	`, quoteIdentifier(s.table))

	var rows []clickhouseRow
	if err := s.conn.Select(ctx, &rows, query, region, region); err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}

	resources := make([]api.Resource, 0, len(rows))
	for _, row := range rows {
		r, err := row.resource()
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, nil
}

func (row clickhouseRow) resource() (api.Resource, error) {
	r := api.Resource{
		ID:             row.ID,
		Type:           api.ResourceType(row.Type),
		Name:           row.Name,
		Status:         api.ResourceStatus(row.Status),
		Application:    row.Application,
		Region:         row.Region,
		SecurityGroups: row.SecurityGroups,
		ClusterID:      row.ClusterID,
	}
	if len(row.Tags) > 0 {
		r.Tags = row.Tags
	}
	if len(r.SecurityGroups) == 0 {
		r.SecurityGroups = nil
	}
	if row.Details != "" {
		if err := json.Unmarshal([]byte(row.Details), &r.Details); err != nil {
			return api.Resource{}, fmt.Errorf("failed to decode details of %s: %w", row.ID, err)
		}
	}
	return r, nil
}

func quoteIdentifier(name string) string {
	out := []byte{'`'}
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}
	return string(append(out, '`'))
}
