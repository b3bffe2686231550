package inventory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/santoshpalla27/topograph/pkg/api"
)

// PostgresSource reads resources from a table shaped as
//
//	resources(id text primary key, type text, name text, status text, application text,
//	          region text, tags jsonb, security_groups text[], cluster_id text, details jsonb)
type PostgresSource struct {
	db    *sql.DB
	table string
}

// NewPostgresSource opens a connection pool with the lib/pq driver.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return &PostgresSource{db: db, table: "resources"}, nil
}

// NewPostgresSourceFromDB wraps an existing pool reading from table.
func NewPostgresSourceFromDB(db *sql.DB, table string) *PostgresSource {
	if table == "" {
		table = "resources"
	}
	return &PostgresSource{db: db, table: table}
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}

func (s *PostgresSource) ListResources(ctx context.Context, region string) ([]api.Resource, error) {
	query := fmt.Sprintf(`
		SELECT id, type, name, status, application, region, tags, security_groups, cluster_id, details
		FROM %s
		WHERE ($1 = '' OR region = $1)
		ORDER BY id
	`, pq.QuoteIdentifier(s.table))

	rows, err := s.db.QueryContext(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []api.Resource
	for rows.Next() {
		var (
			r           api.Resource
			name        sql.NullString
			application sql.NullString
			clusterID   sql.NullString
			tags        jsonColumn
			details     jsonColumn
			groups      []string
		)
		if err := rows.Scan(
			&r.ID, &r.Type, &name, &r.Status, &application, &r.Region,
			&tags, pq.Array(&groups), &clusterID, &details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.Name = name.String
		r.Application = application.String
		r.ClusterID = clusterID.String
		r.SecurityGroups = groups
		r.Tags = tags.strings()
		r.Details = map[string]any(details)
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	return resources, nil
}

// jsonColumn scans a nullable jsonb object.
type jsonColumn map[string]any

func (j jsonColumn) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *jsonColumn) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	if len(data) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(data, j)
}

// strings keeps the string-valued entries, the shape resource tags take.
func (j jsonColumn) strings() map[string]string {
	if len(j) == 0 {
		return nil
	}
	out := make(map[string]string, len(j))
	for k, v := range j {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
