package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/santoshpalla27/topograph/pkg/api"
)

// FileSource reads an inventory snapshot from a JSON or YAML file. The document is either
// a list of resources or an object with a "resources" list.
type FileSource struct {
	Path string
}

type fileDocument struct {
	Resources []api.Resource `json:"resources" yaml:"resources"`
}

func (f *FileSource) ListResources(ctx context.Context, region string) ([]api.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resources, err := ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if region == "" {
		return resources, nil
	}
	out := make([]api.Resource, 0, len(resources))
	for _, r := range resources {
		if r.Region == region {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReadFile parses a snapshot file, choosing the decoder by extension.
func ReadFile(path string) ([]api.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	resources, err := Decode(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}
	return resources, nil
}

// Decode parses a snapshot document. ext selects YAML for ".yaml"/".yml" and JSON otherwise.
func Decode(data []byte, ext string) ([]api.Resource, error) {
	isYAML := ext == ".yaml" || ext == ".yml"

	var list []api.Resource
	var doc fileDocument
	if isYAML {
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc.Resources, nil
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Resources, nil
}
