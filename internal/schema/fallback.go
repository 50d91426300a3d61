package schema

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type fallbackFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadFallbacks parses the bundled minimal schemas used when the schema
// service is unreachable, keyed by resource type.
func LoadFallbacks() (map[string]Schema, error) {
	var file fallbackFile
	if err := yaml.Unmarshal(fallbackYAML, &file); err != nil {
		return nil, fmt.Errorf("parse bundled schemas: %w", err)
	}

	fallbacks := make(map[string]Schema, len(file.Schemas))
	for _, s := range file.Schemas {
		if s.ResourceType == "" {
			return nil, fmt.Errorf("bundled schema missing resource type")
		}
		s.Degraded = true
		fallbacks[s.ResourceType] = s
	}
	return fallbacks, nil
}

// Fallback returns the bundled schema for a resource type, or a minimal
// empty schema when the type is unknown. Both are marked degraded.
func Fallback(fallbacks map[string]Schema, resourceType, version string) Schema {
	if s, ok := fallbacks[resourceType]; ok {
		return s
	}
	return Schema{
		ResourceType: resourceType,
		Version:      version,
		Fields: map[string]Field{
			"name":     {Required: true},
			"location": {Required: true},
		},
		Degraded: true,
	}
}
