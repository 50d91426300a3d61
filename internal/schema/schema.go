package schema

// Field describes one schema property: whether it must be set, the values it
// may take, and the default applied when policy requires it.
type Field struct {
	Required bool     `json:"required" yaml:"required"`
	Allowed  []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Default  string   `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema is the field-level contract for one resource type at one version.
// Degraded marks a locally bundled fallback used when the schema service was
// unreachable; downstream stages treat it as a warning signal, not a failure.
type Schema struct {
	ResourceType  string           `json:"resourceType" yaml:"resourceType"`
	Version       string           `json:"version" yaml:"version"`
	Fields        map[string]Field `json:"fields" yaml:"fields"`
	BestPractices []string         `json:"bestPractices,omitempty" yaml:"bestPractices,omitempty"`
	// Degraded is persisted across warm starts so a cached fallback keeps
	// producing its warning until the real schema is fetched.
	Degraded bool `json:"degraded,omitempty" yaml:"-"`
}

// RequiredFields returns the names of all required fields.
func (s Schema) RequiredFields() []string {
	var names []string
	for name, field := range s.Fields {
		if field.Required {
			names = append(names, name)
		}
	}
	return names
}

// Allows reports whether value is permitted for the named field. Fields
// without an allowed-value list accept anything.
func (s Schema) Allows(field, value string) bool {
	spec, ok := s.Fields[field]
	if !ok || len(spec.Allowed) == 0 {
		return true
	}
	for _, allowed := range spec.Allowed {
		if allowed == value {
			return true
		}
	}
	return false
}

// EstimateSize approximates the in-memory footprint of a schema for cache
// byte accounting.
func EstimateSize(s Schema) int64 {
	size := int64(len(s.ResourceType) + len(s.Version))
	for name, field := range s.Fields {
		size += int64(len(name) + len(field.Default) + 8)
		for _, allowed := range field.Allowed {
			size += int64(len(allowed))
		}
	}
	for _, practice := range s.BestPractices {
		size += int64(len(practice))
	}
	return size
}
