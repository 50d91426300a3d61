package resource

import (
	"errors"
	"fmt"
	"sort"
)

// Spec is the structured description of one infrastructure resource to be
// generated. Once built by Finalize it is never mutated.
type Spec struct {
	Type        string
	LogicalName string
	Properties  map[string]string
	SKU         string
	Region      string
	Tags        map[string]string
	DependsOn   []string
}

// PropertyNames returns the spec's property names in stable order.
func (s Spec) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Draft is the immutable analysis-sourced half of a spec. Synthesis merges
// schema-sourced defaults onto a draft to produce the final Spec; the merge
// is append-only and analysis-sourced keys are never overwritten.
type Draft struct {
	resourceType string
	logicalName  string
	properties   map[string]string
	dependsOn    []string
}

// NewDraft captures the analysis-sourced snapshot for one resource.
func NewDraft(resourceType, logicalName string, properties map[string]string, dependsOn []string) (Draft, error) {
	if resourceType == "" {
		return Draft{}, errors.New("draft resource type must not be empty")
	}
	if logicalName == "" {
		return Draft{}, errors.New("draft logical name must not be empty")
	}

	snapshot := make(map[string]string, len(properties))
	for key, value := range properties {
		if key == "" {
			return Draft{}, fmt.Errorf("draft %q: empty property key", logicalName)
		}
		snapshot[key] = value
	}

	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	sort.Strings(deps)

	return Draft{
		resourceType: resourceType,
		logicalName:  logicalName,
		properties:   snapshot,
		dependsOn:    deps,
	}, nil
}

// Type returns the draft's resource type.
func (d Draft) Type() string { return d.resourceType }

// LogicalName returns the draft's logical name.
func (d Draft) LogicalName() string { return d.logicalName }

// DependsOn returns a copy of the declared dependency names.
func (d Draft) DependsOn() []string {
	deps := make([]string, len(d.dependsOn))
	copy(deps, d.dependsOn)
	return deps
}

// Property returns an analysis-sourced property value.
func (d Draft) Property(key string) (string, bool) {
	value, ok := d.properties[key]
	return value, ok
}

// Finalize merges schema-sourced values under the audited rule: a key already
// present in the analysis snapshot keeps its analysis value; schema-sourced
// values only introduce new keys. The result is a fully populated Spec.
func (d Draft) Finalize(schemaProps map[string]string, sku, region string, tags map[string]string) Spec {
	merged := make(map[string]string, len(d.properties)+len(schemaProps))
	for key, value := range d.properties {
		merged[key] = value
	}
	for key, value := range schemaProps {
		if _, exists := merged[key]; exists {
			continue
		}
		merged[key] = value
	}

	tagCopy := make(map[string]string, len(tags))
	for key, value := range tags {
		tagCopy[key] = value
	}

	return Spec{
		Type:        d.resourceType,
		LogicalName: d.logicalName,
		Properties:  merged,
		SKU:         sku,
		Region:      region,
		Tags:        tagCopy,
		DependsOn:   d.DependsOn(),
	}
}
