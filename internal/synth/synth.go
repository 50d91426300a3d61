package synth

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cloudforge/internal/graph"
	"cloudforge/internal/resource"
	"cloudforge/internal/schema"
)

// Output pairs one synthesized spec with the schema it was built from, ready
// for validation.
type Output struct {
	Spec   resource.Spec
	Schema schema.Schema
}

// Gateway is the slice of the schema gateway synthesis needs.
type Gateway interface {
	GetSchema(ctx context.Context, resourceType, version string) (schema.Schema, error)
}

// Synthesizer maps graph nodes plus their resolved schemas into fully
// populated resource specs.
type Synthesizer struct {
	logger        zerolog.Logger
	gateway       Gateway
	policy        Policy
	maxInFlight   int
	analysisProps map[string]map[string]string
}

// Option customizes synthesizer behavior.
type Option func(*Synthesizer)

// WithMaxInFlight bounds concurrent schema lookups to respect the external
// service's rate limits.
func WithMaxInFlight(limit int) Option {
	return func(s *Synthesizer) {
		if limit > 0 {
			s.maxInFlight = limit
		}
	}
}

// WithAnalysisProperties seeds analysis-sourced properties per logical name.
// These are the sparse starting properties the schema merge never overwrites.
func WithAnalysisProperties(props map[string]map[string]string) Option {
	return func(s *Synthesizer) {
		s.analysisProps = props
	}
}

// New constructs a Synthesizer.
func New(logger zerolog.Logger, gateway Gateway, policy Policy, opts ...Option) *Synthesizer {
	if policy.Now == nil {
		policy.Now = DefaultPolicy(policy.Region, policy.Environment).Now
	}
	s := &Synthesizer{
		logger:      logger,
		gateway:     gateway,
		policy:      policy,
		maxInFlight: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SynthesizeAll synthesizes every node of the graph, fanning schema lookups
// out concurrently under the in-flight limit. Each synthesis enriches only
// the node it owns. The returned outputs follow the graph's deployment
// order; degraded schemas surface through Output.Schema for the validator.
// Only context cancellation produces an error.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, g *graph.Graph) ([]Output, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	names := assignNames(g.Names())
	outputs := make([]Output, len(order))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxInFlight)

	for i, logical := range order {
		node, ok := g.Node(logical)
		if !ok {
			return nil, fmt.Errorf("synthesize: node %q missing from graph", logical)
		}
		i, logical, node := i, logical, node
		group.Go(func() error {
			output, err := s.synthesizeNode(groupCtx, node, names[logical])
			if err != nil {
				return err
			}
			outputs[i] = output
			node.Spec = &outputs[i].Spec
			return nil
		})
	}

	// Validation never starts until every node has completed or the run
	// is aborted.
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return outputs, nil
}

func (s *Synthesizer) synthesizeNode(ctx context.Context, node *graph.Node, normalized string) (Output, error) {
	resourceType := ResourceType(node.ServiceType)

	sch, err := s.gateway.GetSchema(ctx, resourceType, "")
	if err != nil {
		return Output{}, fmt.Errorf("schema for %s: %w", node.Name, err)
	}
	if sch.Degraded {
		s.logger.Warn().
			Str("resource", node.Name).
			Str("resource_type", resourceType).
			Msg("synthesizing against bundled fallback schema")
	}

	draft, err := resource.NewDraft(resourceType, node.Name, s.analysisProps[node.Name], node.DependsOn)
	if err != nil {
		return Output{}, err
	}

	schemaProps := s.schemaProperties(sch, normalized)
	sku := s.resolveSKU(draft, sch, resourceType, schemaProps)

	spec := draft.Finalize(schemaProps, sku, s.policy.Region, s.policy.tags())

	s.logger.Debug().
		Str("resource", node.Name).
		Str("resource_type", resourceType).
		Int("properties", len(spec.Properties)).
		Bool("degraded", sch.Degraded).
		Msg("synthesized resource spec")

	return Output{Spec: spec, Schema: sch}, nil
}

// schemaProperties computes the schema-sourced property layer: required
// fields take their schema default, hardening fields take the policy value
// whenever the schema declares them, and name/location are always populated.
func (s *Synthesizer) schemaProperties(sch schema.Schema, normalized string) map[string]string {
	props := map[string]string{
		"name":     normalized,
		"location": s.policy.Region,
	}

	fieldNames := make([]string, 0, len(sch.Fields))
	for name := range sch.Fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	for _, name := range fieldNames {
		field := sch.Fields[name]
		if hardened, ok := hardeningDefaults[name]; ok {
			props[name] = hardened
			continue
		}
		if field.Required && field.Default != "" {
			props[name] = field.Default
		}
	}

	return props
}

func (s *Synthesizer) resolveSKU(draft resource.Draft, sch schema.Schema, resourceType string, schemaProps map[string]string) string {
	if sku, ok := draft.Property("skuName"); ok {
		return sku
	}
	if sku, ok := schemaProps["skuName"]; ok {
		return sku
	}
	if sku, ok := minimumSKU[resourceType]; ok {
		if _, declared := sch.Fields["skuName"]; declared {
			schemaProps["skuName"] = sku
		}
		return sku
	}
	return ""
}
