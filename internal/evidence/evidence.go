package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Kind classifies how a signal was observed in the project.
type Kind string

const (
	KindConfigKey          Kind = "config-key"
	KindManifestDependency Kind = "manifest-dependency"
	KindImportPattern      Kind = "import-pattern"
	KindConnectionString   Kind = "connection-string"
)

// Signal is one atomic observation suggesting the project uses a service type.
// Signals are immutable: produced by extractors, consumed once by the scorer.
type Signal struct {
	Source      string
	ServiceType string
	Strength    float64
	Kind        Kind
}

// NewSignal validates and constructs a Signal.
func NewSignal(source, serviceType string, strength float64, kind Kind) (Signal, error) {
	if serviceType == "" {
		return Signal{}, errors.New("signal service type must not be empty")
	}
	if strength < 0 || strength > 1 {
		return Signal{}, fmt.Errorf("signal strength %v outside [0,1]", strength)
	}
	switch kind {
	case KindConfigKey, KindManifestDependency, KindImportPattern, KindConnectionString:
	default:
		return Signal{}, fmt.Errorf("unknown signal kind %q", kind)
	}
	return Signal{Source: source, ServiceType: serviceType, Strength: strength, Kind: kind}, nil
}

// Extractor produces raw signals from a project root for one ecosystem.
type Extractor interface {
	Extract(ctx context.Context, projectRoot string) ([]Signal, error)
}

// Failure records an extractor that could not produce evidence.
// Its evidence is dropped; the run continues without it.
type Failure struct {
	Ecosystem string
	Err       error
}

// Registry maps ecosystem identifiers to extractors. The set is fixed once
// per run; an absent ecosystem yields zero evidence, never an error.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register binds an extractor to an ecosystem identifier, replacing any
// previous binding.
func (r *Registry) Register(ecosystem string, extractor Extractor) {
	if ecosystem == "" || extractor == nil {
		return
	}
	r.extractors[ecosystem] = extractor
}

// Lookup returns the extractor for an ecosystem, if one is registered.
func (r *Registry) Lookup(ecosystem string) (Extractor, bool) {
	extractor, ok := r.extractors[ecosystem]
	return extractor, ok
}

// Ecosystems returns registered ecosystem identifiers in stable order.
func (r *Registry) Ecosystems() []string {
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractAll runs every registered extractor against the project root.
// A failing extractor contributes no signals; the failure is reported so
// the caller can record it and continue.
func (r *Registry) ExtractAll(ctx context.Context, projectRoot string) ([]Signal, []Failure) {
	var signals []Signal
	var failures []Failure

	for _, ecosystem := range r.Ecosystems() {
		if err := ctx.Err(); err != nil {
			failures = append(failures, Failure{Ecosystem: ecosystem, Err: err})
			continue
		}
		extracted, err := r.extractors[ecosystem].Extract(ctx, projectRoot)
		if err != nil {
			failures = append(failures, Failure{Ecosystem: ecosystem, Err: err})
			continue
		}
		signals = append(signals, extracted...)
	}

	return signals, failures
}
