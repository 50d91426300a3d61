package scoring

import (
	"sort"

	"cloudforge/internal/evidence"
)

// Default weights by signal kind. Connection strings and manifest entries are
// near-certain; free-text import patterns corroborate but rarely prove.
var defaultKindWeights = map[evidence.Kind]float64{
	evidence.KindConnectionString:   1.0,
	evidence.KindManifestDependency: 0.9,
	evidence.KindConfigKey:          0.6,
	evidence.KindImportPattern:      0.4,
}

// Rule table of service types implied by a detected service type. Implied
// services are added to the result when evidence alone did not surface them.
var defaultImpliedServices = map[string][]string{
	"webapp":   {"appservice-plan"},
	"database": {"keyvault"},
	"storage":  {},
	"cache":    {},
	"queue":    {},
	"search":   {},
}

// Dependency is one scored service dependency claim. Immutable: re-scoring
// produces new values.
type Dependency struct {
	ServiceType   string
	Confidence    float64
	Evidence      []evidence.Signal
	SuggestedName string
	DependsOn     []string
}

// Scorer aggregates raw evidence signals into ranked service dependencies.
type Scorer struct {
	kindWeights  map[evidence.Kind]float64
	implied      map[string][]string
	minThreshold float64
}

// Option customizes scorer behavior.
type Option func(*Scorer)

// WithKindWeights overrides the per-kind signal weights.
func WithKindWeights(weights map[evidence.Kind]float64) Option {
	return func(s *Scorer) {
		s.kindWeights = weights
	}
}

// WithImpliedServices overrides the implied-service rule table.
func WithImpliedServices(implied map[string][]string) Option {
	return func(s *Scorer) {
		s.implied = implied
	}
}

// NewScorer constructs a Scorer that drops dependencies scoring below
// minThreshold.
func NewScorer(minThreshold float64, opts ...Option) *Scorer {
	s := &Scorer{
		kindWeights:  defaultKindWeights,
		implied:      defaultImpliedServices,
		minThreshold: minThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score groups signals by claimed service type and combines strengths with a
// saturating weighted sum: confidence = 1 - prod(1 - weight_i * strength_i).
// Multiple weak signals corroborate without the score exceeding 1. Groups
// below the threshold are dropped entirely. The result is ordered by
// confidence descending, ties broken by service type name ascending.
func (s *Scorer) Score(signals []evidence.Signal) []Dependency {
	groups := make(map[string][]evidence.Signal)
	for _, signal := range signals {
		groups[signal.ServiceType] = append(groups[signal.ServiceType], signal)
	}

	deps := make([]Dependency, 0, len(groups))
	for serviceType, group := range groups {
		confidence := s.combine(group)
		if confidence < s.minThreshold {
			continue
		}
		supporting := make([]evidence.Signal, len(group))
		copy(supporting, group)
		deps = append(deps, Dependency{
			ServiceType:   serviceType,
			Confidence:    confidence,
			Evidence:      supporting,
			SuggestedName: serviceType,
			DependsOn:     s.declaredDependencies(serviceType),
		})
	}

	deps = s.addImpliedDependencies(deps)

	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Confidence != deps[j].Confidence {
			return deps[i].Confidence > deps[j].Confidence
		}
		return deps[i].ServiceType < deps[j].ServiceType
	})

	return deps
}

func (s *Scorer) combine(group []evidence.Signal) float64 {
	remainder := 1.0
	for _, signal := range group {
		weight := s.kindWeights[signal.Kind]
		remainder *= 1 - weight*signal.Strength
	}
	confidence := 1 - remainder
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func (s *Scorer) declaredDependencies(serviceType string) []string {
	implied := s.implied[serviceType]
	if len(implied) == 0 {
		return nil
	}
	names := make([]string, len(implied))
	copy(names, implied)
	sort.Strings(names)
	return names
}

// addImpliedDependencies appends rule-table targets that evidence did not
// surface, inheriting the confidence of the strongest dependent. A declared
// name with no node is otherwise a structural error at graph construction.
func (s *Scorer) addImpliedDependencies(deps []Dependency) []Dependency {
	present := make(map[string]bool, len(deps))
	for _, dep := range deps {
		present[dep.ServiceType] = true
	}

	for _, dep := range deps {
		for _, implied := range dep.DependsOn {
			if present[implied] {
				continue
			}
			present[implied] = true
			deps = append(deps, Dependency{
				ServiceType:   implied,
				Confidence:    dep.Confidence,
				SuggestedName: implied,
				DependsOn:     s.declaredDependencies(implied),
			})
		}
	}

	return deps
}
