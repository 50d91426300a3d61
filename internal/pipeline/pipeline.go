// Package pipeline runs the full generation flow: score evidence, build and
// resolve the dependency graph, synthesize resource specs, validate them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"cloudforge/internal/cache"
	"cloudforge/internal/evidence"
	"cloudforge/internal/graph"
	"cloudforge/internal/metrics"
	"cloudforge/internal/recovery"
	"cloudforge/internal/resource"
	"cloudforge/internal/scoring"
	"cloudforge/internal/synth"
	"cloudforge/internal/validate"
)

// Cache policies per layer. Schemas are expensive to fetch and change
// rarely; analysis and validation results are cheap to recompute and keyed
// by evidence fingerprint.
var (
	SchemaCachePolicy     = cache.Policy{MaxEntries: 500, MaxBytes: 50 << 20, TTL: time.Hour}
	AnalysisCachePolicy   = cache.Policy{MaxEntries: 100, MaxBytes: 30 << 20, TTL: 30 * time.Minute}
	ValidationCachePolicy = cache.Policy{MaxEntries: 200, MaxBytes: 20 << 20, TTL: 15 * time.Minute}
)

// Result is the outcome of one pipeline run.
type Result struct {
	Status      recovery.Status
	Fingerprint string

	// Specs in deployment order, paired with Order name-for-name.
	Specs []resource.Spec
	Order []string

	RemovedEdges []graph.RemovedEdge
	Validation   validate.Result
	Errors       []recovery.Record
	Duration     time.Duration
}

// Warnings returns the warning-severity findings of the run.
func (r Result) Warnings() []validate.Finding {
	var warnings []validate.Finding
	for _, finding := range r.Validation.Findings {
		if finding.Severity == validate.SeverityWarning {
			warnings = append(warnings, finding)
		}
	}
	return warnings
}

// Runner wires the pipeline stages together.
type Runner struct {
	logger          zerolog.Logger
	scorer          *scoring.Scorer
	synthesizer     *synth.Synthesizer
	validator       *validate.Pipeline
	analysisCache   *cache.Cache[[]scoring.Dependency]
	validationCache *cache.Cache[validate.Result]
	metrics         *metrics.Metrics
}

// NewRunner constructs a Runner. The metrics collector may be nil.
func NewRunner(
	logger zerolog.Logger,
	scorer *scoring.Scorer,
	synthesizer *synth.Synthesizer,
	validator *validate.Pipeline,
	analysisCache *cache.Cache[[]scoring.Dependency],
	validationCache *cache.Cache[validate.Result],
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		logger:          logger,
		scorer:          scorer,
		synthesizer:     synthesizer,
		validator:       validator,
		analysisCache:   analysisCache,
		validationCache: validationCache,
		metrics:         m,
	}
}

// Run executes the pipeline over one evidence set. Extraction failures from
// the evidence layer degrade the run; structural graph errors and
// cancellation fail it; schema service trouble degrades it. The returned
// result always carries whatever was produced before a failure, and every
// failure the run survived appears in Errors with Recovered set.
func (r *Runner) Run(ctx context.Context, signals []evidence.Signal, failures []evidence.Failure) Result {
	start := time.Now()
	result := Result{Fingerprint: Fingerprint(signals)}
	defer func() {
		result.Duration = time.Since(start)
		r.metrics.ObserveRunDuration(result.Duration)
		r.metrics.IncRunsTotal(string(result.Status))
	}()

	for _, failure := range failures {
		rec := recovery.Classify("evidence", failure.Err)
		rec.Message = failure.Ecosystem + ": " + rec.Message
		rec.Recovered = true
		result.Errors = append(result.Errors, rec)
		r.logger.Warn().
			Str("ecosystem", failure.Ecosystem).
			Str("category", string(rec.Category)).
			Msg("evidence extraction failed, continuing without it")
	}

	deps, err := r.analysisCache.GetOrCompute(ctx, result.Fingerprint, func(context.Context) ([]scoring.Dependency, error) {
		return r.scorer.Score(signals), nil
	})
	if err != nil {
		return r.failed(result, recovery.Classify("analysis", err))
	}
	r.logger.Info().
		Int("signals", len(signals)).
		Int("dependencies", len(deps)).
		Str("fingerprint", result.Fingerprint).
		Msg("evidence scored")

	g, err := graph.Build(deps)
	if err != nil {
		return r.failed(result, recovery.Classify("graph", err))
	}

	result.RemovedEdges = g.Resolve()
	for _, edge := range result.RemovedEdges {
		r.logger.Warn().
			Str("from", edge.From).
			Str("to", edge.To).
			Msg("dependency cycle broken")
	}

	outputs, err := r.synthesizer.SynthesizeAll(ctx, g)
	if err != nil {
		return r.failed(result, recovery.Classify("synthesis", err))
	}

	order, err := g.Order()
	if err != nil {
		return r.failed(result, recovery.Classify("graph", err))
	}
	result.Order = order
	result.Specs = make([]resource.Spec, len(outputs))
	for i, output := range outputs {
		result.Specs[i] = output.Spec
		if output.Schema.Degraded {
			result.Errors = append(result.Errors, recovery.Record{
				Category:          recovery.CategoryMissingSchema,
				Stage:             "synthesis",
				Message:           fmt.Sprintf("%s: bundled fallback schema substituted for %s", output.Spec.LogicalName, output.Spec.Type),
				FallbackAvailable: true,
				Recovered:         true,
			})
		}
	}
	r.metrics.SetResourcesSynthesized(len(result.Specs))

	validationKey := result.Fingerprint + ":" + outputsDigest(outputs)
	validation, err := r.validationCache.GetOrCompute(ctx, validationKey, func(context.Context) (validate.Result, error) {
		inputs := make([]validate.Input, len(outputs))
		for i, output := range outputs {
			inputs[i] = validate.Input{Spec: output.Spec, Schema: output.Schema}
		}
		return r.validator.Validate(inputs), nil
	})
	if err != nil {
		return r.failed(result, recovery.Classify("validation", err))
	}
	result.Validation = withGraphFindings(validation, result.RemovedEdges)

	for severity, count := range result.Validation.CountBySeverity() {
		r.metrics.IncFindings(string(severity), count)
	}

	result.Status = recovery.DeriveStatus(result.Validation, result.Errors)
	r.logger.Info().
		Str("status", string(result.Status)).
		Int("resources", len(result.Specs)).
		Int("findings", len(result.Validation.Findings)).
		Dur("duration", time.Since(start)).
		Msg("pipeline run complete")

	return result
}

func (r *Runner) failed(result Result, record recovery.Record) Result {
	r.logger.Error().
		Str("stage", record.Stage).
		Str("category", string(record.Category)).
		Str("error", record.Message).
		Msg("pipeline run failed")
	result.Errors = append(result.Errors, record)
	result.Status = recovery.StatusFailed
	return result
}

// withGraphFindings adds one warning per broken cycle so reports carry the
// edges that were dropped. Cached validation results stay untouched.
func withGraphFindings(validation validate.Result, removed []graph.RemovedEdge) validate.Result {
	if len(removed) == 0 {
		return validation
	}
	findings := make([]validate.Finding, 0, len(validation.Findings)+len(removed))
	for _, edge := range removed {
		findings = append(findings, validate.Finding{
			Severity: validate.SeverityWarning,
			Stage:    validate.StageGraph,
			Message:  fmt.Sprintf("dependency cycle broken by removing edge %s -> %s", edge.From, edge.To),
			Resource: edge.From,
		})
	}
	findings = append(findings, validation.Findings...)
	return validate.Result{Findings: findings}
}
