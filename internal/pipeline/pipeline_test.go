package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cloudforge/internal/cache"
	"cloudforge/internal/evidence"
	"cloudforge/internal/recovery"
	"cloudforge/internal/schema"
	"cloudforge/internal/scoring"
	"cloudforge/internal/synth"
	"cloudforge/internal/validate"
)

type stubGateway struct {
	mu       sync.Mutex
	calls    int
	degraded bool
	blockCtx bool
}

func (s *stubGateway) GetSchema(ctx context.Context, resourceType, version string) (schema.Schema, error) {
	if s.blockCtx {
		<-ctx.Done()
		return schema.Schema{}, ctx.Err()
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return schema.Schema{
		ResourceType: resourceType,
		Version:      "2023-01-01",
		Fields: map[string]schema.Field{
			"name":     {Required: true},
			"location": {Required: true},
		},
		Degraded: s.degraded,
	}, nil
}

func newRunner(t *testing.T, gw synth.Gateway, scorerOpts ...scoring.Option) *Runner {
	t.Helper()
	policy := synth.Policy{
		Region:      "eastus2",
		Environment: "dev",
		Now:         func() time.Time { return time.Unix(100, 0).UTC() },
	}
	return NewRunner(
		zerolog.Nop(),
		scoring.NewScorer(0.5, scorerOpts...),
		synth.New(zerolog.Nop(), gw, policy),
		validate.New(zerolog.Nop(), false),
		cache.New[[]scoring.Dependency](AnalysisCachePolicy),
		cache.New[validate.Result](ValidationCachePolicy),
		nil,
	)
}

func dbAndStorageSignals() []evidence.Signal {
	return []evidence.Signal{
		{Source: ".env", ServiceType: "database", Strength: 0.9, Kind: evidence.KindConnectionString},
		{Source: "compose.yml", ServiceType: "storage", Strength: 0.9, Kind: evidence.KindManifestDependency},
	}
}

func TestRun_Succeeds(t *testing.T) {
	runner := newRunner(t, &stubGateway{})
	result := runner.Run(context.Background(), dbAndStorageSignals(), nil)

	if result.Status != recovery.StatusSucceeded {
		t.Fatalf("status = %s, findings: %+v, errors: %+v", result.Status, result.Validation.Findings, result.Errors)
	}
	if len(result.Specs) != len(result.Order) {
		t.Fatalf("specs and order out of step: %d vs %d", len(result.Specs), len(result.Order))
	}
	for i, name := range result.Order {
		if result.Specs[i].LogicalName != name {
			t.Fatalf("spec %d is %q, order says %q", i, result.Specs[i].LogicalName, name)
		}
	}

	// database implies keyvault, which must deploy before it.
	positions := make(map[string]int, len(result.Order))
	for i, name := range result.Order {
		positions[name] = i
	}
	kv, okKV := positions["keyvault"]
	db, okDB := positions["database"]
	if !okKV || !okDB {
		t.Fatalf("expected keyvault and database in order, got %v", result.Order)
	}
	if kv > db {
		t.Fatalf("keyvault deploys at %d, after database at %d", kv, db)
	}
}

func TestRun_ThresholdDropsWeakEvidence(t *testing.T) {
	runner := newRunner(t, &stubGateway{})
	weak := []evidence.Signal{
		{Source: "app.py", ServiceType: "search", Strength: 0.3, Kind: evidence.KindImportPattern},
	}
	result := runner.Run(context.Background(), weak, nil)

	if result.Status != recovery.StatusSucceeded {
		t.Fatalf("status = %s", result.Status)
	}
	if len(result.Specs) != 0 {
		t.Fatalf("weak evidence should synthesize nothing, got %v", result.Order)
	}
}

func TestRun_BreaksCyclesWithWarning(t *testing.T) {
	implied := map[string][]string{
		"cache":   {"storage"},
		"storage": {"cache"},
	}
	runner := newRunner(t, &stubGateway{}, scoring.WithImpliedServices(implied))
	signals := []evidence.Signal{
		{Source: "compose.yml", ServiceType: "cache", Strength: 0.9, Kind: evidence.KindManifestDependency},
		{Source: "compose.yml", ServiceType: "storage", Strength: 0.9, Kind: evidence.KindManifestDependency},
	}

	result := runner.Run(context.Background(), signals, nil)

	if result.Status != recovery.StatusSucceededWithWarnings {
		t.Fatalf("status = %s, findings: %+v", result.Status, result.Validation.Findings)
	}
	if len(result.RemovedEdges) != 1 {
		t.Fatalf("expected 1 removed edge, got %v", result.RemovedEdges)
	}
	var graphWarning bool
	for _, finding := range result.Validation.Findings {
		if finding.Stage == validate.StageGraph && finding.Severity == validate.SeverityWarning {
			graphWarning = true
		}
	}
	if !graphWarning {
		t.Fatalf("expected a graph-stage warning, got %+v", result.Validation.Findings)
	}
	if len(result.Order) != 2 {
		t.Fatalf("both resources should still deploy, got %v", result.Order)
	}
}

func TestRun_DegradedSchemaDegradesStatus(t *testing.T) {
	runner := newRunner(t, &stubGateway{degraded: true})
	result := runner.Run(context.Background(), dbAndStorageSignals(), nil)

	if result.Status != recovery.StatusSucceededWithWarnings {
		t.Fatalf("status = %s, findings: %+v", result.Status, result.Validation.Findings)
	}
	counts := result.Validation.CountBySeverity()
	if counts[validate.SeverityError] != 0 {
		t.Fatalf("degraded schemas must not produce errors: %+v", result.Validation.Findings)
	}
	if counts[validate.SeverityWarning] != len(result.Specs) {
		t.Fatalf("expected one warning per resource, got %d for %d resources",
			counts[validate.SeverityWarning], len(result.Specs))
	}

	// Every fallback substitution leaves a recovered record behind.
	if len(result.Errors) != len(result.Specs) {
		t.Fatalf("expected one recovered record per degraded resource, got %+v", result.Errors)
	}
	for _, rec := range result.Errors {
		if !rec.Recovered {
			t.Fatalf("degraded-schema record must be recovered: %+v", rec)
		}
		if rec.Category != recovery.CategoryMissingSchema {
			t.Fatalf("category = %s, want missing-schema", rec.Category)
		}
		if !rec.FallbackAvailable {
			t.Fatalf("fallback substitution must report FallbackAvailable: %+v", rec)
		}
	}
}

func TestRun_ExtractionFailuresSurfaceAsRecovered(t *testing.T) {
	runner := newRunner(t, &stubGateway{})
	failures := []evidence.Failure{
		{Ecosystem: "compose", Err: errors.New("compose.yml: yaml: line 3: mapping values are not allowed")},
	}

	result := runner.Run(context.Background(), dbAndStorageSignals(), failures)

	if result.Status != recovery.StatusSucceededWithWarnings {
		t.Fatalf("status = %s, want succeeded-with-warnings", result.Status)
	}
	if len(result.Specs) == 0 {
		t.Fatalf("remaining evidence should still synthesize resources")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error record, got %+v", result.Errors)
	}
	rec := result.Errors[0]
	if !rec.Recovered {
		t.Fatalf("extraction failure must be recorded as recovered: %+v", rec)
	}
	if rec.Stage != "evidence" {
		t.Fatalf("stage = %s, want evidence", rec.Stage)
	}
	if !strings.HasPrefix(rec.Message, "compose:") {
		t.Fatalf("record should name the ecosystem: %q", rec.Message)
	}
}

func TestRun_ValidationNotReusedAcrossDegradation(t *testing.T) {
	gw := &stubGateway{degraded: true}
	runner := newRunner(t, gw)
	signals := dbAndStorageSignals()

	first := runner.Run(context.Background(), signals, nil)
	if first.Status != recovery.StatusSucceededWithWarnings {
		t.Fatalf("degraded run status = %s", first.Status)
	}

	// The schema service comes back; the same evidence must be revalidated.
	gw.degraded = false
	second := runner.Run(context.Background(), signals, nil)

	if second.Status != recovery.StatusSucceeded {
		t.Fatalf("recovered run status = %s, findings: %+v", second.Status, second.Validation.Findings)
	}
	if second.Validation.HasWarnings() {
		t.Fatalf("recovered run reused stale degraded findings: %+v", second.Validation.Findings)
	}
	if len(second.Errors) != 0 {
		t.Fatalf("recovered run should carry no records, got %+v", second.Errors)
	}
}

func TestRun_CancellationFails(t *testing.T) {
	runner := newRunner(t, &stubGateway{blockCtx: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := runner.Run(ctx, dbAndStorageSignals(), nil)

	if result.Status != recovery.StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error record, got %+v", result.Errors)
	}
	if result.Errors[0].Category != recovery.CategoryAborted {
		t.Fatalf("category = %s, want aborted", result.Errors[0].Category)
	}
}

func TestRun_CachesAnalysisAndValidationByFingerprint(t *testing.T) {
	runner := newRunner(t, &stubGateway{})
	signals := dbAndStorageSignals()

	first := runner.Run(context.Background(), signals, nil)
	second := runner.Run(context.Background(), signals, nil)

	if first.Fingerprint != second.Fingerprint {
		t.Fatalf("same evidence produced different fingerprints")
	}
	if runner.analysisCache.Stats().Hits == 0 {
		t.Fatalf("second run should hit the analysis cache")
	}
	if runner.validationCache.Stats().Hits == 0 {
		t.Fatalf("second run should hit the validation cache")
	}
	if second.Status != first.Status {
		t.Fatalf("cached run changed status: %s vs %s", second.Status, first.Status)
	}
}
