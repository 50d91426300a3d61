package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"cloudforge/internal/resource"
	"cloudforge/internal/schema"
)

const maxResourceNameLength = 24

var validNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Input pairs one synthesized spec with the schema it was synthesized from.
type Input struct {
	Spec   resource.Spec
	Schema schema.Schema
}

// Stage is one independently-failable validation check over a single
// template.
type Stage interface {
	Name() string
	Check(input Input) []Finding
}

// Pipeline runs the ordered validation stages over a synthesized set.
// An error finding from the syntax stage halts the remaining stages for that
// resource's template only; other resources continue through every stage.
type Pipeline struct {
	logger zerolog.Logger
	stages []Stage
}

// New constructs the standard pipeline: syntax, schema-conformance, naming,
// security, and optionally a deployment dry-run.
func New(logger zerolog.Logger, enableDryRun bool) *Pipeline {
	stages := []Stage{
		syntaxStage{},
		schemaStage{},
		namingStage{},
		securityStage{},
	}
	p := &Pipeline{logger: logger, stages: stages}
	if enableDryRun {
		p.stages = append(p.stages, dryRunStage{})
	}
	return p
}

// Validate runs all stages over all inputs and aggregates their findings in
// stage order.
func (p *Pipeline) Validate(inputs []Input) Result {
	var result Result
	halted := make(map[string]bool, len(inputs))

	for _, stage := range p.stages {
		for _, input := range inputs {
			name := input.Spec.LogicalName
			if halted[name] {
				continue
			}

			findings := stage.Check(input)
			result.Findings = append(result.Findings, findings...)

			if stage.Name() == StageSyntax && hasError(findings) {
				// A template that does not parse cannot be meaningfully
				// checked further.
				halted[name] = true
				p.logger.Warn().
					Str("resource", name).
					Msg("syntax errors halt remaining validation stages for this template")
			}
		}
	}

	counts := result.CountBySeverity()
	p.logger.Info().
		Int("errors", counts[SeverityError]).
		Int("warnings", counts[SeverityWarning]).
		Int("infos", counts[SeverityInfo]).
		Msg("validation pipeline complete")

	return result
}

func hasError(findings []Finding) bool {
	for _, finding := range findings {
		if finding.Severity == SeverityError {
			return true
		}
	}
	return false
}

type syntaxStage struct{}

func (syntaxStage) Name() string { return StageSyntax }

func (syntaxStage) Check(input Input) []Finding {
	var findings []Finding
	spec := input.Spec

	if spec.LogicalName == "" {
		findings = append(findings, Finding{
			Severity: SeverityError,
			Stage:    StageSyntax,
			Message:  "resource has no logical name",
		})
		return findings
	}
	if spec.Type == "" {
		findings = append(findings, errorFinding(StageSyntax, spec.LogicalName, "resource type is empty"))
	}
	if spec.Region == "" {
		findings = append(findings, errorFinding(StageSyntax, spec.LogicalName, "target region is empty"))
	}
	for key := range spec.Properties {
		if strings.TrimSpace(key) == "" {
			findings = append(findings, errorFinding(StageSyntax, spec.LogicalName, "property with empty key"))
		}
	}
	return findings
}

type schemaStage struct{}

func (schemaStage) Name() string { return StageSchema }

func (schemaStage) Check(input Input) []Finding {
	var findings []Finding
	spec, sch := input.Spec, input.Schema

	if sch.Degraded {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Stage:    StageSchema,
			Message:  "validated against bundled fallback schema; live schema was unavailable",
			Resource: spec.LogicalName,
		})
	}

	for _, required := range sortedRequired(sch) {
		if _, ok := spec.Properties[required]; !ok {
			findings = append(findings, errorFinding(StageSchema, spec.LogicalName,
				fmt.Sprintf("required field %q is missing", required)))
		}
	}

	for _, name := range spec.PropertyNames() {
		if !sch.Allows(name, spec.Properties[name]) {
			findings = append(findings, errorFinding(StageSchema, spec.LogicalName,
				fmt.Sprintf("field %q has disallowed value %q", name, spec.Properties[name])))
		}
	}

	return findings
}

func sortedRequired(sch schema.Schema) []string {
	required := sch.RequiredFields()
	sort.Strings(required)
	return required
}

type namingStage struct{}

func (namingStage) Name() string { return StageNaming }

func (namingStage) Check(input Input) []Finding {
	var findings []Finding
	spec := input.Spec

	if name, ok := spec.Properties["name"]; ok {
		if len(name) > maxResourceNameLength {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Stage:    StageNaming,
				Message:  fmt.Sprintf("name %q exceeds provider limit of %d characters", name, maxResourceNameLength),
				Resource: spec.LogicalName,
			})
		}
		if !validNamePattern.MatchString(name) {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Stage:    StageNaming,
				Message:  fmt.Sprintf("name %q contains characters the provider disallows", name),
				Resource: spec.LogicalName,
			})
		}
	}

	for _, tag := range []string{"environment", "generated-by"} {
		if _, ok := spec.Tags[tag]; !ok {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Stage:    StageNaming,
				Message:  fmt.Sprintf("standard tag %q is missing", tag),
				Resource: spec.LogicalName,
			})
		}
	}

	for _, practice := range input.Schema.BestPractices {
		findings = append(findings, Finding{
			Severity: SeverityInfo,
			Stage:    StageNaming,
			Message:  "best practice: " + practice,
			Resource: spec.LogicalName,
		})
	}

	return findings
}

type securityStage struct{}

func (securityStage) Name() string { return StageSecurity }

// Hardening properties that must hold the given value whenever the schema
// declares the field at all.
var securityPolicy = []struct {
	field string
	want  string
}{
	{"encryptionAtRest", "true"},
	{"supportsHttpsTrafficOnly", "true"},
	{"httpsOnly", "true"},
	{"allowBlobPublicAccess", "false"},
	{"enableNonSslPort", "false"},
}

func (securityStage) Check(input Input) []Finding {
	var findings []Finding
	spec, sch := input.Spec, input.Schema

	for _, rule := range securityPolicy {
		if _, declared := sch.Fields[rule.field]; !declared {
			continue
		}
		value, ok := spec.Properties[rule.field]
		if !ok || value != rule.want {
			findings = append(findings, errorFinding(StageSecurity, spec.LogicalName,
				fmt.Sprintf("security policy requires %s=%s, got %q", rule.field, rule.want, value)))
		}
	}

	if value, ok := spec.Properties["minimumTlsVersion"]; ok && value != "TLS1_2" && value != "TLS1_3" && value != "1.2" && value != "1.3" {
		findings = append(findings, errorFinding(StageSecurity, spec.LogicalName,
			fmt.Sprintf("minimum TLS version %q below policy floor", value)))
	}

	return findings
}

type dryRunStage struct{}

func (dryRunStage) Name() string { return StageDryRun }

// Check performs a structural deployment walk without touching any network:
// the spec must be deployable standalone given its declared dependencies.
func (dryRunStage) Check(input Input) []Finding {
	var findings []Finding
	spec := input.Spec

	seen := make(map[string]bool, len(spec.DependsOn))
	for _, dependency := range spec.DependsOn {
		if dependency == spec.LogicalName {
			findings = append(findings, errorFinding(StageDryRun, spec.LogicalName, "resource depends on itself"))
		}
		if seen[dependency] {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Stage:    StageDryRun,
				Message:  fmt.Sprintf("duplicate dependency declaration %q", dependency),
				Resource: spec.LogicalName,
			})
		}
		seen[dependency] = true
	}

	if len(spec.Properties) == 0 {
		findings = append(findings, errorFinding(StageDryRun, spec.LogicalName, "spec has no properties to deploy"))
	}

	return findings
}

func errorFinding(stage, resourceName, message string) Finding {
	return Finding{
		Severity: SeverityError,
		Stage:    stage,
		Message:  message,
		Resource: resourceName,
	}
}
