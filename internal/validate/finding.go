package validate

// Severity ranks a finding. Only error findings fail a run; warnings and
// infos never halt the pipeline.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Validation stage names, in pipeline order.
const (
	StageSyntax    = "syntax"
	StageSchema    = "schema-conformance"
	StageNaming    = "naming"
	StageSecurity  = "security"
	StageDryRun    = "dry-run"
	StageSynthesis = "synthesis"
	StageGraph     = "graph"
)

// Finding is one output record of a validation stage.
type Finding struct {
	Severity Severity `json:"severity"`
	Stage    string   `json:"stage"`
	Message  string   `json:"message"`
	Resource string   `json:"resource,omitempty"`
}

// Result is the ordered aggregation of findings from all stages for one
// synthesis run. Immutable once the pipeline completes.
type Result struct {
	Findings []Finding `json:"findings"`
}

// IsValid reports whether the run produced no error-severity findings.
func (r Result) IsValid() bool {
	for _, finding := range r.Findings {
		if finding.Severity == SeverityError {
			return false
		}
	}
	return true
}

// HasWarnings reports whether any warning-severity findings exist.
func (r Result) HasWarnings() bool {
	for _, finding := range r.Findings {
		if finding.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// CountBySeverity tallies findings per severity.
func (r Result) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, finding := range r.Findings {
		counts[finding.Severity]++
	}
	return counts
}
