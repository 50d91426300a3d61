package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cloudforge/internal/cache"
	"cloudforge/internal/config"
	"cloudforge/internal/evidence"
	"cloudforge/internal/healthcheck"
	"cloudforge/internal/logging"
	"cloudforge/internal/metrics"
	"cloudforge/internal/notify"
	"cloudforge/internal/pipeline"
	"cloudforge/internal/recovery"
	"cloudforge/internal/resource"
	"cloudforge/internal/schema"
	"cloudforge/internal/scoring"
	"cloudforge/internal/server"
	"cloudforge/internal/state"
	"cloudforge/internal/synth"
	"cloudforge/internal/validate"
)

const notifyTimeout = 30 * time.Second

func main() {
	outPath := flag.String("out", "", "write synthesized resource specs as JSON to this path")
	flag.Parse()

	projectRoot := flag.Arg(0)
	if projectRoot == "" {
		projectRoot = "."
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info().Str("project_root", projectRoot).Msg("cloudforge starting")

	project, err := config.LoadProject(cfg.ProjectConfig)
	if err != nil {
		logger.Error().Err(err).Msg("project configuration invalid")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()
	server.Start(ctx, logger, tracker, metricsCollector, cfg.HealthPort, cfg.MetricsPort)

	schemaCache := cache.New[schema.Schema](pipeline.SchemaCachePolicy,
		cache.WithSizeFunc[schema.Schema](schema.EstimateSize))
	analysisCache := cache.New[[]scoring.Dependency](pipeline.AnalysisCachePolicy)
	validationCache := cache.New[validate.Result](pipeline.ValidationCachePolicy)

	var stateStore *state.FileStore
	if cfg.StatePath != "" {
		stateStore = state.NewFileStore(cfg.StatePath, logger)
		if persisted, err := stateStore.Load(ctx); err != nil {
			logger.Warn().Err(err).Msg("state load failed, starting cold")
		} else if len(persisted.Schemas) > 0 {
			schemaCache.Restore(persisted.Schemas)
			logger.Info().Int("schemas", len(persisted.Schemas)).Msg("schema cache warmed from state")
		}
	}

	gateway, err := schema.NewGateway(logger, cfg.SchemaServiceURL, schemaCache,
		schema.WithTimeout(cfg.SchemaTimeout))
	if err != nil {
		logger.Error().Err(err).Msg("schema gateway setup failed")
		os.Exit(1)
	}

	registry := evidence.NewRegistry()
	registry.Register("compose", evidence.NewComposeExtractor(project.ComposeFile))
	registry.Register("dotenv", evidence.NewDotenvExtractor(project.EnvFiles...))

	signals, failures := registry.ExtractAll(ctx, projectRoot)
	logger.Info().Int("signals", len(signals)).Int("failed_extractors", len(failures)).Msg("evidence collected")

	policy := synth.Policy{
		Region:      project.Region,
		Environment: project.Environment,
		ExtraTags:   project.Tags,
		Now:         time.Now,
	}

	runner := pipeline.NewRunner(
		logger,
		scoring.NewScorer(cfg.MinConfidence),
		synth.New(logger, gateway, policy, synth.WithMaxInFlight(cfg.MaxInFlight)),
		validate.New(logger, cfg.EnableDryRun),
		analysisCache,
		validationCache,
		metricsCollector,
	)

	result := runner.Run(ctx, signals, failures)

	tracker.RecordRun(result.Duration, len(result.Specs), string(result.Status))
	reportCacheStats(metricsCollector, "schema", schemaCache.Stats())
	reportCacheStats(metricsCollector, "analysis", analysisCache.Stats())
	reportCacheStats(metricsCollector, "validation", validationCache.Stats())
	if result.Status != recovery.StatusFailed {
		metricsCollector.SetLastSuccessfulRunTimestamp(time.Now())
	}

	if *outPath != "" && len(result.Specs) > 0 {
		if err := writeSpecs(*outPath, result); err != nil {
			logger.Error().Err(err).Str("path", *outPath).Msg("writing resource specs failed")
		} else {
			logger.Info().Str("path", *outPath).Int("resources", len(result.Specs)).Msg("resource specs written")
		}
	}

	sendReport(logger, cfg, result)

	if stateStore != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := stateStore.Save(saveCtx, state.State{
			SavedAt: time.Now().UTC(),
			Schemas: schemaCache.Snapshot(),
		}); err != nil {
			logger.Warn().Err(err).Msg("state save failed")
		}
		cancel()
	}

	if result.Status == recovery.StatusFailed {
		logger.Error().Int("errors", len(result.Errors)).Msg("cloudforge run failed")
		os.Exit(1)
	}
	logger.Info().Str("status", string(result.Status)).Msg("cloudforge run finished")
}

func reportCacheStats(m *metrics.Metrics, name string, stats cache.Stats) {
	m.RecordCacheStats(name, stats.Hits, stats.Misses, stats.Evictions)
}

func writeSpecs(path string, result pipeline.Result) error {
	document := struct {
		Status    string             `json:"status"`
		Order     []string           `json:"order"`
		Resources []resource.Spec    `json:"resources"`
		Findings  []validate.Finding `json:"findings,omitempty"`
	}{
		Status:    string(result.Status),
		Order:     result.Order,
		Resources: result.Specs,
		Findings:  result.Validation.Findings,
	}
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func sendReport(logger zerolog.Logger, cfg config.Config, result pipeline.Result) {
	var notifiers []notify.Notifier
	if webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, ""); err != nil {
		logger.Warn().Err(err).Msg("webhook notifier setup failed")
	} else if webhook != nil {
		notifiers = append(notifiers, webhook)
	}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	if len(notifiers) == 0 {
		return
	}

	unrecovered := 0
	for _, rec := range result.Errors {
		if !rec.Recovered {
			unrecovered++
		}
	}
	counts := result.Validation.CountBySeverity()
	report := notify.Report{
		Status:       string(result.Status),
		Resources:    len(result.Specs),
		ErrorCount:   counts[validate.SeverityError] + unrecovered,
		WarningCount: counts[validate.SeverityWarning],
		Duration:     result.Duration,
		GeneratedAt:  time.Now().UTC(),
		Order:        result.Order,
		TopFindings:  formatFindings(result.Validation.Findings),
	}
	for _, edge := range result.RemovedEdges {
		report.RemovedCycles = append(report.RemovedCycles, fmt.Sprintf("%s -> %s", edge.From, edge.To))
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := notify.NewMultiNotifier(notifiers...).Notify(ctx, report); err != nil {
		logger.Warn().Err(err).Msg("run report delivery failed")
	}
}

const maxReportedFindings = 10

func formatFindings(findings []validate.Finding) []string {
	formatted := make([]string, 0, len(findings))
	for _, finding := range findings {
		if len(formatted) == maxReportedFindings {
			break
		}
		line := fmt.Sprintf("[%s] %s: %s", finding.Severity, finding.Stage, finding.Message)
		if finding.Resource != "" {
			line = fmt.Sprintf("[%s] %s (%s): %s", finding.Severity, finding.Stage, finding.Resource, finding.Message)
		}
		formatted = append(formatted, line)
	}
	return formatted
}
