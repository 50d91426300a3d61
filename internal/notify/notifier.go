package notify

import (
	"context"
	"time"
)

// Report summarizes one completed pipeline run for delivery to external
// systems.
type Report struct {
	Status        string        `json:"status"`
	Resources     int           `json:"resources"`
	ErrorCount    int           `json:"errors"`
	WarningCount  int           `json:"warnings"`
	Duration      time.Duration `json:"duration"`
	GeneratedAt   time.Time     `json:"generatedAt"`
	Order         []string      `json:"order,omitempty"`
	TopFindings   []string      `json:"topFindings,omitempty"`
	RemovedCycles []string      `json:"removedCycles,omitempty"`
}

// Notifier delivers run reports to external systems.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}
