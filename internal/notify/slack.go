package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// slackMaxBlocks is the Block Kit limit per message; findings past the
// remaining capacity are dropped.
const slackMaxBlocks = 50

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, report Report) error {
	if err := n.poster.waitForRateLimit(ctx); err != nil {
		return err
	}

	message := buildSlackMessage(report)
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("status", report.Status).
		Int("resources", report.Resources).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(report Report) slack.WebhookMessage {
	summary := fmt.Sprintf("%s Infrastructure generation %s: %d resource(s)",
		statusEmoji(report.Status), report.Status, report.Resources)

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text",
		fmt.Sprintf("Infrastructure generation %s", report.Status), false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Resources: *%d*", report.Resources), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Errors: *%d*  Warnings: *%d*", report.ErrorCount, report.WarningCount), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Duration: %s", report.Duration.Round(time.Millisecond)), false, false),
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := []slack.Block{header, contextBlock}

	if len(report.Order) > 0 {
		orderText := slack.NewTextBlockObject("mrkdwn",
			"*Deployment order:*\n`"+strings.Join(report.Order, "` → `")+"`", false, false)
		blocks = append(blocks, slack.NewSectionBlock(orderText, nil, nil))
	}
	if len(report.RemovedCycles) > 0 {
		cycleText := slack.NewTextBlockObject("mrkdwn",
			"*Cycles broken:*\n• "+strings.Join(report.RemovedCycles, "\n• "), false, false)
		blocks = append(blocks, slack.NewSectionBlock(cycleText, nil, nil))
	}

	findings := report.TopFindings
	if room := slackMaxBlocks - len(blocks); len(findings) > room {
		findings = findings[:room]
	}
	for _, finding := range findings {
		text := slack.NewTextBlockObject("mrkdwn", finding, false, false)
		blocks = append(blocks, slack.NewSectionBlock(text, nil, nil))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func statusEmoji(status string) string {
	switch status {
	case "succeeded":
		return ":white_check_mark:"
	case "succeeded-with-warnings":
		return ":warning:"
	default:
		return ":x:"
	}
}
