// Package notify implements coordinator.Notifier over a Slack channel, a
// thin wrapper around github.com/slack-go/slack matching the teacher's
// pkg/slack client in shape and logging discipline.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/synthline/corestation/pkg/coordinator"
)

// Client is a thin wrapper around the slack-go SDK, scoped to the single
// operation this domain needs: post a formatted block message to one
// configured channel.
type Client struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewClient builds a Slack API client for channelID, authenticated with
// token.
func NewClient(token, channelID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    logger.With("component", "notify-client"),
	}
}

// PostMessage sends blocks to the configured channel, bounded by timeout.
func (c *Client) PostMessage(ctx context.Context, blocks []goslack.Block, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("notify: chat.postMessage failed: %w", err)
	}
	return nil
}

// SlackNotifier adapts Client to coordinator.Notifier, posting one Block
// Kit message per event. Notification is best-effort per §4.11: Notify
// always returns nil to its caller's retry path even when the post
// itself failed — the failure is logged, not surfaced, so a Slack outage
// can never fail a run. The interface still declares an error return so
// a future Notifier (or a test double) can choose to propagate one.
type SlackNotifier struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier. timeout bounds each post; zero
// defaults to 10 seconds.
func NewSlackNotifier(client *Client, timeout time.Duration, logger *slog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{client: client, timeout: timeout, logger: logger.With("component", "notify")}
}

// Notify posts event as a formatted Slack message. Errors are logged and
// swallowed, never returned, per §4.11's best-effort contract.
func (n *SlackNotifier) Notify(ctx context.Context, event coordinator.Event) error {
	blocks := buildEventMessage(event)
	if err := n.client.PostMessage(ctx, blocks, n.timeout); err != nil {
		n.logger.Warn("notify: failed to post event",
			"kind", event.Kind, "task_id", event.TaskID, "error", err)
	}
	return nil
}

const maxBlockTextLength = 2900

var kindEmoji = map[string]string{
	"task_terminal":       ":robot_face:",
	"readiness_not_ready": ":warning:",
}

var kindLabel = map[string]string{
	"task_terminal":       "Task Update",
	"readiness_not_ready": "Readiness Check Failed",
}

// buildEventMessage renders event as Block Kit blocks, mirroring the
// teacher's BuildStartedMessage/BuildTerminalMessage split collapsed into
// a single shape since this domain has only one notifiable message kind
// per event, not a start/terminal pair.
func buildEventMessage(event coordinator.Event) []goslack.Block {
	emoji := kindEmoji[event.Kind]
	if emoji == "" {
		emoji = ":bell:"
	}
	label := kindLabel[event.Kind]
	if label == "" {
		label = event.Kind
	}

	header := fmt.Sprintf("%s *%s*", emoji, label)
	if event.TaskID != nil {
		header += fmt.Sprintf(" (task %d)", *event.TaskID)
	}

	body := truncate(event.Message)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
			nil, nil,
		),
		goslack.NewContextBlock("", goslack.NewTextBlockObject(goslack.MarkdownType,
			event.At.Format(time.RFC3339), false, false)),
	}
}

func truncate(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}

// NoopNotifier discards every event. It is the default when no Notifier
// is configured (Config.Notifier.Enabled == false).
type NoopNotifier struct{}

// Notify is a no-op.
func (NoopNotifier) Notify(context.Context, coordinator.Event) error { return nil }
