// Package notify wraps slack-go/slack's webhook poster behind a Notifier
// interface so the alert engine depends on an interface, not the SDK.
// Only the outbound wire contract (a Slack-compatible incoming webhook)
// is implemented here.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// Notification is a single alert message to deliver, already past the
// engine's cooldown and rate-cap gates.
type Notification struct {
	Condition string
	DeviceID  string
	Alias     string
	Kind      string // "raise", "recover", "rollup"
	Detail    string
}

// RollupNotification collapses many simultaneous firings into one message
// under the roll-up policy (more than R devices within 60s).
type RollupNotification struct {
	Condition    string
	Aliases      []string
	TotalFiring  int
	ShownAliases int
}

// Notifier is the interface the alert engine depends on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	NotifyRollup(ctx context.Context, n RollupNotification) error
}

// WebhookNotifier posts formatted messages to a Slack-compatible incoming
// webhook URL.
type WebhookNotifier struct {
	webhookURL string
}

// NewWebhookNotifier returns a Notifier posting to the given webhook URL.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{webhookURL: webhookURL}
}

func (n *WebhookNotifier) Notify(ctx context.Context, note Notification) error {
	emoji := ":rotating_light:"
	verb := "FIRING"
	if note.Kind == "recover" {
		emoji = ":white_check_mark:"
		verb = "RECOVERED"
	}
	text := fmt.Sprintf("%s *%s* — %s (%s) %s", emoji, verb, note.Alias, note.Condition, note.Detail)
	return postWebhook(ctx, n.webhookURL, text)
}

func (n *WebhookNotifier) NotifyRollup(ctx context.Context, r RollupNotification) error {
	shown := r.Aliases
	tail := ""
	if len(shown) > r.ShownAliases {
		shown = shown[:r.ShownAliases]
	}
	if r.TotalFiring > len(shown) {
		tail = fmt.Sprintf(" and %d more", r.TotalFiring-len(shown))
	}
	text := fmt.Sprintf(":rotating_light: *%d devices* firing `%s`: %s%s",
		r.TotalFiring, r.Condition, strings.Join(shown, ", "), tail)
	return postWebhook(ctx, n.webhookURL, text)
}

func postWebhook(ctx context.Context, url, text string) error {
	msg := &slack.WebhookMessage{Text: text}
	return slack.PostWebhookContext(ctx, url, msg)
}
