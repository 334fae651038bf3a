// Package notify delivers interruptive messages to the user.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// Notifier delivers one user-facing message.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// LogNotifier writes notifications to the structured log. Default when no
// delivery channel is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, title, message string) error {
	slog.Info("NOTIFY", "title", title, "message", message)
	return nil
}

// SlackNotifier posts notifications to a Slack channel.
type SlackNotifier struct {
	api     *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier for the given bot token and channel.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{api: slack.New(token), channel: channel}
}

func (n *SlackNotifier) Notify(ctx context.Context, title, message string) error {
	text := message
	if title != "" {
		text = fmt.Sprintf("*%s*\n%s", title, message)
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}
	return nil
}
