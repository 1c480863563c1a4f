package notify

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// Channel delivers a notification to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// WebhookChannel posts notifications as signed JSON to the chat front end.
type WebhookChannel struct {
	url    string
	sender *webhook.Sender
}

func NewWebhookChannel(url string, sender *webhook.Sender) *WebhookChannel {
	return &WebhookChannel{url: url, sender: sender}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	return c.sender.Send(ctx, c.url, n)
}

// LogChannel writes notifications to the log. It is the only channel in
// local runs.
type LogChannel struct {
	log *slog.Logger
}

func NewLogChannel(log *slog.Logger) *LogChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, n Notification) error {
	c.log.InfoContext(ctx, "notification",
		slog.String("notification_id", n.ID),
		slog.String("kind", string(n.Kind)),
		logger.UserID(n.UserID),
		logger.ChatID(n.ChatID),
		logger.Plan(n.Plan),
		slog.String("message", n.Message),
	)
	return nil
}
