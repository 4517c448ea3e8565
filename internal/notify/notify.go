// Package notify sends customer notifications.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Message is an email-style notification. To is the recipient's user id;
// the mail relay resolves it to an address.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers notifications. Callers treat delivery as fire-and-forget.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes notifications to the request logger instead of
// delivering them.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(ctx context.Context, msg Message) error {
	zctx.From(ctx).Info("Notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTML)),
	)
	return nil
}

// Discard drops every notification.
type Discard struct{}

// Send implements Sender.
func (Discard) Send(context.Context, Message) error { return nil }
