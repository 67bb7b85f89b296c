// Package notify delivers notifications over external channels after the
// triggering transaction commits.
package notify

import (
	"context"

	"go.uber.org/zap"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/pkg/logger"
)

// Message is one delivery on one channel.
type Message struct {
	UserID   string
	Channel  entities.Channel
	Template string
	Vars     map[string]string
}

// Sender delivers a message over a single channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogSender records deliveries in the structured log. It stands in for the
// email, SMS and push providers, which live outside this service.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.Info(ctx, "Notification delivered",
		zap.String("user_id", msg.UserID),
		zap.String("channel", string(msg.Channel)),
		zap.String("template", msg.Template),
		zap.Any("vars", msg.Vars),
	)
	return nil
}

// Router picks a sender per channel and falls back to Default.
type Router struct {
	Default  Sender
	Channels map[entities.Channel]Sender
}

func (r Router) Send(ctx context.Context, msg Message) error {
	if s, ok := r.Channels[msg.Channel]; ok {
		return s.Send(ctx, msg)
	}
	return r.Default.Send(ctx, msg)
}
