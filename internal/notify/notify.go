// Package notify delivers engagement nudges. Delivery is fire-and-forget:
// callers log failures and move on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/domain"
)

// Notifier sends a nudge to a learner.
type Notifier interface {
	Notify(ctx context.Context, n domain.Nudge) error
}

// Log writes nudges to the logger. It is used when no broker is
// configured.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, n domain.Nudge) error {
	l.logger.Info("nudge",
		zap.String("learner_id", n.LearnerID),
		zap.String("topic_id", n.TopicID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// Redis publishes nudges as JSON on a channel for a push gateway to
// deliver.
type Redis struct {
	client  goredis.UniversalClient
	channel string
}

// NewRedis creates a Redis notifier publishing on channel.
func NewRedis(client goredis.UniversalClient, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

// Notify implements Notifier.
func (r *Redis) Notify(ctx context.Context, n domain.Nudge) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish nudge: %w", err)
	}
	return nil
}

// Multi fans a nudge out to several notifiers and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n domain.Nudge) error {
	var first error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
