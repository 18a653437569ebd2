package recovery

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
)

// RestartFunc invokes an injected, provider-specific restart command.
type RestartFunc func(ctx context.Context, service string) error

// ReconnectFunc re-probes a provider to confirm connectivity recovered.
type ReconnectFunc func(ctx context.Context, service string) error

// DefaultExecutor clears namespaced Redis keys, posts Slack escalations, and
// delegates restart/reconnect to injected callbacks (restart is typically a
// container-orchestrator webhook; reconnect a provider-specific probe).
type DefaultExecutor struct {
	redis     *redis.Client
	slack     *slack.Client
	channel   string
	restart   RestartFunc
	reconnect ReconnectFunc
}

// NewDefaultExecutor wires the shared cache client (for clear_cache), a
// Slack client and channel (for escalate), and the restart/reconnect
// callbacks supplied by the caller.
func NewDefaultExecutor(redisClient *redis.Client, slackClient *slack.Client, channel string, restart RestartFunc, reconnect ReconnectFunc) *DefaultExecutor {
	return &DefaultExecutor{redis: redisClient, slack: slackClient, channel: channel, restart: restart, reconnect: reconnect}
}

func (e *DefaultExecutor) RestartContainer(ctx context.Context, service string) error {
	if e.restart == nil {
		return fmt.Errorf("recovery: no restart command configured")
	}
	return e.restart(ctx, service)
}

// ClearCache deletes every namespaced key under the service prefix. Safe to
// call repeatedly for the same prefix: a missing key is not an error.
func (e *DefaultExecutor) ClearCache(ctx context.Context, service string) error {
	if e.redis == nil {
		return fmt.Errorf("recovery: no shared cache configured")
	}
	prefix := fmt.Sprintf("recovery:%s:*", service)

	var cursor uint64
	for {
		keys, next, err := e.redis.Scan(ctx, cursor, prefix, 100).Result()
		if err != nil {
			return fmt.Errorf("recovery: scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := e.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("recovery: del %s: %w", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (e *DefaultExecutor) Reconnect(ctx context.Context, service string) error {
	if e.reconnect == nil {
		return fmt.Errorf("recovery: no reconnect probe configured for %s", service)
	}
	return e.reconnect(ctx, service)
}

func (e *DefaultExecutor) Escalate(ctx context.Context, service, reason string) error {
	if e.slack == nil {
		return fmt.Errorf("recovery: no Slack client configured")
	}
	text := fmt.Sprintf(":rotating_light: recovery escalation for *%s*: %s", service, reason)
	_, _, err := e.slack.PostMessageContext(ctx, e.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("recovery: slack post: %w", err)
	}
	return nil
}
