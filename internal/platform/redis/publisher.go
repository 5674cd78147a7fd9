package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/events"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "relay:jobs"

// Open creates a client for the redis:// URL and verifies it with a ping.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Publisher implements events.EventHandler by publishing every event it
// receives as JSON on a single channel.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. An empty channel selects DefaultChannel.
func NewPublisher(client redis.UniversalClient, channel string, logger *slog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_publisher", "channel", channel),
	}, nil
}

// Channel returns the channel events are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// HandleEvent implements events.EventHandler.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	p.logger.DebugContext(ctx, "published job event",
		"event_type", event.Type,
		"job_id", event.JobID,
		"receivers", receivers)
	return nil
}

var _ events.EventHandler = (*Publisher)(nil)
