package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const payloadField = "event"

// RedisStreamSink appends events to a Redis stream consumed by the
// notification worker.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			payloadField: string(data),
			"type":       string(ev.Type),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Handler processes one event. Returning an error leaves the message
// pending; it is claimed and retried once idle for retryIdle.
type Handler func(ctx context.Context, ev Event) error

// StreamConsumer reads a stream through a consumer group.
type StreamConsumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	batch     int64
	block     time.Duration
	retryIdle time.Duration
	logger    zerolog.Logger
}

func NewStreamConsumer(client *redis.Client, stream, group, consumer string, logger zerolog.Logger) *StreamConsumer {
	return &StreamConsumer{
		client:    client,
		stream:    stream,
		group:     group,
		consumer:  consumer,
		batch:     16,
		block:     5 * time.Second,
		retryIdle: 30 * time.Second,
		logger:    logger.With().Str("stream", stream).Str("group", group).Logger(),
	}
}

// EnsureGroup creates the consumer group (and stream) if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (c *StreamConsumer) Run(ctx context.Context, handle Handler) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.ProcessOnce(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("stream read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOnce retries the group's messages that stayed pending for
// retryIdle, including those left by a dead consumer, then reads one batch
// of new messages. It returns how many messages were acked.
func (c *StreamConsumer) ProcessOnce(ctx context.Context, handle Handler) (int, error) {
	acked, err := c.retryPending(ctx, handle)
	if err != nil {
		return acked, err
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batch,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return acked, nil
		}
		return acked, fmt.Errorf("read stream: %w", err)
	}

	for _, s := range streams {
		n, err := c.handleMessages(ctx, s.Messages, handle)
		acked += n
		if err != nil {
			return acked, err
		}
	}
	return acked, nil
}

func (c *StreamConsumer) retryPending(ctx context.Context, handle Handler) (int, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.retryIdle,
		Start:    "0-0",
		Count:    c.batch,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("claim pending: %w", err)
	}
	if len(msgs) > 0 {
		c.logger.Info().Int("count", len(msgs)).Msg("retrying pending events")
	}
	return c.handleMessages(ctx, msgs, handle)
}

func (c *StreamConsumer) handleMessages(ctx context.Context, msgs []redis.XMessage, handle Handler) (int, error) {
	acked := 0
	for _, msg := range msgs {
		ev, err := decodeMessage(msg)
		if err != nil {
			// Poison message; ack so it does not block the group.
			c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping undecodable event")
			if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
				return acked, fmt.Errorf("ack message: %w", err)
			}
			continue
		}
		if err := handle(ctx, ev); err != nil {
			c.logger.Error().Err(err).
				Str("message_id", msg.ID).
				Str("event_type", string(ev.Type)).
				Str("appointment_id", ev.AppointmentID.String()).
				Msg("event handler failed")
			continue
		}
		if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
			return acked, fmt.Errorf("ack message: %w", err)
		}
		acked++
	}
	return acked, nil
}

func decodeMessage(msg redis.XMessage) (Event, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return Event{}, fmt.Errorf("message %s has no %q field", msg.ID, payloadField)
	}
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if !ev.Type.Valid() {
		return Event{}, fmt.Errorf("message %s: unknown event type %q", msg.ID, ev.Type)
	}
	return ev, nil
}
