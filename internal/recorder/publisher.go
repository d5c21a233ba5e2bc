package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relink/relink/internal/metrics"
)

const (
	// StreamKey is the Redis stream for click events.
	StreamKey = "stream:clicks"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:clicks:dlq"

	// DefaultStreamMaxLen bounds the stream; with ~MAXLEN the oldest
	// unprocessed entries are dropped rather than buffering without bound.
	DefaultStreamMaxLen = 100000

	// DefaultPublishBudget is the max time a publish may take. The
	// redirect response has already been sent, but goroutines must not
	// pile up behind a slow Redis.
	DefaultPublishBudget = 100 * time.Millisecond
)

// ClickPayload is the compact wire format for the Redis stream.
type ClickPayload struct {
	ShortCode   string `json:"sc"`
	DeviceClass string `json:"dc"`
	CountryCode string `json:"cc,omitempty"`
	VisitorHash string `json:"vh"`
	OccurredAt  int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues click events to the Redis stream.
type Publisher struct {
	redis     *redis.Client
	logger    *slog.Logger
	metrics   metrics.Recorder
	maxLen    int64
	budget    time.Duration
}

// NewPublisher creates a new click event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "recorder.publisher"),
		metrics: recorder,
		maxLen:  DefaultStreamMaxLen,
		budget:  DefaultPublishBudget,
	}
}

// SetStreamMaxLen overrides the default stream cap.
func (p *Publisher) SetStreamMaxLen(maxLen int64) {
	if maxLen > 0 {
		p.maxLen = maxLen
	}
}

// SetPublishBudget overrides the default publish timeout.
func (p *Publisher) SetPublishBudget(budget time.Duration) {
	if budget > 0 {
		p.budget = budget
	}
}

// Publish adds a click event to the stream synchronously and returns
// the stream message ID, which later becomes the event's idempotency key.
func (p *Publisher) Publish(ctx context.Context, payload ClickPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: p.maxLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller. The redirect has
// already been answered, so failures are logged and counted, never
// returned, and never retried here.
func (p *Publisher) PublishAsync(payload ClickPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.budget)
		defer cancel()

		streamID, err := p.Publish(ctx, payload)
		if err != nil {
			p.logger.Warn("failed to publish click event",
				"short_code", payload.ShortCode,
				"error", err,
			)
			p.metrics.IncClickPublished("dropped")
			return
		}

		p.logger.Debug("click event published",
			"short_code", payload.ShortCode,
			"stream_id", streamID,
		)
		p.metrics.IncClickPublished("success")
	}()
}
