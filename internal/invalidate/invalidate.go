// Package invalidate consumes tariff change notifications from Kafka and
// drops the affected cache entries.
package invalidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Actions carried by an Event.
const (
	ActionInvalidate = "invalidate"
	ActionService    = "service"
	ActionRefresh    = "refresh"
)

// Outcomes reported to the Recorder.
const (
	OutcomeApplied   = "applied"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// ErrMalformed is returned for messages that cannot be applied. They are
// committed and skipped.
var ErrMalformed = errors.New("malformed invalidation event")

// Event is the payload of a tariff.updated message. An empty Action is
// inferred from the fields that are set.
type Event struct {
	Service    string `json:"service"`
	WilayaCode int    `json:"wilaya_code"`
	Commune    string `json:"commune"`
	Action     string `json:"action"`
}

// Target is what the consumer invalidates; *engine.Engine satisfies it.
type Target interface {
	Invalidate(service string, wilayaCode int, commune string)
	InvalidateService(service string)
	ForceRefresh(ctx context.Context) error
}

// Recorder counts handled events.
type Recorder interface {
	InvalidationEvent(outcome string)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type nopRecorder struct{}

func (nopRecorder) InvalidationEvent(string) {}

// ReaderConfig names the topic and consumer group to read from.
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader opens a consumer group reader.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

type Consumer struct {
	reader     MessageReader
	target     Target
	logger     *zap.Logger
	recorder   Recorder
	retryDelay time.Duration
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithRetryDelay sets how long Run waits after a failed fetch before trying
// again. The default is one second.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func New(reader MessageReader, target Target, logger *zap.Logger, recorder Recorder, opts ...Option) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	c := &Consumer{reader: reader, target: target, logger: logger, recorder: recorder, retryDelay: time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads messages until ctx is done. Applied and malformed messages are
// committed; a message whose refresh failed is left uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("invalidation consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("invalidation consumer stopped")
				return ctx.Err()
			}
			c.logger.Error("fetch invalidation message", zap.Error(err), zap.Duration("retry_in", c.retryDelay))
			select {
			case <-ctx.Done():
				c.logger.Info("invalidation consumer stopped")
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			continue
		}

		err = c.Handle(ctx, msg.Value)
		switch {
		case errors.Is(err, ErrMalformed):
			c.logger.Warn("skipping invalidation message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		case err != nil:
			c.logger.Error("apply invalidation message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit invalidation message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Handle decodes and applies one message value.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	ev, err := Decode(value)
	if err != nil {
		c.recorder.InvalidationEvent(OutcomeMalformed)
		return err
	}

	switch ev.Action {
	case ActionInvalidate:
		c.target.Invalidate(ev.Service, ev.WilayaCode, ev.Commune)
	case ActionService:
		c.target.InvalidateService(ev.Service)
	case ActionRefresh:
		if err := c.target.ForceRefresh(ctx); err != nil {
			c.recorder.InvalidationEvent(OutcomeFailed)
			return err
		}
	}
	c.recorder.InvalidationEvent(OutcomeApplied)
	c.logger.Info("tariff cache invalidated",
		zap.String("action", ev.Action),
		zap.String("service", ev.Service),
		zap.Int("wilaya", ev.WilayaCode),
		zap.String("commune", ev.Commune),
	)
	return nil
}

// Decode parses a message value and fills in the implied action.
func Decode(value []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev.Service = strings.ToLower(strings.TrimSpace(ev.Service))
	ev.Commune = strings.TrimSpace(ev.Commune)
	ev.Action = strings.ToLower(strings.TrimSpace(ev.Action))

	if ev.Action == "" {
		switch {
		case ev.Service != "" && ev.WilayaCode > 0 && ev.Commune != "":
			ev.Action = ActionInvalidate
		case ev.Service != "":
			ev.Action = ActionService
		default:
			ev.Action = ActionRefresh
		}
	}

	switch ev.Action {
	case ActionInvalidate:
		if ev.Service == "" || ev.WilayaCode < 1 || ev.Commune == "" {
			return Event{}, fmt.Errorf("%w: invalidate needs service, wilaya_code and commune", ErrMalformed)
		}
	case ActionService:
		if ev.Service == "" {
			return Event{}, fmt.Errorf("%w: service action needs a service", ErrMalformed)
		}
	case ActionRefresh:
	default:
		return Event{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, ev.Action)
	}
	return ev, nil
}
