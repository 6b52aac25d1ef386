// Package events publishes script lifecycle and execution events to NATS
// JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

const (
	// DefaultStream is the JetStream stream holding all events
	DefaultStream = "SCRIPTS"

	streamMaxAge = 7 * 24 * time.Hour
)

// Publisher delivers events to interested consumers
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
	Close()
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, *model.Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() {}

// Config defines the NATS connection
type Config struct {
	URL           string
	Stream        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSPublisher publishes events on subjects named after the event type
type NATSPublisher struct {
	logger *zap.Logger
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string
}

// Connect dials NATS and prepares the event stream
func Connect(cfg Config, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.Named("events")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("nitrite-automation"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p, err := NewPublisher(js, cfg.Stream, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.nc = nc
	return p, nil
}

// NewPublisher creates a publisher over an existing JetStream context and
// creates the stream if needed
func NewPublisher(js nats.JetStreamContext, stream string, logger *zap.Logger) (*NATSPublisher, error) {
	if stream == "" {
		stream = DefaultStream
	}

	p := &NATSPublisher{
		logger: logger,
		js:     js,
		stream: stream,
	}
	if err := p.ensureStream(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream() error {
	subjects := []string{"script.*", "task.*"}

	info, err := p.js.StreamInfo(p.stream)
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if info == nil {
		_, err = p.js.AddStream(&nats.StreamConfig{
			Name:       p.stream,
			Subjects:   subjects,
			Retention:  nats.LimitsPolicy,
			MaxAge:     streamMaxAge,
			MaxMsgs:    -1,
			MaxBytes:   -1,
			Discard:    nats.DiscardOld,
			MaxMsgSize: 4 * 1024 * 1024,
			Storage:    nats.FileStorage,
			Replicas:   1,
			Duplicates: time.Hour,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", p.stream, err)
		}
		p.logger.Info("Created stream", zap.String("name", p.stream))
		return nil
	}

	// Update existing stream while preserving retention policy
	config := info.Config
	config.Subjects = subjects
	if _, err := p.js.UpdateStream(&config); err != nil {
		return fmt.Errorf("failed to update stream %s: %w", p.stream, err)
	}
	p.logger.Info("Using existing stream", zap.String("name", p.stream))
	return nil
}

// Publish implements Publisher. The event id doubles as the JetStream
// de-duplication id.
func (p *NATSPublisher) Publish(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(string(event.Type), data, nats.MsgId(event.ID), nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)))
	return nil
}

// Subscribe delivers events matching subject to handler until ctx is done
func (p *NATSPublisher) Subscribe(ctx context.Context, subject string, handler func(*model.Event)) error {
	sub, err := p.js.Subscribe(subject, func(msg *nats.Msg) {
		var event model.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Error("Failed to unmarshal event", zap.Error(err))
			return
		}

		handler(&event)
		msg.Ack()
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

// Close closes the connection if the publisher owns it
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
