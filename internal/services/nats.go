package services

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const StreamName = "file-events"

// Publisher is the part of the event bus the workflow code depends on.
type Publisher interface {
	PublishEvent(subject string, payload any) error
}

// EventBus is a NATS connection with JetStream publishing and durable
// consumers.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// ConnectNATS connects to NATS, initializes JetStream and makes sure the
// file-events stream exists.
func ConnectNATS(url string, logger *zap.Logger) (*EventBus, error) {
	log := logger.Named("nats")
	opts := []nats.Option{
		nats.Name("ecu-file-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	bus := &EventBus{nc: nc, js: js, logger: log}
	if err := bus.ensureStreams(); err != nil {
		log.Warn("failed to ensure streams", zap.Error(err))
	}

	log.Info("connected and JetStream initialized")
	return bus, nil
}

func (b *EventBus) ensureStreams() error {
	if _, err := b.js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"files.*", "users.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// PublishEvent publishes payload as JSON with a unique message id so
// JetStream can drop duplicates.
func (b *EventBus) PublishEvent(subject string, payload any) error {
	if b == nil || b.js == nil {
		return errors.New("jetstream not initialized")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := b.js.Publish(subject, data, nats.MsgId(uuid.NewString())); err != nil {
		b.logger.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// SubscribeEvent creates a durable manual-ack consumer. handler must Ack or
// Nak each message.
func (b *EventBus) SubscribeEvent(subject, durableName string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if b == nil || b.js == nil {
		return nil, errors.New("jetstream not initialized")
	}
	sub, err := b.js.Subscribe(subject, handler, nats.Durable(durableName), nats.ManualAck())
	if err != nil {
		return nil, err
	}
	b.logger.Info("subscribed", zap.String("subject", subject), zap.String("durable", durableName))
	return sub, nil
}

func (b *EventBus) Connected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (b *EventBus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// NoopPublisher drops every event. Used when NATS is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishEvent(string, any) error { return nil }
