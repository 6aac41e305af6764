// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/metrics"
	"github.com/HtooAg/FAME-sub001/internal/models"
)

// Handler processes one inbound notification. A returned error nacks
// the message for redelivery.
type Handler func(ctx context.Context, n *models.StatusNotification) error

// messageSource is the watermill subscriber surface the consume loop
// needs. Narrowed for testing with channel-backed fakes.
type messageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// Subscriber delivers other instances' status writes to the cache
// manager's inbound conflict path. Consumption is durable (JetStream
// consumer bound to the pre-created stream) and queue-grouped, so
// instances sharing a QueueGroup split the load.
type Subscriber struct {
	source     messageSource
	config     SubscriberConfig
	serializer *Serializer
}

// NewSubscriber creates a durable JetStream subscriber.
func NewSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.MaxAckPending(cfg.MaxAckPending),
		natsgo.AckWait(cfg.AckWaitTimeout),
		// Live updates only; recovery reloads state from the store.
		natsgo.DeliverNew(),
	}

	// The stream subject is a wildcard, so the consumer binds to the
	// pre-created stream instead of auto-provisioning one.
	autoProvision := true
	if cfg.StreamName != "" {
		subOpts = append(subOpts, natsgo.BindStream(cfg.StreamName))
		autoProvision = false
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1, // One consumer keeps per-event delivery ordered enough for the resolver
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    autoProvision,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Subscriber{
		source:     sub,
		config:     *cfg,
		serializer: NewSerializer(),
	}, nil
}

// Subscribe consumes the event's status topic and feeds decoded
// notifications to handler until the returned cancel function is
// called or ctx ends. Handler errors nack for redelivery; undecodable
// payloads are acked away and counted as dropped.
func (s *Subscriber) Subscribe(ctx context.Context, eventID string, handler func(context.Context, *models.StatusNotification) error) (func(), error) {
	topic := models.StatusTopic(eventID)

	runCtx, cancel := context.WithCancel(ctx)
	messages, err := s.source.Subscribe(runCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	done := make(chan struct{})
	go s.consume(runCtx, messages, handler, done)

	logging.Info().Str("topic", topic).Msg("status subscription started")
	return func() {
		cancel()
		<-done
	}, nil
}

// Close shuts the underlying subscriber down.
func (s *Subscriber) Close() error {
	return s.source.Close()
}

func (s *Subscriber) consume(ctx context.Context, messages <-chan *message.Message, handler Handler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.processMessage(ctx, msg, handler)
		}
	}
}

func (s *Subscriber) processMessage(ctx context.Context, msg *message.Message, handler Handler) {
	n, err := s.serializer.Unmarshal(msg.Payload)
	if err != nil {
		// Poison payload: redelivery cannot fix it.
		metrics.NotificationsDropped.Inc()
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping undecodable notification")
		msg.Ack()
		return
	}

	if err := handler(ctx, n); err != nil {
		logging.Warn().
			Err(err).
			Str("notification_id", n.NotificationID).
			Msg("notification handling failed, nacking for redelivery")
		msg.Nack()
		return
	}

	metrics.NotificationsReceived.Inc()
	msg.Ack()
}
