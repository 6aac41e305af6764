// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/HtooAg/FAME-sub001/internal/config"
	"github.com/HtooAg/FAME-sub001/internal/logging"
	"github.com/HtooAg/FAME-sub001/internal/notify"
)

// notifyComponents holds the change-notification channel: an optional
// embedded NATS server, the client connection, the JetStream stream
// initializer, and the publisher/subscriber pair built on top.
//
// Initialization is ordered (server, connection, stream, publisher,
// subscriber) and Shutdown releases the pieces in reverse so in-flight
// notifications drain before the transport drops.
type notifyComponents struct {
	server     *notify.EmbeddedServer
	conn       *natsgo.Conn
	stream     *notify.StreamInitializer
	publisher  *notify.Publisher
	subscriber *notify.Subscriber
}

// initNotify builds the notification channel from configuration. It
// returns (nil, nil) when the channel is disabled; any other failure
// tears down whatever was already started before reporting.
func initNotify(ctx context.Context, cfg *config.Config) (*notifyComponents, error) {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("Change notifications disabled, running cache-only")
		return nil, nil
	}

	components := &notifyComponents{}

	// Step 1: embedded server, or an external URL from config.
	url := cfg.NATS.URL
	if cfg.NATS.Embedded {
		serverCfg := notify.DefaultServerConfig()
		if cfg.NATS.StoreDir != "" {
			serverCfg.StoreDir = cfg.NATS.StoreDir
		}
		if cfg.NATS.MaxMemory > 0 {
			serverCfg.JetStreamMaxMem = cfg.NATS.MaxMemory
		}
		if cfg.NATS.MaxStore > 0 {
			serverCfg.JetStreamMaxStore = cfg.NATS.MaxStore
		}

		server, err := notify.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		components.server = server
		url = server.ClientURL()

		logging.Info().
			Str("url", url).
			Str("store_dir", serverCfg.StoreDir).
			Msg("Embedded NATS server started")
	}

	// Step 2: client connection. Reconnects forever; the show must not
	// depend on the broker being up before the server.
	conn, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	components.conn = conn

	// Step 3: ensure the status stream exists before anything binds
	// to it.
	js, err := jetstream.New(conn)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCfg := notify.DefaultStreamConfig()
	initializer, err := notify.NewStreamInitializer(js, &streamCfg)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create stream initializer: %w", err)
	}
	components.stream = initializer

	stream, err := initializer.EnsureStream(ctx)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to ensure status stream: %w", err)
	}
	if info := stream.CachedInfo(); info != nil {
		logging.Info().
			Str("stream", info.Config.Name).
			Uint64("messages", info.State.Msgs).
			Msg("JetStream status stream ready")
	}

	wmLogger := logging.NewWatermillLogger()

	// Step 4: publisher with a circuit breaker so a broker outage
	// degrades writes to local-only instead of stalling them.
	publisher, err := notify.NewPublisher(notify.DefaultPublisherConfig(url), wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create status publisher: %w", err)
	}
	publisher.SetBreaker(notify.NewBreaker(notify.DefaultBreakerConfig("status-publisher")))
	components.publisher = publisher

	// Step 5: subscriber. Durable name and queue group come from
	// config so multiple instances can share one consumer.
	subCfg := notify.DefaultSubscriberConfig(url)
	if cfg.NATS.DurableName != "" {
		subCfg.DurableName = cfg.NATS.DurableName
	}
	if cfg.NATS.QueueGroup != "" {
		subCfg.QueueGroup = cfg.NATS.QueueGroup
	}
	subscriber, err := notify.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		components.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create status subscriber: %w", err)
	}
	components.subscriber = subscriber

	logging.Info().
		Str("url", url).
		Bool("embedded", components.server != nil).
		Str("durable", subCfg.DurableName).
		Msg("Change notification channel ready")

	return components, nil
}

// Publisher returns the status publisher, or nil when notifications
// are disabled.
func (c *notifyComponents) Publisher() *notify.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher
}

// Subscriber returns the status subscriber, or nil when notifications
// are disabled.
func (c *notifyComponents) Subscriber() *notify.Subscriber {
	if c == nil {
		return nil
	}
	return c.subscriber
}

// Stream returns the stream initializer used for health checks, or nil
// when notifications are disabled.
func (c *notifyComponents) Stream() *notify.StreamInitializer {
	if c == nil {
		return nil
	}
	return c.stream
}

// Shutdown releases the notification components in reverse
// initialization order: subscriber, publisher, client connection, then
// the embedded server. Safe to call on a nil or partially initialized
// receiver.
func (c *notifyComponents) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close status subscriber")
		}
		c.subscriber = nil
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close status publisher")
		}
		c.publisher = nil
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to stop embedded NATS server")
		}
		c.server = nil
	}
}
