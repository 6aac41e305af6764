// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package notify

import "time"

// Config holds the change-notification channel settings. The config
// package maps its notify section onto this.
type Config struct {
	// Enabled controls whether the notification channel is active.
	// A single-instance deployment can run without it.
	Enabled bool

	// Embedded starts an in-process NATS server. When false, URL must
	// point at an external server.
	Embedded bool

	// URL is the external NATS server address, ignored when Embedded.
	URL string

	// StoreDir is the JetStream storage directory for the embedded
	// server.
	StoreDir string

	// MaxMemory and MaxStore bound embedded JetStream usage in bytes.
	MaxMemory int64
	MaxStore  int64

	// DurableName is the JetStream consumer durable name.
	DurableName string

	// QueueGroup load-balances deliveries across instances sharing it.
	QueueGroup string
}

// DefaultConfig returns production notification settings.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Embedded:    true,
		URL:         "nats://127.0.0.1:4222",
		StoreDir:    "/data/fame/jetstream",
		MaxMemory:   256 << 20, // 256MB
		MaxStore:    1 << 30,   // 1GB
		DurableName: "status-consumer",
		QueueGroup:  "status-processors",
	}
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for the embedded
// server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/fame/jetstream",
		JetStreamMaxMem:   256 << 20,
		JetStreamMaxStore: 1 << 30,
	}
}

// PublisherConfig holds publisher settings.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber settings.
type SubscriberConfig struct {
	URL            string
	DurableName    string
	QueueGroup     string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	MaxAckPending  int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// StreamName binds the consumer to an existing stream. Required
	// here: the stream subject "status.>" is a wildcard, and NATS
	// stream names cannot contain wildcards, so AutoProvision would
	// fail. The StreamInitializer creates the stream up front.
	StreamName string
}

// DefaultSubscriberConfig returns production defaults for the
// subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:            url,
		DurableName:    "status-consumer",
		QueueGroup:     "status-processors",
		AckWaitTimeout: 30 * time.Second,
		MaxDeliver:     5,
		MaxAckPending:  512,
		CloseTimeout:   30 * time.Second,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		StreamName:     DefaultStreamConfig().Name,
	}
}

// StreamConfig defines the status-update stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream settings. Status
// notifications only matter while a show runs; a day of retention
// covers replay after any realistic outage.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "STATUS_UPDATES",
		Subjects:        []string{"status.>"},
		MaxAge:          24 * time.Hour,
		MaxBytes:        1 << 30, // 1GB
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}
