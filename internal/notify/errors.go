// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

// Package notify implements the change-notification channel that fans
// accepted status writes out to the other FAME instances. It runs over
// NATS JetStream via Watermill, with an optional embedded server for
// single-node deployments. Delivery is at-least-once and unordered;
// the cache manager's conflict path absorbs both properties.
package notify

import "errors"

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// ErrNilNotification is returned when publishing a nil notification.
var ErrNilNotification = errors.New("notification cannot be nil")
