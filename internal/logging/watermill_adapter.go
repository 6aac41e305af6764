// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger adapts zerolog to watermill's LoggerAdapter so the
// notification transport logs in the same stream and format as the
// rest of the server.
type WatermillLogger struct {
	logger zerolog.Logger
}

// NewWatermillLogger creates an adapter over the global logger.
func NewWatermillLogger() *WatermillLogger {
	return &WatermillLogger{logger: Logger()}
}

// Error logs an error message.
func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	withLogFields(l.logger.Error().Err(err), fields).Msg(msg)
}

// Info logs an info message.
func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	withLogFields(l.logger.Info(), fields).Msg(msg)
}

// Debug logs a debug message.
func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	withLogFields(l.logger.Debug(), fields).Msg(msg)
}

// Trace logs a trace message.
func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	withLogFields(l.logger.Trace(), fields).Msg(msg)
}

// With returns a child adapter carrying the given fields on every
// message.
func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillLogger{logger: ctx.Logger()}
}

func withLogFields(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
