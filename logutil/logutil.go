// Package logutil provides the process-wide zap logger used across the
// themis-go client, mirroring the logger access pattern of the store/tikv
// package it was adapted from: a package-level default logger plus a
// context-scoped accessor that call sites use instead of touching zap
// globals directly.
package logutil

import (
	"context"

	"go.uber.org/zap"
)

type ctxLogKey struct{}

var globalLogger = zap.NewNop()

// InitLogger installs l as the process-wide logger. Call once at process
// startup; tests may call it with zaptest loggers.
func InitLogger(l *zap.Logger) {
	globalLogger = l
}

// BgLogger returns the background logger, for use where no context is
// available (e.g. inside struct constructors).
func BgLogger() *zap.Logger {
	return globalLogger
}

// Logger returns the logger bound to ctx, falling back to the background
// logger when none was attached with WithLogger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxLogKey{}).(*zap.Logger); ok {
		return l
	}
	return globalLogger
}

// WithLogger returns a context carrying l, retrievable through Logger.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxLogKey{}, l)
}
