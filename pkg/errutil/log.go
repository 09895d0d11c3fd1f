// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Storefront Contributors

// Package errutil provides helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// redacted replaces the value of sensitive context keys.
const redacted = "[REDACTED]"

// sensitiveKeyParts mark oops context keys whose values must never reach a
// log line. Matching is by case-insensitive substring.
var sensitiveKeyParts = []string{"password", "secret", "token", "hash"}

// isSensitiveKey reports whether key names a credential. Keys ending in
// "_type" or "_id" describe a credential without carrying it.
func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "_type") || strings.HasSuffix(k, "_id") {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// Redact returns a copy of ctx with sensitive values replaced.
func Redact(ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return ctx
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

// Attrs returns slog key/value pairs describing err.
// For oops errors, it extracts the message, code and context, with
// credential-bearing context values redacted.
// For standard errors, it returns the error string.
func Attrs(err error) []any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", Redact(ctx))
	}
	return attrs
}

// LogError logs an error with structured context if it's an oops error.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, Attrs(err)...)
}

// LogErrorContext is LogError with a context (for trace correlation) and
// extra key/value pairs placed before the error attributes.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, args ...any) {
	logger.ErrorContext(ctx, msg, append(args, Attrs(err)...)...)
}
