package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute names whose values never reach a log line,
// whatever group they are nested in.
var sensitiveKeys = map[string]struct{}{
	"password":         {},
	"api_key":          {},
	"private_key":      {},
	"ssh_private_key":  {},
	"credentials_json": {},
	"secret":           {},
	"token":            {},
}

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: redactSensitive,
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func redactSensitive(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, redactedValue)
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
