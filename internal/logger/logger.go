package logger

import (
	"io"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// Keys whose values never reach the log output.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access_token":  {},
	"accesstoken":   {},
	"refresh_token": {},
	"refreshtoken":  {},
	"authorization": {},
	"secret":        {},
}

// New builds the process logger. format is "json" or "pretty".
func New(w io.Writer, format string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: Redact,
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewPrettyHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redact is a slog ReplaceAttr hook that masks credential-bearing attributes.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}
