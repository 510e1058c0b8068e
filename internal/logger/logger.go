// Package logger configures zerolog for the battle server and carries the
// request and game IDs through context.
package logger

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	gameIDKey    contextKey = "game_id"
)

const (
	milliTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	callerWidth     = 30
	maxBodyLog      = 1000
)

// Init sets up the global logger from LOG_LEVEL, LOG_FILE and DEV.
func Init() {
	zerolog.TimeFieldFormat = milliTimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%-*s", callerWidth, trimLeft(fmt.Sprintf("%s:%d", filepath.Base(file), line), callerWidth))
	}

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	dev := devMode()
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: milliTimeFormat, NoColor: !dev}
	if path := os.Getenv("LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			out = io.MultiWriter(out, f)
		}
	}
	log.Logger = log.Output(out).With().Caller().Logger()
	log.Info().Str("level", level.String()).Bool("dev", dev).Msg("Logger initialized")
}

func trimLeft(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func devMode() bool {
	for _, key := range []string{"DEV", "DEV_MODE", "DEVELOPMENT"} {
		if os.Getenv(key) == "true" {
			return true
		}
	}
	return false
}

// Get returns the global logger.
func Get() zerolog.Logger {
	return log.Logger
}

// NewRequestID returns a random 8-character alphanumeric ID.
func NewRequestID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req%06d", time.Now().UnixNano()%1000000)
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ForRequest returns the global logger tagged with the request ID, if any.
func ForRequest(ctx context.Context) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return log.Logger.With().Str("requestId", id).Logger()
	}
	return log.Logger
}

func WithGameID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, gameIDKey, id)
}

func GameIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(gameIDKey).(string)
	return id
}

// ForBattle returns a logger for one battle, tagged with the request and
// game IDs found in ctx.
func ForBattle(ctx context.Context, battleID string) zerolog.Logger {
	c := ForRequest(ctx).With().Str("battleId", battleID)
	if gameID := GameIDFromContext(ctx); gameID != "" {
		c = c.Str("gameId", gameID)
	}
	return c.Logger()
}

// LogRequest logs a request body at debug level.
func LogRequest(l zerolog.Logger, body []byte) { logBody(l, "request_body", "Request body", body) }

// LogResponse logs a response body at debug level.
func LogResponse(l zerolog.Logger, body []byte) { logBody(l, "response", "Response body", body) }

func logBody(l zerolog.Logger, field, msg string, body []byte) {
	if len(body) == 0 {
		return
	}
	ev := l.Debug()
	if len(body) > maxBodyLog {
		body = body[:maxBodyLog]
		ev = ev.Bool("truncated", true)
	}
	ev.Str(field, string(body)).Msg(msg)
}
