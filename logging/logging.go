// Package logging provides structured, leveled logging for pulselink.
//
// The Logger keeps a small API (component loggers, a message plus a field map)
// and writes through zap. Setup builds the zap core from configuration,
// including rotated file outputs.
package logging

import (
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vinayprograms/pulselink/config"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// zapLevel maps a Level to its zap equivalent.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a configuration string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging.
type Logger struct {
	z         *zap.Logger
	level     zap.AtomicLevel
	component string
}

// New creates a console Logger on stdout at info level.
func New() *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return &Logger{z: zap.New(core), level: level}
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// Setup builds a Logger from configuration. The caller should defer Sync().
func Setup(c config.LogConfig) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(c.Level).zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	if c.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	var cores []zapcore.Core
	for _, out := range outputs {
		ws, err := writerFor(out, c)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	return &Logger{z: zap.New(zapcore.NewTee(cores...), opts...), level: level}, nil
}

// writerFor opens one output. Files rotate through lumberjack when enabled.
func writerFor(out string, c config.LogConfig) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	if c.Rotation.Enable {
		filename := out
		if strings.TrimSpace(c.Rotation.Filename) != "" {
			filename = c.Rotation.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		}), nil
	}

	if i := strings.LastIndexAny(out, "/\\"); i > 0 {
		if err := os.MkdirAll(out[:i], 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		z:         l.z.With(zap.String("component", component)),
		level:     l.level,
		component: component,
	}
}

// WithConnection returns a new logger tagged with a connection id.
func (l *Logger) WithConnection(id string) *Logger {
	return &Logger{
		z:         l.z.With(zap.String("conn", id)),
		level:     l.level,
		component: l.component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// toZapFields converts a field map into zap fields in key order.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case time.Duration:
			out = append(out, zap.Duration(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	var zf []zap.Field
	if len(fields) > 0 && fields[0] != nil {
		zf = toZapFields(fields[0])
	}

	switch level {
	case LevelDebug:
		l.z.Debug(msg, zf...)
	case LevelWarn:
		l.z.Warn(msg, zf...)
	case LevelError:
		l.z.Error(msg, zf...)
	default:
		l.z.Info(msg, zf...)
	}
}

// --- Event-derived logging methods ---

// StateChange logs a connection state transition.
func (l *Logger) StateChange(conn, from, to, reason string) {
	l.Info("state_change", map[string]interface{}{
		"conn":   conn,
		"from":   from,
		"to":     to,
		"reason": reason,
	})
}

// ReconnectScheduled logs a pending reconnection attempt.
func (l *Logger) ReconnectScheduled(conn string, attempt int, delay time.Duration) {
	l.Info("reconnect_scheduled", map[string]interface{}{
		"conn":    conn,
		"attempt": attempt,
		"delay":   delay,
	})
}

// ParseFailure logs a discarded inbound message.
func (l *Logger) ParseFailure(conn string, size int, err error) {
	l.Warn("parse_failure", map[string]interface{}{
		"conn":  conn,
		"bytes": size,
		"error": err,
	})
}

// SendDropped logs a send attempted while the connection was not open.
func (l *Logger) SendDropped(conn, kind, state string) {
	l.Warn("send_dropped", map[string]interface{}{
		"conn":  conn,
		"kind":  kind,
		"state": state,
	})
}

// PeerAdded logs a registry insertion.
func (l *Logger) PeerAdded(id, remote string, total int) {
	l.Info("peer_added", map[string]interface{}{
		"peer":   id,
		"remote": remote,
		"peers":  total,
	})
}

// PeerRemoved logs a registry removal.
func (l *Logger) PeerRemoved(id string, total int) {
	l.Info("peer_removed", map[string]interface{}{
		"peer":  id,
		"peers": total,
	})
}

// HTTPRequest logs a served admin or upgrade request.
func (l *Logger) HTTPRequest(method, path string, status int, duration time.Duration, clientIP string) {
	fields := map[string]interface{}{
		"method":    method,
		"path":      path,
		"status":    status,
		"duration":  duration,
		"client_ip": clientIP,
	}
	switch {
	case status >= 500:
		l.Error("http_request", fields)
	case status >= 400:
		l.Warn("http_request", fields)
	default:
		l.Debug("http_request", fields)
	}
}
