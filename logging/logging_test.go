package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vinayprograms/pulselink/config"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core)), logs
}

func TestLogger_Levels(t *testing.T) {
	logger, logs := observed(zapcore.InfoLevel)

	logger.Debug("debug message")
	if logs.Len() != 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	logger.Info("info message")
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if logs.All()[0].Message != "info message" {
		t.Errorf("message = %q", logs.All()[0].Message)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	base, logs := observed(zapcore.DebugLevel)
	logger := base.WithComponent("acceptor").WithConnection("c-1")

	logger.Info("test message")

	ctx := logs.All()[0].ContextMap()
	if ctx["component"] != "acceptor" {
		t.Errorf("component = %v, want acceptor", ctx["component"])
	}
	if ctx["conn"] != "c-1" {
		t.Errorf("conn = %v, want c-1", ctx["conn"])
	}
}

func TestLogger_Fields(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	logger.Warn("with fields", map[string]interface{}{
		"attempt": 3,
		"delay":   time.Second,
		"error":   fmt.Errorf("refused"),
	})

	ctx := logs.All()[0].ContextMap()
	if ctx["attempt"] != int64(3) {
		t.Errorf("attempt = %v (%T)", ctx["attempt"], ctx["attempt"])
	}
	if ctx["delay"] != time.Second {
		t.Errorf("delay = %v", ctx["delay"])
	}
	if ctx["error"] != "refused" {
		t.Errorf("error = %v", ctx["error"])
	}
}

func TestLogger_EventHelpers(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	logger.StateChange("c-1", "open", "reconnect_wait", "closed 1006")
	logger.ReconnectScheduled("c-1", 1, time.Second)
	logger.ParseFailure("c-1", 9, fmt.Errorf("bad json"))
	logger.SendDropped("c-1", "data", "closed")
	logger.HTTPRequest("GET", "/ws", 500, time.Millisecond, "127.0.0.1")

	entries := logs.All()
	want := []struct {
		msg   string
		level zapcore.Level
	}{
		{"state_change", zapcore.InfoLevel},
		{"reconnect_scheduled", zapcore.InfoLevel},
		{"parse_failure", zapcore.WarnLevel},
		{"send_dropped", zapcore.WarnLevel},
		{"http_request", zapcore.ErrorLevel},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Message != w.msg || entries[i].Level != w.level {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, entries[i].Message, entries[i].Level, w.msg, w.level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pulselink.log")

	logger, err := Setup(config.LogConfig{
		Level:   "debug",
		Format:  "json",
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}

	logger.WithComponent("test").Debug("written to file", map[string]interface{}{"k": "v"})
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestSetup_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")

	logger, err := Setup(config.LogConfig{Level: "warn", Format: "json", Outputs: []string{path}})
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn entry should be written")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("nothing happens")
	logger.WithComponent("x").Info("still nothing")
}
