package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
)

func TestNewLoggerRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{
		Profile:       config.ProfileTest,
		Service:       config.ServiceConfig{Name: "buster-api"},
		Observability: config.ObservabilityConfig{LogLevel: slog.LevelInfo, LogJSON: true},
	}
	logger := NewLogger(cfg, &buf)

	logger.Info("connect",
		slog.String("host", "db.internal"),
		slog.String("password", "hunter2"),
		slog.Group("credential", slog.String("ssh_private_key", "-----BEGIN"), slog.String("Token", "abc")),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["service"] != "buster-api" || record["profile"] != "test" || record["host"] != "db.internal" {
		t.Fatalf("record = %#v", record)
	}
	if record["password"] != redactedValue {
		t.Fatalf("password = %v", record["password"])
	}
	group, _ := record["credential"].(map[string]any)
	if group["ssh_private_key"] != redactedValue || group["Token"] != redactedValue {
		t.Fatalf("credential group = %#v", group)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Config{Observability: config.ObservabilityConfig{LogLevel: slog.LevelWarn}}, &buf)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}
}
