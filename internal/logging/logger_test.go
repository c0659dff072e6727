package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: slog.LevelInfo, AppEnv: "prod", Version: "1.2.3", AppName: "airwatch", Out: &buf})

	logger.Info("hello", "k", "v")
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for k, want := range map[string]string{"msg": "hello", "app": "airwatch", "version": "1.2.3", "env": "prod", "k": "v"} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %q", k, rec[k], want)
		}
	}
}

func TestNew_DevUsesTint(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: slog.LevelDebug, AppEnv: "dev", Version: "dev", AppName: "airwatch", Out: &buf})

	logger.Debug("tinted")

	out := buf.String()
	if !strings.Contains(out, "tinted") || !strings.Contains(out, "airwatch") {
		t.Errorf("output = %q, want message and app attr", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("dev output looks like JSON: %q", out)
	}
}
