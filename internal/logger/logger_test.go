package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestInit(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")

	if err := Init(Config{ConfigDir: configDir}); err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	logDir := filepath.Join(configDir, "logs")
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		t.Errorf("Log directory was not created: %s", logDir)
	}

	if Logger == nil {
		t.Fatal("Logger is nil after initialization")
	}
	if Logger.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v, want %v", Logger.GetLevel(), log.WarnLevel)
	}

	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message", "agent", "a-1")
	Error("Test error message")
}

func TestInitLevels(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want log.Level
	}{
		{"debug", Config{Debug: true}, log.DebugLevel},
		{"stderr", Config{Stderr: true}, log.InfoLevel},
		{"debug wins over stderr", Config{Debug: true, Stderr: true}, log.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ConfigDir = t.TempDir()
			if err := Init(tt.cfg); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			if Logger.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", Logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestInitAttachesAgentAndCommand(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{ConfigDir: dir, Agent: "a-7", Command: "migrate"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Warn("quota regenerated", "date", "2024-03-04")

	data, err := os.ReadFile(LogPath(dir))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	for _, want := range []string{"quota regenerated", "agent=a-7", "command=migrate", "date=2024-03-04"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log missing %q:\n%s", want, data)
		}
	}
}

func TestInitJSONFormat(t *testing.T) {
	dir := t.TempDir()
	if err := Init(Config{ConfigDir: dir, Agent: "a-7", Format: "json"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Error("survey dispatch failed", "activity", "act-1")

	data, err := os.ReadFile(LogPath(dir))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	if entry["agent"] != "a-7" || entry["activity"] != "act-1" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["command"]; ok {
		t.Errorf("entry has command field without one configured: %v", entry)
	}
}

func TestLogFunctionsWithoutInit(t *testing.T) {
	Logger = nil

	// These should not panic when Logger is nil
	Debug("Test debug message")
	Info("Test info message")
	Warn("Test warning message")
	Error("Test error message")
}
