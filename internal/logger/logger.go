// Package logger is the process-wide structured logger. Every line carries
// the agent and command the process was started for, so one rotated file can
// be shared by several agents on the same machine.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/fieldcall/internal/constants"
)

var (
	// Logger is the global logger instance
	Logger *log.Logger
)

// Config holds logger configuration
type Config struct {
	Debug     bool
	ConfigDir string
	// Stderr mirrors log output to stderr even outside debug mode.
	// Long-running commands such as "due watch" set it.
	Stderr bool

	// Agent and Command are attached to every entry when set.
	Agent   string
	Command string

	// Format is text, json or logfmt. Text is used when empty.
	Format string
	// Rotation of fieldcall.log; zero values take the package defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogPath is where Init writes the log file for configDir.
func LogPath(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	path := LogPath(cfg.ConfigDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(cfg.MaxSizeMB, constants.DefaultLogMaxSizeMB),
		MaxBackups: orDefault(cfg.MaxBackups, constants.DefaultLogMaxBackups),
		MaxAge:     orDefault(cfg.MaxAgeDays, constants.DefaultLogMaxAgeDays),
		Compress:   true,
	}

	var writer io.Writer = fileWriter
	if cfg.Debug || cfg.Stderr {
		writer = io.MultiWriter(os.Stderr, fileWriter)
	}

	l := log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level(cfg),
		Prefix:          constants.AppName,
		Formatter:       formatter(cfg.Format),
	})

	var fields []interface{}
	if cfg.Agent != "" {
		fields = append(fields, "agent", cfg.Agent)
	}
	if cfg.Command != "" {
		fields = append(fields, "command", cfg.Command)
	}
	if len(fields) > 0 {
		l = l.With(fields...)
	}
	Logger = l
	return nil
}

func level(cfg Config) log.Level {
	switch {
	case cfg.Debug:
		return log.DebugLevel
	case cfg.Stderr:
		return log.InfoLevel
	}
	return log.WarnLevel
}

func formatter(name string) log.Formatter {
	switch name {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	}
	return log.TextFormatter
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Debug logs a debug message
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info logs an info message
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn logs a warning message
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error logs an error message
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
