package logger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFileLogger(t *testing.T, level Level, maxSize int64) (*DefaultLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "repair.log")
	logger, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: maxSize,
		MaxBackups:  3,
		Level:       level,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, logPath
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestLogLevels(t *testing.T) {
	logger, logPath := newFileLogger(t, LevelDebug, 1024*1024)

	logger.Debug("scanning script block", String("pass", "delimiters"))
	logger.Info("fix applied", Int("fixes", 2))
	logger.Warn("oracle unavailable", Bool("fallback", true))
	logger.Error("pass failed", errors.New("boom"), Float64("similarity", 0.71))
	logger.Close()

	logContent := readLog(t, logPath)
	for _, want := range []string{
		"[DEBUG] scanning script block pass=delimiters",
		"[INFO] fix applied fixes=2",
		"[WARN] oracle unavailable fallback=true",
		"[ERROR] pass failed error=\"boom\" similarity=0.71",
	} {
		if !strings.Contains(logContent, want) {
			t.Errorf("log missing %q\n%s", want, logContent)
		}
	}
	if strings.Contains(logContent, "Stack trace:") {
		t.Error("stack traces should be off by default")
	}
}

func TestStackTraces(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "trace.log")
	logger, err := NewDefaultLogger(&Config{LogFilePath: logPath, Level: LevelDebug, StackTraces: true})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.Error("pass failed", errors.New("boom"))
	logger.Close()

	if !strings.Contains(readLog(t, logPath), "Stack trace:") {
		t.Error("Stack trace not found for error level")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	logger, logPath := newFileLogger(t, LevelWarn, 1024*1024)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", nil)
	logger.Close()

	logContent := readLog(t, logPath)
	if strings.Contains(logContent, "[DEBUG]") || strings.Contains(logContent, "[INFO]") {
		t.Error("Debug and info messages should be filtered out")
	}
	if !strings.Contains(logContent, "[WARN]") || !strings.Contains(logContent, "[ERROR]") {
		t.Error("Warn and error messages should be present")
	}
}

func TestSetLevel(t *testing.T) {
	logger, logPath := newFileLogger(t, LevelDebug, 1024*1024)

	logger.Debug("debug before")
	logger.SetLevel(LevelError)
	logger.Debug("debug after")
	logger.Warn("warn after")
	logger.Error("error after", nil)
	logger.Close()

	logContent := readLog(t, logPath)
	if !strings.Contains(logContent, "debug before") {
		t.Error("Debug before level change should be present")
	}
	if strings.Contains(logContent, "debug after") || strings.Contains(logContent, "warn after") {
		t.Error("Messages below the new level should be filtered")
	}
	if !strings.Contains(logContent, "error after") {
		t.Error("Error after level change should be present")
	}
}

func TestLogRotation(t *testing.T) {
	logger, logPath := newFileLogger(t, LevelDebug, 100)

	for i := 0; i < 20; i++ {
		logger.Info("This is a test message that should trigger log rotation eventually")
	}
	logger.Close()

	if _, err := os.Stat(logPath + ".1"); os.IsNotExist(err) {
		t.Error("Backup log file was not created after rotation")
	}
}

func TestLogRotationKeepsBackups(t *testing.T) {
	logger, logPath := newFileLogger(t, LevelDebug, 100)

	for i := 0; i < 50; i++ {
		logger.Info("This is a test message that should trigger log rotation eventually", Int("i", i))
	}
	logger.Close()

	for i := 1; i <= 3; i++ {
		if _, err := os.Stat(fmt.Sprintf("%s.%d", logPath, i)); err != nil {
			t.Errorf("backup %d missing: %v", i, err)
		}
	}
	if _, err := os.Stat(logPath + ".4"); !os.IsNotExist(err) {
		t.Error("more backups kept than configured")
	}
	if !strings.Contains(readLog(t, logPath), "i=49") {
		t.Error("latest entry should be in the live file")
	}
}

func TestCloseKeepsConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := newFileLogger(t, LevelInfo, 0)
	logger.sinks = append(logger.sinks, &buf)
	logger.Close()

	logger.Info("after close")
	if !strings.Contains(buf.String(), "after close") {
		t.Errorf("console output stopped after Close: %q", buf.String())
	}
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, LevelInfo)

	logger.Debug("hidden")
	logger.Info("backup written", String("path", "sketch.html.backup"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug entry should be filtered")
	}
	if !strings.Contains(out, "backup written path=sketch.html.backup") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestGlobalLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "global.log")
	if err := Init(&Config{LogFilePath: logPath, Level: LevelDebug}); err != nil {
		t.Fatalf("Failed to initialize global logger: %v", err)
	}

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("global test error"))
	Close()

	logContent := readLog(t, logPath)
	for _, want := range []string{"global debug", "global info", "global warn", "global error"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("%q not found in global log", want)
		}
	}
}

func TestNoopLogger(t *testing.T) {
	SetGlobalLogger(nil)

	Debug("test")
	Info("test")
	Warn("test")
	Error("test", nil)

	if GetLogger() == nil {
		t.Error("GetLogger should return noop logger, not nil")
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	rec.Info("fix applied", String("pass", "markup"), Int("fixes", 1))
	rec.SetLevel(LevelWarn)
	rec.Info("dropped")
	rec.Warn("oracle failed", Err(errors.New("timeout")))

	entries := rec.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if v, ok := entries[0].Field("pass"); !ok || v != "markup" {
		t.Errorf("pass field = %v, %v", v, ok)
	}
	if !rec.Contains("oracle failed") || rec.Contains("dropped") {
		t.Error("Contains() reported unexpected entries")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestErrFieldWithNil(t *testing.T) {
	field := Err(nil)
	if field.Key != "error" || field.Value != nil {
		t.Errorf("Err(nil) = %+v, want {error <nil>}", field)
	}
}

func TestLogDirectoryCreation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "dir", "test.log")

	logger, err := NewDefaultLogger(&Config{LogFilePath: logPath, Level: LevelDebug})
	if err != nil {
		t.Fatalf("Failed to create logger with nested directory: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(filepath.Dir(logPath)); os.IsNotExist(err) {
		t.Error("Nested log directory was not created")
	}
}
