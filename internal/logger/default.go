package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

const timeFormat = "2006-01-02 15:04:05.000"

// Config configures a DefaultLogger.
type Config struct {
	LogFilePath   string // empty disables file output
	MaxFileSize   int64  // bytes before the file is rotated, 0 never rotates
	MaxBackups    int    // rotated files kept as <file>.1 .. <file>.N
	Level         Level
	EnableConsole bool // also write to stderr
	StackTraces   bool // append the caller stack to Error entries
}

// DefaultConfig logs info and above to stderr only.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize:   10 << 20,
		MaxBackups:    5,
		Level:         LevelInfo,
		EnableConsole: true,
	}
}

// DefaultLogger writes one line per entry:
//
//	2006-01-02 15:04:05.000 [LEVEL] message error="..." key=value
type DefaultLogger struct {
	mu     sync.Mutex
	level  Level
	traces bool
	file   *rotatingFile
	sinks  []io.Writer
}

// NewDefaultLogger opens the log file named by config, if any, creating its
// directory.
func NewDefaultLogger(config *Config) (*DefaultLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	l := &DefaultLogger{level: config.Level, traces: config.StackTraces}
	if config.LogFilePath != "" {
		f, err := openRotatingFile(config.LogFilePath, config.MaxFileSize, config.MaxBackups)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.sinks = append(l.sinks, f)
	}
	if config.EnableConsole {
		l.sinks = append(l.sinks, os.Stderr)
	}
	return l, nil
}

// NewConsoleLogger creates a logger that only writes to w.
func NewConsoleLogger(w io.Writer, level Level) *DefaultLogger {
	return &DefaultLogger{level: level, sinks: []io.Writer{w}}
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.write(LevelDebug, msg, nil, fields) }
func (l *DefaultLogger) Info(msg string, fields ...Field)  { l.write(LevelInfo, msg, nil, fields) }
func (l *DefaultLogger) Warn(msg string, fields ...Field)  { l.write(LevelWarn, msg, nil, fields) }

func (l *DefaultLogger) Error(msg string, err error, fields ...Field) {
	l.write(LevelError, msg, err, fields)
}

func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the log file. Console output keeps working.
func (l *DefaultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	for i, w := range l.sinks {
		if w == io.Writer(l.file) {
			l.sinks = append(l.sinks[:i], l.sinks[i+1:]...)
			break
		}
	}
	l.file = nil
	return err
}

func (l *DefaultLogger) write(level Level, msg string, err error, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] %s", time.Now().Format(timeFormat), level, msg)
	if err != nil {
		fmt.Fprintf(&sb, " error=%q", err.Error())
	}
	for _, f := range fields {
		fmt.Fprintf(&sb, " %s=%v", f.Key, f.Value)
	}
	sb.WriteByte('\n')
	if level == LevelError && l.traces {
		writeStack(&sb)
	}

	line := []byte(sb.String())
	for _, w := range l.sinks {
		w.Write(line)
	}
}

// writeStack appends the caller frames outside this package and the runtime,
// at most a dozen of them.
func writeStack(sb *strings.Builder) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	sb.WriteString("Stack trace:\n")
	shown := 0
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") && !strings.HasPrefix(fr.Function, "testing.") {
			fmt.Fprintf(sb, "  %s:%d %s\n", fr.File, fr.Line, fr.Function)
			if shown++; shown == 12 {
				break
			}
		}
		if !more {
			break
		}
	}
}
