package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/menta2k/image-editor/internal/config"
)

// Level orders log severities.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// ParseLevel parses "info", "warning" or "error".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// FileNames are the per-level log files written under the log directory.
var FileNames = []string{"info.log", "warning.log", "error.log"}

// Logger provides leveled logging (info/warning/error) to the console and,
// when a directory is configured, to one file per level.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      Level
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// New creates a Logger writing to stdout and stderr, plus per-level files
// under cfg.Dir when it is set.
func New(cfg config.LogConfig) (*Logger, error) {
	return NewWithWriters(cfg, os.Stdout, os.Stderr)
}

// NewWithWriters creates a Logger with custom console writers.
func NewWithWriters(cfg config.LogConfig, stdout, stderr io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	l := &Logger{level: level, logDir: cfg.Dir}

	infoWriter, warningWriter, errorWriter := stdout, stdout, stderr
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		files := make([]*os.File, 0, 3)
		for _, name := range FileNames {
			f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				for _, open := range files {
					open.Close()
				}
				return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
			}
			files = append(files, f)
		}
		l.files = files
		infoWriter = io.MultiWriter(stdout, files[0])
		warningWriter = io.MultiWriter(stdout, files[1])
		errorWriter = io.MultiWriter(stderr, files[2])
	}

	l.infoLog = log.New(infoWriter, "INFO    ", log.Ldate|log.Ltime|log.Lmsgprefix)
	l.warningLog = log.New(warningWriter, "WARNING ", log.Ldate|log.Ltime|log.Lmsgprefix)
	l.errorLog = log.New(errorWriter, "ERROR   ", log.Ldate|log.Ltime|log.Lmsgprefix)
	return l, nil
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(LevelInfo, l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.write(LevelWarning, l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(LevelError, l.errorLog, format, v...)
}

func (l *Logger) write(level Level, out *log.Logger, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out.Printf(format, v...)
}

// CleanLogs truncates the named log file in the log directory.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return os.Truncate(filepath.Join(l.logDir, filepath.Base(fileName)), 0)
}

// Close closes the log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}
