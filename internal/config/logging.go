package config

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogSink is the shared destination of every component logger. All loggers
// built from one sink write through a single rotating file.
type LogSink struct {
	w      io.Writer
	closer io.Closer
}

// OpenLog builds the sink described by lc. quiet discards everything.
func OpenLog(lc LogConfig, quiet bool) (*LogSink, error) {
	if quiet {
		return &LogSink{w: io.Discard}, nil
	}
	if lc.File == "" {
		return &LogSink{w: os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o750); err != nil {
		return nil, err
	}
	rotating := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
	return &LogSink{w: rotating, closer: rotating}, nil
}

// Logger returns a logger with the given prefix, e.g. "[daemon] ".
func (s *LogSink) Logger(prefix string) *log.Logger {
	return log.New(s.w, prefix, log.LstdFlags)
}

// Writer returns the underlying writer.
func (s *LogSink) Writer() io.Writer { return s.w }

// Close releases the log file, if any.
func (s *LogSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
