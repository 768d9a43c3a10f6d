// Package logging wires the standard logger to stderr, the in-memory
// buffer, and an optional rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultBufferLines = 2000

type Config struct {
	// File enables rotation through lumberjack when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup redirects the standard logger. The returned closer flushes the
// rotating file, if any.
func Setup(cfg Config, buf *Buffer) io.Closer {
	writers := []io.Writer{os.Stderr}
	if buf != nil {
		writers = append(writers, buf)
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.File); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		if lj.MaxSize <= 0 {
			lj.MaxSize = 32
		}
		writers = append(writers, lj)
		closer = lj
	}

	log.SetOutput(io.MultiWriter(writers...))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
