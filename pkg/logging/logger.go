// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for Lattice components.
//
// Records are written as JSON lines to stderr; passing a LogDir also
// writes the same records to a file named {service}_{date}.log in that
// directory. Logger wraps slog and is safe for concurrent use.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level names accepted by Config.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config controls logger construction.
type Config struct {
	Level   string
	LogDir  string // optional; enables file logging, supports ~ expansion
	Service string
}

// Logger is a leveled structured logger with an optional file sink.
type Logger struct {
	*slog.Logger
	mu   sync.Mutex
	file *os.File
}

// Default returns a stderr-only logger at info level.
func Default() *Logger {
	l, _ := New(Config{Level: LevelInfo, Service: "cli"})
	return l
}

// New builds a Logger from config. File-sink failures degrade to
// stderr-only rather than failing the caller.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)
	writers := []io.Writer{os.Stderr}

	var file *os.File
	if cfg.LogDir != "" {
		dir := expandHome(cfg.LogDir)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(dir, name),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err == nil {
				file = f
				writers = append(writers, f)
			}
		}
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...),
		&slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Close flushes and closes the file sink if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
