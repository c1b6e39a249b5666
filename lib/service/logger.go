// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogOptions selects the handler built by NewLogger.
type LogOptions struct {
	// Level is "debug", "info", "warn", or "error". Empty means info.
	Level string

	// Format is "json" (the default) or "text".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger builds the process logger and installs it as the slog
// default, so libraries that log through slog's package functions
// end up in the same stream.
func NewLogger(options LogOptions) (*slog.Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}
	output := options.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(output, handlerOptions)
	case "text":
		handler = slog.NewTextHandler(output, handlerOptions)
	default:
		return nil, fmt.Errorf("unknown log format %q (want json or text)", options.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel parses a level name.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
