// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tessera-net/tessera/lib/config"
	"github.com/tessera-net/tessera/lib/node"
	"github.com/tessera-net/tessera/lib/process"
	"github.com/tessera-net/tessera/lib/service"
	"github.com/tessera-net/tessera/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("tessera-node", pflag.ContinueOnError)
	var (
		showVersion bool
		configPath  string
		logLevel    string
		logFormat   string
	)
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	flags.StringVarP(&configPath, "config", "c", "", "config file (default $"+config.EnvVar+", or built-in defaults)")
	flags.StringVar(&logLevel, "log-level", "", "override log.level: debug, info, warn, or error")
	flags.StringVar(&logFormat, "log-format", "", "override log.format: json or text")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &process.ExitError{Code: 2, Err: err}
	}

	if showVersion {
		fmt.Printf("tessera-node %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := service.NewLogger(service.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}
	logger.Info("starting tessera-node", "version", version.Short(), "environment", cfg.Environment,
		"store", cfg.Store.Backend, "chunks", cfg.Paths.Chunks)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := node.New(node.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		server.Stop()
		return err
	}
	if err := server.Wait(ctx); err != nil {
		return err
	}
	logger.Info("tessera-node stopped")
	return nil
}

// loadConfig reads the --config file, else the file named by
// TESSERA_CONFIG, else falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	cfg := config.Default()
	cfg.ExpandVariables()
	return cfg, nil
}
