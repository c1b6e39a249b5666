// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tessera-net/tessera/cmd/tessera/cli"
	"github.com/tessera-net/tessera/lib/process"
	"github.com/tessera-net/tessera/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		process.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCommand(stdout, stderr).Execute(ctx, args)
}

func rootCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "tessera",
		Output: stderr,
		Description: `tessera: publish files to a tessera node.

Files are split into fixed-size chunks, committed to with a Merkle
root (the content id), and recorded by the node, which announces them
to peers. Commands talk to the node's local socket; peer commands talk
to any node's peer port directly.`,
		Subcommands: []*cli.Command{
			publishCommand(stdout),
			existsCommand(stdout),
			proofCommand(stdout),
			verifyCommand(stdout),
			statusCommand(stdout),
			peerCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Fprintf(stdout, "tessera %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
