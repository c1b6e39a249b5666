// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/tessera-net/tessera/cmd/tessera/cli"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/peer"
	"github.com/tessera-net/tessera/lib/process"
	"github.com/tessera-net/tessera/transport"
)

type peerParams struct {
	cli.JSONOutput
	PeerID  string        `flag:"peer-id" desc:"expected peer id; responses signed by another key are rejected"`
	Timeout time.Duration `flag:"timeout" default:"10s" desc:"connect timeout"`
}

func (p *peerParams) client(address string) *peer.Client {
	client := peer.NewClient(&transport.TCPDialer{Timeout: p.Timeout}, address)
	if p.PeerID != "" {
		client = client.WithPeerID(p.PeerID)
	}
	return client
}

func peerCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "peer",
		Summary: "Query another node's peer endpoint",
		Subcommands: []*cli.Command{
			peerIdentifyCommand(stdout),
			peerHasCommand(stdout),
			peerProvidedCommand(stdout),
		},
		Examples: []cli.Example{
			{Description: "Check who is listening on a peer port", Command: "tessera peer identify 10.0.0.7:7421"},
		},
	}
}

func peerIdentifyCommand(stdout io.Writer) *cli.Command {
	var params peerParams
	return &cli.Command{
		Name:    "identify",
		Summary: "Challenge a peer to prove its identity",
		Usage:   "tessera peer identify <host:port> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("identify", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("identify takes a peer address")
			}
			peerID, err := params.client(args[0]).Identify(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, map[string]string{"peer_id": peerID}); done {
				return err
			}
			fmt.Fprintln(stdout, peerID)
			return nil
		},
	}
}

func peerHasCommand(stdout io.Writer) *cli.Command {
	var params peerParams
	return &cli.Command{
		Name:    "has",
		Summary: "Ask a peer whether it provides content",
		Usage:   "tessera peer has <host:port> <content-id> [flags]",
		Description: `Ask a peer for the record of one content id. Exits 0 if the peer
provides it and 1 if it does not.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("has", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.Usagef("has takes a peer address and a content id")
			}
			id, err := merkle.ParseHash(args[1])
			if err != nil {
				return cli.Usagef("invalid content id: %v", err)
			}
			info, err := params.client(args[0]).Content(ctx, id)
			if errors.Is(err, peer.ErrNotProvided) {
				return &process.ExitError{Code: 1, Err: fmt.Errorf("%s does not provide %s", args[0], id)}
			}
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, info); done {
				return err
			}
			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "Content:\t%s\n", info.ContentID)
			fmt.Fprintf(writer, "Chunks:\t%d x %s\n", info.NumberOfChunks, cli.FormatSize(int64(info.ChunkSize)))
			fmt.Fprintf(writer, "Size:\t%s\n", cli.FormatSize(info.Size))
			fmt.Fprintf(writer, "Public:\t%t\n", info.Public)
			fmt.Fprintf(writer, "Published:\t%s\n", info.PublishedAt.UTC().Format(time.RFC3339))
			return writer.Flush()
		},
	}
}

func peerProvidedCommand(stdout io.Writer) *cli.Command {
	var params peerParams
	return &cli.Command{
		Name:    "provided",
		Summary: "List the content a peer provides",
		Usage:   "tessera peer provided <host:port> [flags]",
		Description: `Fetch the peer's signed listing of provided content ids. The
signature is checked against the peer id named in the listing, or
against --peer-id when given.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("provided", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("provided takes a peer address")
			}
			listing, err := params.client(args[0]).Provided(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, listing); done {
				return err
			}
			fmt.Fprintf(stdout, "# %s at %s\n", listing.PeerID, listing.IssuedAt.UTC().Format(time.RFC3339))
			for _, id := range listing.ContentIDs {
				fmt.Fprintln(stdout, id)
			}
			return nil
		},
	}
}
