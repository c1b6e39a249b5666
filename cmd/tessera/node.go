// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/tessera-net/tessera/cmd/tessera/cli"
	"github.com/tessera-net/tessera/lib/compress"
	"github.com/tessera-net/tessera/lib/merkle"
	"github.com/tessera-net/tessera/lib/process"
	"github.com/tessera-net/tessera/lib/publish"
	"github.com/tessera-net/tessera/lib/service"
)

// endpointEnv overrides the default node socket.
const endpointEnv = "TESSERA_ENDPOINT"

const defaultEndpoint = "127.0.0.1:7420"

// NodeConnection holds the flags shared by commands that talk to the
// node socket.
type NodeConnection struct {
	Endpoint string        `flag:"endpoint" desc:"node socket: host:port, tcp://host:port, or a unix socket path (default $TESSERA_ENDPOINT or 127.0.0.1:7420)"`
	Timeout  time.Duration `flag:"timeout" default:"45s" desc:"how long to wait for the node to answer"`
}

func (c *NodeConnection) client() (*service.Client, error) {
	address := c.Endpoint
	if address == "" {
		address = os.Getenv(endpointEnv)
	}
	if address == "" {
		address = defaultEndpoint
	}
	endpoint, err := service.ParseEndpoint(address)
	if err != nil {
		return nil, cli.Usagef("%v", err)
	}
	client := service.NewClient(endpoint)
	if c.Timeout > 0 {
		client = client.WithResponseTimeout(c.Timeout)
	}
	return client, nil
}

// --- publish ---

type publishParams struct {
	NodeConnection
	cli.JSONOutput
	Public   bool   `flag:"public" desc:"mark the content as public"`
	Inline   bool   `flag:"inline" desc:"send the file content over the socket instead of its path"`
	Encoding string `flag:"encoding" default:"auto" desc:"inline payload encoding: none, lz4, zstd, or auto"`
	Wait     bool   `flag:"wait" desc:"return only after the record is durable"`
}

func publishCommand(stdout io.Writer) *cli.Command {
	var params publishParams
	return &cli.Command{
		Name:    "publish",
		Summary: "Chunk a file and record it on the node",
		Usage:   "tessera publish <file> [flags]",
		Description: `Publish a file. The node splits it into chunks under its chunks
directory, computes the Merkle root and per-chunk proofs, and queues the
record for the store. The content id is printed on success.

By default the node reads the file itself, so the path must be readable
by the node. With --inline the CLI sends the bytes, compressed with
--encoding, for nodes on another machine or in another sandbox.`,
		Examples: []cli.Example{
			{Description: "Publish a file and wait until it is recorded", Command: "tessera publish ./dataset.tar --wait"},
			{Description: "Send the content to a remote node", Command: "tessera publish ./notes.txt --inline --endpoint tcp://node:7420"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("publish", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("publish takes exactly one file")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			fields, err := params.requestFields(args[0])
			if err != nil {
				return err
			}

			var response publish.PublishResponse
			if err := client.Call(ctx, publish.ActionPublish, fields, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, response); done {
				return err
			}

			fmt.Fprintln(stdout, response.ContentID)
			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "Chunks:\t%d\n", response.NumberOfChunks)
			fmt.Fprintf(writer, "Size:\t%s\n", cli.FormatSize(response.Size))
			fmt.Fprintf(writer, "Directory:\t%s\n", response.ChunksDirectory)
			switch {
			case response.AlreadyPublished:
				fmt.Fprintf(writer, "Record:\talready published\n")
			case response.Persisted:
				fmt.Fprintf(writer, "Record:\tpersisted\n")
			default:
				fmt.Fprintf(writer, "Record:\tqueued\n")
			}
			return writer.Flush()
		},
	}
}

func (p *publishParams) requestFields(path string) (map[string]any, error) {
	fields := map[string]any{"public": p.Public, "wait": p.Wait}
	if !p.Inline {
		absolute, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		fields["path"] = absolute
		return fields, nil
	}

	encoding, err := compress.ParseEncoding(p.Encoding)
	if err != nil {
		return nil, cli.Usagef("%v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	encoded, applied, err := compress.Encode(data, encoding)
	if err != nil {
		return nil, err
	}
	fields["content"] = encoded
	fields["encoding"] = string(applied)
	fields["size"] = len(data)
	return fields, nil
}

// --- exists ---

type existsParams struct {
	NodeConnection
	cli.JSONOutput
}

func existsCommand(stdout io.Writer) *cli.Command {
	var params existsParams
	return &cli.Command{
		Name:    "exists",
		Summary: "Check whether content is published",
		Usage:   "tessera exists <content-id> [flags]",
		Description: `Check whether the node holds a record for a content id. Exits 0 if
it does and 1 if it does not.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("exists", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("exists takes exactly one content id")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			var response publish.ExistsResponse
			err = client.Call(ctx, publish.ActionExists, map[string]any{"content_id": args[0]}, &response)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, response); done {
				if err == nil && !response.Exists {
					err = &process.ExitError{Code: 1, Err: fmt.Errorf("%s is not published", args[0])}
				}
				return err
			}
			if !response.Exists {
				return &process.ExitError{Code: 1, Err: fmt.Errorf("%s is not published", args[0])}
			}
			fmt.Fprintf(stdout, "%s published\n", args[0])
			return nil
		},
	}
}

// --- proof ---

type proofParams struct {
	NodeConnection
	cli.JSONOutput
}

func proofCommand(stdout io.Writer) *cli.Command {
	var params proofParams
	return &cli.Command{
		Name:    "proof",
		Summary: "Show the Merkle proof of one chunk",
		Usage:   "tessera proof <content-id> <index> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("proof", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.Usagef("proof takes a content id and a chunk index")
			}
			var index uint64
			if _, err := fmt.Sscan(args[1], &index); err != nil {
				return cli.Usagef("invalid chunk index %q", args[1])
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			response, err := fetchProof(ctx, client, args[0], index)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, response); done {
				return err
			}
			proof, err := merkle.DecodeProof(response.Proof)
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "Chunk:\t%d of %d\n", proof.Index, proof.LeafCount)
			fmt.Fprintf(writer, "Path:\t%s\n", response.ChunkPath)
			for level, step := range proof.Steps {
				fmt.Fprintf(writer, "Step %d:\t%s %s\n", level, step.Side, step.Sibling)
			}
			return writer.Flush()
		},
	}
}

func fetchProof(ctx context.Context, client *service.Client, contentID string, index uint64) (*publish.ProofResponse, error) {
	var response publish.ProofResponse
	err := client.Call(ctx, publish.ActionProof, map[string]any{"content_id": contentID, "index": index}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// --- verify ---

type verifyParams struct {
	NodeConnection
}

func verifyCommand(stdout io.Writer) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check chunks on disk against their proofs",
		Usage:   "tessera verify <content-id> [index...] [flags]",
		Description: `Read chunk files from the node's chunks directory and check each
against its recorded Merkle proof and the content id. With no indices
every chunk is checked. Must run where the chunk paths are readable.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Usagef("verify takes a content id")
			}
			root, err := merkle.ParseHash(args[0])
			if err != nil {
				return cli.Usagef("invalid content id: %v", err)
			}
			client, err := params.client()
			if err != nil {
				return err
			}

			indices, err := parseIndices(args[1:])
			if err != nil {
				return err
			}
			if indices == nil {
				first, err := fetchProof(ctx, client, args[0], 0)
				if err != nil {
					return err
				}
				for index := range first.NumberOfChunks {
					indices = append(indices, index)
				}
			}

			var failures int
			for _, index := range indices {
				if err := verifyChunk(ctx, client, root, index); err != nil {
					fmt.Fprintf(stdout, "chunk %d: FAILED: %v\n", index, err)
					failures++
					continue
				}
				fmt.Fprintf(stdout, "chunk %d: ok\n", index)
			}
			if failures > 0 {
				return &process.ExitError{Code: 1, Err: fmt.Errorf("%d of %d chunks failed verification", failures, len(indices))}
			}
			return nil
		},
	}
}

func parseIndices(args []string) ([]uint64, error) {
	var indices []uint64
	for _, arg := range args {
		var index uint64
		if _, err := fmt.Sscan(arg, &index); err != nil {
			return nil, cli.Usagef("invalid chunk index %q", arg)
		}
		indices = append(indices, index)
	}
	return indices, nil
}

var errProofMismatch = errors.New("chunk does not match its proof")

func verifyChunk(ctx context.Context, client *service.Client, root merkle.Hash, index uint64) error {
	response, err := fetchProof(ctx, client, root.String(), index)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(response.ChunkPath)
	if err != nil {
		return err
	}
	if !merkle.Verify(root, index, merkle.HashLeaf(data), response.NumberOfChunks, response.Proof) {
		return errProofMismatch
	}
	return nil
}

// --- status ---

type statusParams struct {
	NodeConnection
	cli.JSONOutput
}

func statusCommand(stdout io.Writer) *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show node services and publish queue",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.Usagef("status takes no arguments")
			}
			client, err := params.client()
			if err != nil {
				return err
			}
			var response publish.StatusResponse
			if err := client.Call(ctx, publish.ActionStatus, nil, &response); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, response); done {
				return err
			}

			writer := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "Uptime:\t%s\n", time.Duration(response.UptimeSeconds)*time.Second)
			fmt.Fprintf(writer, "Published files:\t%d\n", response.PublishedFiles)
			fmt.Fprintf(writer, "Provided to peers:\t%d\n", response.ProvidedContent)
			fmt.Fprintf(writer, "Queue:\t%d/%d\n", response.QueueLength, response.QueueCapacity)
			fmt.Fprintf(writer, "Persisted since start:\t%d\n", response.PersistedSince)
			fmt.Fprintf(writer, "Failed writes:\t%d\n", response.FailedWrites)
			fmt.Fprintln(writer)
			fmt.Fprintf(writer, "TASK\tSTATE\tERROR\n")
			for _, task := range response.Tasks {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", task.Name, task.State, task.Error)
			}
			return writer.Flush()
		},
	}
}
