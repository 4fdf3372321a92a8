// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete chronik CLI command tree.
package commands

import (
	"fmt"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/version"
)

// Root builds and returns the complete chronik CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "chronik",
		Description: `Chronik: operational audit ledger.

Record automation runs and audit snapshots into a dedicated ledger
branch of the project's own git repository, capture session traces
from the live event bus, and synchronize history between machines
with ordinary git push and pull.`,
		Subcommands: []*cli.Command{
			setupCommand(),
			recordCommand(),
			runsCommand(),
			auditCommand(),
			traceCommand(),
			syncCommand(),
			serveCommand(),
			snapshotCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("chronik %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Initialize the ledger branch and checkout (run once per clone)",
				Command:     "chronik setup",
			},
			{
				Description: "Record a completed deploy run",
				Command:     "chronik record --type deploy --status ok --summary \"api v2.3 rolled out\"",
			},
			{
				Description: "List the ten most recent runs",
				Command:     "chronik runs list --limit 10",
			},
			{
				Description: "Save an audit snapshot from a card file",
				Command:     "chronik audit save --title \"quarterly access review\" --cards-file review.jsonc",
			},
			{
				Description: "Publish ledger history to the remote",
				Command:     "chronik sync push",
			},
			{
				Description: "Serve the event bus over HTTP with SSE streaming",
				Command:     "chronik serve --addr 127.0.0.1:7777",
			},
		},
	}
}
