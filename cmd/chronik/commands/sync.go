// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
)

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:    "sync",
		Summary: "Synchronize ledger history with the remote",
		Description: `Synchronize the ledger branch and its index tags with the
configured remote. A repository without a remote is fine: both push
and pull succeed without doing anything, so the same scripts work in
connected and detached clones.`,
		Subcommands: []*cli.Command{
			{
				Name:    "push",
				Summary: "Publish ledger history to the remote",
				Description: `Publish the ledger branch and tags. Remote history is rebased in
first, so two machines appending concurrently converge: ledger
commits only add files under distinct record ids and never conflict.`,
				Usage: "chronik sync push",
				Run:   syncRun(true),
			},
			{
				Name:    "pull",
				Summary: "Bring remote ledger history into the local branch",
				Usage:   "chronik sync pull",
				Run:     syncRun(false),
			},
		},
	}
}

func syncRun(push bool) func(args []string) error {
	return func(args []string) error {
		ctx := context.Background()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		if err := env.setup(ctx); err != nil {
			return err
		}
		if push {
			if err := env.ledger.PushLedger(ctx); err != nil {
				return err
			}
			fmt.Println("ledger pushed")
			return nil
		}
		if err := env.ledger.PullLedger(ctx); err != nil {
			return err
		}
		fmt.Println("ledger pulled")
		return nil
	}
}
