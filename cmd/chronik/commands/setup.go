// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
)

func setupCommand() *cli.Command {
	return &cli.Command{
		Name:    "setup",
		Summary: "Initialize the ledger branch and checkout",
		Description: `Initialize the ledger: create the orphan ledger branch if missing,
materialize the secondary checkout, and register the exclusion entries
that keep ledger files out of the primary working tree's status.

Safe to run repeatedly — every step checks before it acts. Run it
after cloning a repository that already carries ledger history to
adopt the existing branch.`,
		Usage: "chronik setup",
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			if err := env.setup(ctx); err != nil {
				return err
			}
			fmt.Printf("ledger ready: branch %s, checkout %s\n", env.tree.Branch(), env.tree.Dir())
			return nil
		},
	}
}
