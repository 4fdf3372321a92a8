// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/ledger"
	"github.com/chronik-dev/chronik/lib/schema"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "Manage audit snapshots",
		Subcommands: []*cli.Command{
			auditSaveCommand(),
			auditListCommand(),
			auditShowCommand(),
			auditDeleteCommand(),
		},
	}
}

func auditSaveCommand() *cli.Command {
	var (
		title      string
		cardsFile  string
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "save",
		Summary: "Save an audit snapshot",
		Description: `Save a point-in-time audit snapshot into the ledger. Cards come
from a JSON or JSONC file — hand-written review files with comments
and trailing commas parse fine. The file holds either a bare card
array or an object with a "cards" field.`,
		Usage: "chronik audit save --title <title> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("save", pflag.ContinueOnError)
			flagSet.StringVar(&title, "title", "", "snapshot label (required)")
			flagSet.StringVar(&cardsFile, "cards-file", "", "JSON/JSONC file holding the snapshot's cards")
			flagSet.BoolVar(&jsonOutput, "json", false, "output the saved audit as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			if err := env.setup(ctx); err != nil {
				return err
			}

			audit := schema.Audit{Title: title}
			if cardsFile != "" {
				cards, err := ledger.ParseAuditCards(cardsFile)
				if err != nil {
					return err
				}
				audit.Cards = cards
			}

			saved, err := env.ledger.SaveAudit(ctx, audit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(saved)
			}
			fmt.Printf("saved %s (%d cards)\n", saved.AuditID, saved.CardCount)
			return nil
		},
	}
}

func auditListCommand() *cli.Command {
	var (
		limit      int
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "list",
		Summary: "List audit snapshots, newest first",
		Usage:   "chronik audit list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.IntVar(&limit, "limit", 20, "maximum snapshots to list")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			audits, err := env.ledger.ListAudits(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(audits)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "AUDIT ID\tTITLE\tCARDS\tUSER")
			for _, audit := range audits {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					audit.AuditID, audit.Title, audit.CardCount, audit.User)
			}
			return tw.Flush()
		},
	}
}

func auditShowCommand() *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show an audit snapshot's cards",
		Usage:   "chronik audit show <audit-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik audit show <audit-id>")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			audit, err := env.ledger.GetAudit(ctx, args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "audit %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(audit)
			}

			fmt.Printf("Audit:    %s\n", audit.AuditID)
			fmt.Printf("Title:    %s\n", audit.Title)
			fmt.Printf("Created:  %s\n", audit.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("User:     %s\n", audit.User)
			fmt.Printf("Code ref: %s\n", audit.CodeRef)
			fmt.Printf("Cards:    %d\n", audit.CardCount)
			for _, card := range audit.Cards {
				fmt.Printf("  [%s] %s", card.ID, card.Title)
				if card.Status != "" {
					fmt.Printf(" (%s)", card.Status)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func auditDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete an audit snapshot",
		Description: `Delete an audit snapshot's document and index tag. The snapshot
disappears from listings; like any git deletion, the content remains
reachable in branch history.`,
		Usage: "chronik audit delete <audit-id>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik audit delete <audit-id>")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			if err := env.setup(ctx); err != nil {
				return err
			}
			if err := env.ledger.DeleteAudit(ctx, args[0]); errors.Is(err, ledger.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "audit %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			} else if err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
