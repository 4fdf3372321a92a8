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
)

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:    "runs",
		Summary: "Query recorded runs",
		Subcommands: []*cli.Command{
			runsListCommand(),
			runsShowCommand(),
			runsEventsCommand(),
		},
	}
}

func runsListCommand() *cli.Command {
	var (
		limit      int
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "list",
		Summary: "List recorded runs, newest first",
		Description: `List recorded runs from the tag index, newest first. The index is
read entirely from annotated tags — no worktree access — so listing
stays fast regardless of ledger size.`,
		Usage: "chronik runs list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.IntVar(&limit, "limit", 20, "maximum runs to list")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			runs, err := env.ledger.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(runs)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tTYPE\tSTATUS\tUSER\tSUMMARY")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					run.RunID, run.Type, run.Status, run.User, run.Summary)
			}
			return tw.Flush()
		},
	}
}

func runsShowCommand() *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show a run's full document",
		Usage:   "chronik runs show <run-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik runs show <run-id>")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			run, err := env.ledger.GetRun(ctx, args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "run %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(run)
			}

			fmt.Printf("Run:         %s\n", run.RunID)
			fmt.Printf("Type:        %s", run.Type)
			if run.Subtype != "" {
				fmt.Printf(" / %s", run.Subtype)
			}
			fmt.Println()
			fmt.Printf("Status:      %s\n", run.Status)
			fmt.Printf("User:        %s\n", run.User)
			fmt.Printf("Code ref:    %s\n", run.CodeRef)
			fmt.Printf("Started:     %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("Duration:    %dms\n", run.DurationMS)
			if run.Environment != "" {
				fmt.Printf("Environment: %s\n", run.Environment)
			}
			if len(run.ModulesAffected) > 0 {
				fmt.Printf("Modules:     %v\n", run.ModulesAffected)
			}
			if run.Summary != "" {
				fmt.Printf("Summary:     %s\n", run.Summary)
			}
			for key, value := range run.Metadata {
				fmt.Printf("  %s: %v\n", key, value)
			}
			return nil
		},
	}
}

func runsEventsCommand() *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "events",
		Summary: "Show a run's step events",
		Usage:   "chronik runs events <run-id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("events", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik runs events <run-id>")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			events, err := env.ledger.GetRunEvents(ctx, args[0])
			if errors.Is(err, ledger.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "run %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(events)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTYPE\tTARGET\tSTATUS\tDURATION")
			for _, event := range events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dms\n",
					event.Seq, event.Type, event.Target, event.Status, event.DurationMS)
			}
			return tw.Flush()
		},
	}
}
