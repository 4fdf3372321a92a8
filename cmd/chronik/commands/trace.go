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
	"github.com/chronik-dev/chronik/lib/trace"
)

func traceCommand() *cli.Command {
	return &cli.Command{
		Name:    "trace",
		Summary: "Manage session traces",
		Description: `Manage session traces captured from the event bus. Traces are
private by default: saved only in the local ledger checkout. Sharing
commits a trace to the ledger branch so sync push publishes it;
unsharing stops advertising it but cannot recall already-pulled
history.`,
		Subcommands: []*cli.Command{
			traceListCommand(),
			traceShowCommand(),
			traceShareCommand(),
			traceUnshareCommand(),
			traceExportCommand(),
		},
	}
}

func traceListCommand() *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "list",
		Summary: "List session traces, newest first",
		Usage:   "chronik trace list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			env, err := openEnvironment(context.Background())
			if err != nil {
				return err
			}
			traces, err := env.traces.List()
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(traces)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TRACE ID\tNAME\tEVENTS\tSHARED\tSUMMARY")
			for _, tr := range traces {
				shared := "no"
				if tr.Shared {
					shared = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					tr.TraceID, tr.Name, tr.EventCount, shared, tr.AutoSummary)
			}
			return tw.Flush()
		},
	}
}

func traceShowCommand() *cli.Command {
	var (
		withEvents bool
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "show",
		Summary: "Show a trace's metadata and events",
		Usage:   "chronik trace show <trace-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.BoolVar(&withEvents, "events", false, "include the captured events")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik trace show <trace-id>")
			}
			env, err := openEnvironment(context.Background())
			if err != nil {
				return err
			}
			tr, err := env.traces.Get(args[0])
			if errors.Is(err, trace.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "trace %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}
			if jsonOutput && !withEvents {
				return cli.WriteJSON(tr)
			}

			if !jsonOutput {
				fmt.Printf("Trace:    %s\n", tr.TraceID)
				fmt.Printf("Name:     %s\n", tr.Name)
				if tr.Classification != "" {
					fmt.Printf("Class:    %s\n", tr.Classification)
				}
				fmt.Printf("User:     %s\n", tr.User)
				fmt.Printf("Started:  %s\n", tr.StartedAt.Format("2006-01-02 15:04:05 MST"))
				fmt.Printf("Duration: %.1fs\n", tr.DurationS)
				fmt.Printf("Events:   %d\n", tr.EventCount)
				fmt.Printf("Shared:   %v\n", tr.Shared)
				if tr.AutoSummary != "" {
					fmt.Printf("Summary:  %s\n", tr.AutoSummary)
				}
			}
			if !withEvents {
				return nil
			}

			events, err := env.traces.Events(tr.TraceID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(events)
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTYPE\tTARGET\tRESULT\tDURATION")
			for _, event := range events {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%dms\n",
					event.Seq, event.Type, event.Target, event.Result, event.DurationMS)
			}
			return tw.Flush()
		},
	}
}

func traceShareCommand() *cli.Command {
	return &cli.Command{
		Name:    "share",
		Summary: "Share a trace on the ledger branch",
		Usage:   "chronik trace share <trace-id>",
		Run:     traceToggle("share"),
	}
}

func traceUnshareCommand() *cli.Command {
	return &cli.Command{
		Name:    "unshare",
		Summary: "Stop advertising a shared trace",
		Description: `Flip a trace back to private. Only the metadata change is
committed; events already in branch history stay there — unsharing
cannot recall data from anyone who pulled it.`,
		Usage: "chronik trace unshare <trace-id>",
		Run:   traceToggle("unshare"),
	}
}

// traceToggle builds the Run function for share/unshare, which differ
// only in the store call and the printed verb.
func traceToggle(verb string) func(args []string) error {
	return func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: chronik trace %s <trace-id>", verb)
		}
		ctx := context.Background()
		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		if err := env.setup(ctx); err != nil {
			return err
		}

		var toggleErr error
		if verb == "share" {
			_, toggleErr = env.traces.Share(ctx, args[0])
		} else {
			_, toggleErr = env.traces.Unshare(ctx, args[0])
		}
		if errors.Is(toggleErr, trace.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "trace %s not found\n", args[0])
			return &cli.ExitError{Code: 1}
		}
		if toggleErr != nil {
			return toggleErr
		}
		fmt.Printf("%sd %s\n", verb, args[0])
		return nil
	}
}

func traceExportCommand() *cli.Command {
	var out string

	return &cli.Command{
		Name:    "export",
		Summary: "Export a trace as a portable bundle",
		Description: `Export a trace and its events as a single compressed bundle file.
The bundle carries a keyed digest of the event stream; importers
verify it to detect tampering or truncation.`,
		Usage: "chronik trace export <trace-id> [--out <path>]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.StringVar(&out, "out", "", "output path (default <trace-id>"+trace.BundleExtension+")")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: chronik trace export <trace-id>")
			}
			env, err := openEnvironment(context.Background())
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + trace.BundleExtension
			}
			if err := env.traces.Export(args[0], out); errors.Is(err, trace.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "trace %s not found\n", args[0])
				return &cli.ExitError{Code: 1}
			} else if err != nil {
				return err
			}
			fmt.Printf("exported %s to %s\n", args[0], out)
			return nil
		},
	}
}
