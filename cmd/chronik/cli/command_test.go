// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "chronik",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "runs",
				Run: func(args []string) error {
					called = "runs"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"runs"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "runs" {
		t.Errorf("dispatched to %q, want %q", called, "runs")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "chronik",
		Subcommands: []*Command{
			{
				Name: "runs",
				Subcommands: []*Command{
					{
						Name: "show",
						Run: func(args []string) error {
							called = "runs show"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"runs", "show", "run_x"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "runs show" {
		t.Errorf("dispatched to %q, want %q", called, "runs show")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "run_x" {
		t.Errorf("args = %v, want [run_x]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var limit int
	var target string

	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.IntVar(&limit, "limit", 20, "maximum entries")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--limit", "5", "deploy"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if limit != 5 {
		t.Errorf("limit = %d, want 5", limit)
	}
	if target != "deploy" {
		t.Errorf("target = %q, want %q", target, "deploy")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			flagSet.Int("limit", 20, "maximum entries")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--limti"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --limit") {
		t.Errorf("error = %q, want suggestion for '--limit'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "limti") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "chronik",
		Subcommands: []*Command{
			{Name: "record"},
			{Name: "runs"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"recrod"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"record\"") {
		t.Errorf("error = %q, want suggestion for 'record'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "chronik",
		Subcommands: []*Command{
			{Name: "record"},
			{Name: "runs"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "chronik",
				Summary: "Operational audit ledger",
				Subcommands: []*Command{
					{Name: "runs", Summary: "Query recorded runs"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "chronik",
		Subcommands: []*Command{
			{Name: "runs", Summary: "Query recorded runs"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "chronik",
		Description: "Operational audit ledger.",
		Subcommands: []*Command{
			{Name: "record", Summary: "Record a completed run"},
			{Name: "runs", Summary: "Query recorded runs"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Record a deploy run",
				Command:     "chronik record --type deploy --status ok",
			},
			{
				Description: "List recent runs",
				Command:     "chronik runs list --limit 10",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Operational audit ledger.",
		"Usage:",
		"chronik <command> [flags]",
		"Commands:",
		"record",
		"Record a completed run",
		"runs",
		"Query recorded runs",
		"Examples:",
		"chronik record --type deploy --status ok",
		"chronik runs list --limit 10",
		"Run 'chronik <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "list",
		Summary: "List recorded runs",
		Usage:   "chronik runs list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.Int("limit", 20, "maximum entries")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"chronik runs list [flags]",
		"Flags:",
		"limit",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "chronik"}
	runs := &Command{Name: "runs", parent: root}
	show := &Command{Name: "show", parent: runs}

	if got := root.fullName(); got != "chronik" {
		t.Errorf("root.fullName() = %q, want %q", got, "chronik")
	}
	if got := runs.fullName(); got != "chronik runs" {
		t.Errorf("runs.fullName() = %q, want %q", got, "chronik runs")
	}
	if got := show.fullName(); got != "chronik runs show" {
		t.Errorf("show.fullName() = %q, want %q", got, "chronik runs show")
	}
}
