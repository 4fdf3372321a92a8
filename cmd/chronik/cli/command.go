// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node in the chronik command tree. Leaf commands set
// Run; group commands (runs, audit, trace, sync) set Subcommands and
// dispatch on the first positional argument.
type Command struct {
	// Name is what the user types to select this command.
	Name string

	// Summary is the one-liner shown in the parent's command listing.
	Summary string

	// Description is the long help text for the command itself.
	Description string

	// Usage overrides the synthesized usage line when set, e.g.
	// "chronik runs list [flags]".
	Usage string

	// Examples are rendered at the end of the help text.
	Examples []Example

	// Flags builds the command's flag set. Called fresh on each use so
	// a failed parse never leaks state into help rendering. Nil means
	// the command takes no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument.
	Subcommands []*Command

	// Run executes the command with the positional arguments left
	// after flag parsing. Commands with subcommands and a Run fall
	// back to Run when no subcommand matches.
	Run func(args []string) error

	// parent links back up the tree so errors and help can print the
	// full command path. Set during dispatch.
	parent *Command
}

// Example is one worked invocation shown in help output.
type Example struct {
	// Description explains what the example does.
	Description string
	// Command is the literal command line.
	Command string
}

// Execute resolves args against the command tree: help flags first,
// then subcommand dispatch, then flag parsing, then Run.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(os.Stderr)
		return nil
	}

	if len(c.Subcommands) > 0 {
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			return c.dispatch(args)
		}
		if c.Run == nil {
			c.PrintHelp(os.Stderr)
			if len(args) == 0 {
				return fmt.Errorf("subcommand required")
			}
			return fmt.Errorf("subcommand required (got flag %q)", args[0])
		}
	}

	if c.Flags != nil {
		remaining, err := c.parseFlags(args)
		if err != nil {
			return err
		}
		args = remaining
	}

	if c.Run == nil {
		c.PrintHelp(os.Stderr)
		return fmt.Errorf("no action defined for %q", c.fullName())
	}
	return c.Run(args)
}

// dispatch hands args[0] to the matching subcommand, or builds an
// unknown-command error with a typo suggestion when nothing matches.
func (c *Command) dispatch(args []string) error {
	name := args[0]
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(args[1:])
		}
	}
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		return fmt.Errorf("unknown command %q (did you mean %q?)\n\nRun '%s --help' for usage.",
			name, suggestion, c.fullName())
	}
	return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.",
		name, c.fullName())
}

// parseFlags runs the command's flag set over args and returns the
// positional remainder. Parse errors come back rephrased with a typo
// suggestion and a pointer to --help instead of pflag's usage dump.
func (c *Command) parseFlags(args []string) ([]string, error) {
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if strings.Contains(err.Error(), "unknown flag") {
			// A fresh flag set: the failed parse may have consumed
			// values the suggestion lookup needs to see.
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				return nil, fmt.Errorf("%s (did you mean %s?)\n\nRun '%s --help' for usage.",
					err, suggestion, c.fullName())
			}
		}
		return nil, fmt.Errorf("%s\n\nRun '%s --help' for usage.", err, c.fullName())
	}
	return flagSet.Args(), nil
}

// PrintHelp renders the command's help text: description, usage,
// subcommand listing, flags, examples, and a footer pointing at
// per-subcommand help.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	switch {
	case c.Description != "":
		fmt.Fprintf(w, "%s\n\n", c.Description)
	case c.Summary != "":
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	fmt.Fprintf(w, "Usage:\n  %s\n", c.usageLine(name))

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		listing := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(listing, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		listing.Flush()
	}

	if c.Flags != nil {
		var rendered strings.Builder
		flagSet := c.Flags()
		flagSet.SetOutput(&rendered)
		flagSet.PrintDefaults()
		if rendered.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", rendered.String())
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// usageLine returns the explicit Usage when set, otherwise one
// synthesized from the command path and shape.
func (c *Command) usageLine(name string) string {
	if c.Usage != "" {
		return c.Usage
	}
	if len(c.Subcommands) > 0 {
		return name + " <command> [flags]"
	}
	return name + " [flags]"
}

// fullName walks the parent chain to build the invocation path, e.g.
// "chronik runs show".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
