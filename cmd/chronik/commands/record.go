// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/schema"
)

func recordCommand() *cli.Command {
	var (
		runType     string
		subtype     string
		status      string
		summary     string
		runEnv      string
		modules     []string
		meta        map[string]string
		duration    time.Duration
		eventsFile  string
		jsonOutput  bool
	)

	return &cli.Command{
		Name:    "record",
		Summary: "Record a completed run",
		Description: `Record one completed or attempted unit of automation into the ledger.

The run document is committed to the ledger branch and indexed with an
annotated tag, so listings never have to read the worktree. User and
code ref are filled from the repository: the configured git identity
and the main line's HEAD commit.`,
		Usage: "chronik record --type <type> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("record", pflag.ContinueOnError)
			flagSet.StringVar(&runType, "type", "", "kind of automation (required, e.g. deploy)")
			flagSet.StringVar(&subtype, "subtype", "", "further qualification of the type")
			flagSet.StringVar(&status, "status", schema.StatusOK, "outcome: ok, failed, or partial")
			flagSet.StringVar(&summary, "summary", "", "short human-readable outcome description")
			flagSet.StringVar(&runEnv, "environment", "", "where the run executed (e.g. local, ci)")
			flagSet.StringSliceVar(&modules, "modules", nil, "modules the run touched, in order")
			flagSet.StringToStringVar(&meta, "meta", nil, "open metadata as key=value pairs")
			flagSet.DurationVar(&duration, "duration", 0, "wall-clock duration of the run")
			flagSet.StringVar(&eventsFile, "events-file", "", "JSONL file of per-step run events")
			flagSet.BoolVar(&jsonOutput, "json", false, "output the recorded run as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Record a successful deploy with its duration",
				Command:     "chronik record --type deploy --status ok --duration 90s --summary \"api v2.3\"",
			},
			{
				Description: "Record a partial detect run with step events",
				Command:     "chronik record --type detect --status partial --modules auth,billing --events-file steps.jsonl",
			},
		},
		Run: func(args []string) error {
			if runType == "" {
				return fmt.Errorf("--type is required")
			}
			ctx := context.Background()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			if err := env.setup(ctx); err != nil {
				return err
			}

			now := time.Now().UTC()
			run := schema.Run{
				Type:            runType,
				Subtype:         subtype,
				Status:          status,
				Summary:         summary,
				Environment:     runEnv,
				ModulesAffected: modules,
				StartedAt:       now.Add(-duration),
				EndedAt:         now,
			}
			if len(meta) > 0 {
				run.Metadata = make(map[string]any, len(meta))
				for key, value := range meta {
					run.Metadata[key] = value
				}
			}

			var events []schema.RunEvent
			if eventsFile != "" {
				events, err = readRunEvents(eventsFile)
				if err != nil {
					return err
				}
			}

			recorded, err := env.ledger.RecordRun(ctx, run, events)
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(recorded)
			}
			fmt.Printf("recorded %s (%s, %s)\n", recorded.RunID, recorded.Type, recorded.Status)
			return nil
		},
	}
}

// readRunEvents parses a newline-delimited JSON file of run events.
func readRunEvents(path string) ([]schema.RunEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []schema.RunEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var event schema.RunEvent
		if err := json.Unmarshal(text, &event); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return events, nil
}
