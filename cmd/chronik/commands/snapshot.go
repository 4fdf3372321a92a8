// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/chronik-dev/chronik/cmd/chronik/cli"
	"github.com/chronik-dev/chronik/lib/eventbus"
)

func snapshotCommand() *cli.Command {
	var (
		addr       string
		stats      bool
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "snapshot",
		Summary: "Show the latest-state snapshot of a running bus",
		Description: `Query a running "chronik serve" instance for its latest-state
snapshot: the most recent keyed completion event per resource, with
each entry's age. With --stats, show the bus's shape (sequence
numbers, retained events, subscriber counts) instead.`,
		Usage: "chronik snapshot [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("snapshot", pflag.ContinueOnError)
			flagSet.StringVar(&addr, "addr", "127.0.0.1:7777", "address of the serve instance")
			flagSet.BoolVar(&stats, "stats", false, "show bus statistics instead of state")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}

			if stats {
				var busStats eventbus.Stats
				if err := fetchJSON(client, "http://"+addr+"/stats", &busStats); err != nil {
					return err
				}
				if jsonOutput {
					return cli.WriteJSON(busStats)
				}
				fmt.Printf("Instance:    %s\n", busStats.InstanceID)
				fmt.Printf("Latest seq:  %d\n", busStats.LatestSeq)
				fmt.Printf("Retained:    %d (oldest seq %d)\n", busStats.Retained, busStats.OldestSeq)
				fmt.Printf("Subscribers: %d\n", busStats.Subscribers)
				fmt.Printf("Listeners:   %d\n", busStats.Listeners)
				fmt.Printf("Keys:        %d\n", busStats.KeysTracked)
				fmt.Printf("Dropped:     %d\n", busStats.Dropped)
				return nil
			}

			var state map[string]eventbus.SnapshotEntry
			if err := fetchJSON(client, "http://"+addr+"/snapshot", &state); err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(state)
			}

			keys := make([]string, 0, len(state))
			for key := range state {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "KEY\tTYPE\tSEQ\tAGE")
			for _, key := range keys {
				entry := state[key]
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.1fs\n",
					key, entry.Event.Type, entry.Event.Seq, entry.AgeS)
			}
			return tw.Flush()
		},
	}
}

// fetchJSON gets a URL and decodes the JSON response into out.
func fetchJSON(client *http.Client, url string, out any) error {
	response, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is 'chronik serve' running? %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", url, response.Status)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
