// Copyright 2026 The Chronik Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// suggestThreshold is the largest edit distance still offered as a
// "did you mean" suggestion. Three covers transpositions, dropped
// characters, and doubled characters without reaching into unrelated
// names.
const suggestThreshold = 3

// suggestCommand returns the subcommand name closest to the unknown
// input, or "" when nothing is close enough.
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		names = append(names, command.Name)
	}
	return nearest(unknown, names)
}

// suggestFlag finds the first flag in args that the flag set does not
// define and returns the closest defined name with its dash prefix
// restored, or "" when there is no good match.
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(f *pflag.Flag) {
		defined = append(defined, f.Name)
	})

	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if index := strings.IndexByte(name, '='); index >= 0 {
			name = name[:index]
		}
		if flagSet.Lookup(name) != nil {
			continue
		}

		// First undefined flag in args is the one the parse tripped
		// on; later args never got looked at.
		match := nearest(name, defined)
		switch {
		case match == "":
			return ""
		case len(match) == 1:
			return "-" + match
		default:
			return "--" + match
		}
	}
	return ""
}

// nearest returns the candidate within suggestThreshold edits of
// input, preferring the smallest distance, or "" when all candidates
// are too far away.
func nearest(input string, candidates []string) string {
	best := ""
	bestDistance := suggestThreshold + 1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			bestDistance = distance
			best = candidate
		}
	}
	return best
}

// levenshtein computes the edit distance between two strings using a
// single rolling row of the distance matrix.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	previous := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current := make([]int, len(a)+1)
		current[0] = j
		for i := 1; i <= len(a); i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			deletion := previous[i] + 1
			insertion := current[i-1] + 1
			substitution := previous[i-1] + cost
			current[i] = min(deletion, min(insertion, substitution))
		}
		previous = current
	}
	return previous[len(a)]
}
