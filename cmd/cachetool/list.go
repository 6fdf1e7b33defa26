package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tscache/cachetool/pkg/cache"
)

var flagDepth string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured spans, optionally down to stripes or directory stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, err := parseDumpDepth(flagDepth)
		if err != nil {
			fatal(err)
		}
		runList(depth)
		return nil
	},
}

// listStripesCmd is spec §6's `list stripes`: dump depth 2, which
// additionally probes and validates each stripe's metadata (spec §6, S6,
// S7). --depth still escalates to "directory" for the deeper bucket-chain
// walk.
var listStripesCmd = &cobra.Command{
	Use:   "stripes",
	Short: "List spans down to stripes, validating each stripe's metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		depth := cache.DumpStripe
		if flagDepth != "" && flagDepth != "span" {
			d, err := parseDumpDepth(flagDepth)
			if err != nil {
				fatal(err)
			}
			if d > depth {
				depth = d
			}
		}
		runList(depth)
		return nil
	},
}

func runList(depth cache.SpanDumpDepth) {
	if flagSpans == "" {
		fatal(errMissingSpans)
	}

	store := cache.NewStore(false)
	ec := store.LoadSpan(flagSpans)
	ec.Fprint(os.Stderr)
	if !ec.OK() {
		os.Exit(1)
	}

	store.DumpSpans(os.Stdout, depth, log)
}

func init() {
	listCmd.PersistentFlags().StringVar(&flagDepth, "depth", "span", "dump depth: span, stripe, or directory")
	listCmd.AddCommand(listStripesCmd)
}

func parseDumpDepth(s string) (cache.SpanDumpDepth, error) {
	switch s {
	case "span", "":
		return cache.DumpSpan, nil
	case "stripe":
		return cache.DumpStripe, nil
	case "directory":
		return cache.DumpDirectory, nil
	default:
		return cache.DumpSpan, errInvalidDepth
	}
}
