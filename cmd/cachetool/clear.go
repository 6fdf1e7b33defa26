package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tscache/cachetool/pkg/cache"
)

var clearPermanently bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Replace every stripe on each configured span with a single free stripe",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSpans == "" {
			fatal(errMissingSpans)
		}

		store := cache.NewStore(flagWrite)
		ec := store.LoadSpan(flagSpans)
		ec.Fprint(os.Stderr)
		if !ec.OK() {
			os.Exit(1)
		}

		failed := false
		for _, span := range store.Spans {
			log.Infof("clearing %s", span.Path)
			fmt.Printf("Clearing %s\n", span.Path)
			if clearErr := store.ClearSpan(span); !clearErr.OK() {
				clearErr.Fprint(os.Stderr)
				failed = true
				continue
			}
			if clearPermanently {
				// The zeroed header block is the end state: no fresh header
				// is written over it.
				permErr := span.ClearPermanently()
				permErr.Fprint(os.Stderr)
				failed = failed || !permErr.OK()
				continue
			}
			hdrErr := span.UpdateHeader()
			hdrErr.Fprint(os.Stderr)
			failed = failed || !hdrErr.OK()
		}

		if failed {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearPermanently, "permanently", false, "also zero the on-disk header store block")
}
