package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tscache/cachetool/pkg/cache"
)

var volumesCmd = &cobra.Command{
	Use:   "volumes",
	Short: "Simulate allocation and print what would happen, without writing anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSpans == "" {
			fatal(errMissingSpans)
		}
		if flagVolumes == "" {
			fatal(errMissingVolumes)
		}

		// volumes always runs with write forced off: it is the dry-run view
		// of alloc free, reusing the same allocator so its printed plan
		// matches exactly what a real run would do (spec §6 CLI surface).
		va, ec := cache.NewVolumeAllocator(flagSpans, flagVolumes, false)
		ec.Fprint(os.Stderr)
		if !ec.OK() {
			os.Exit(1)
		}

		log.Infof("simulating allocation across %d configured volumes", len(va.Config.Volumes))
		fillErr := va.FillEmptySpans(os.Stdout)
		fillErr.Fprint(os.Stderr)

		va.Store.DumpVolumes(os.Stdout)
		if !fillErr.OK() {
			os.Exit(1)
		}
		return nil
	},
}
