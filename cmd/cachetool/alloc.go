package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tscache/cachetool/pkg/cache"
)

var allocCmd = &cobra.Command{
	Use:   "alloc",
	Short: "Allocate free span space to configured volumes",
	Args:  cobra.NoArgs,
}

var allocFreeCmd = &cobra.Command{
	Use:   "free",
	Short: "Distribute every empty span's free space across configured volumes by deficit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSpans == "" {
			fatal(errMissingSpans)
		}
		if flagVolumes == "" {
			fatal(errMissingVolumes)
		}

		va, ec := cache.NewVolumeAllocator(flagSpans, flagVolumes, flagWrite)
		ec.Fprint(os.Stderr)
		if !ec.OK() {
			os.Exit(1)
		}

		log.Infof("distributing free span space across %d configured volumes", len(va.Config.Volumes))
		fillErr := va.FillEmptySpans(os.Stdout)
		fillErr.Fprint(os.Stderr)
		if !fillErr.OK() {
			os.Exit(1)
		}
		return nil
	},
}
