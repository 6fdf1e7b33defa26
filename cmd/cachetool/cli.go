/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tscache/cachetool/pkg/elog"
)

var (
	errMissingSpans   = errors.New("no span config given (use --spans or set it in ~/.cachetool.yaml)")
	errMissingVolumes = errors.New("no volume config given (use --volumes or set it in ~/.cachetool.yaml)")
	errInvalidDepth   = errors.New("depth must be one of: span, stripe, directory")
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
	flagJSON    bool

	flagSpans   string
	flagVolumes string
	flagWrite   bool
)

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "enable json output")

	rootCmd.PersistentFlags().StringVarP(&flagSpans, "spans", "s", "", "span or span-list config file")
	rootCmd.PersistentFlags().StringVarP(&flagVolumes, "volumes", "V", "", "volume config file")
	rootCmd.PersistentFlags().BoolVarP(&flagWrite, "write", "w", false, "enable writing changes to disk")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initConfig()

		out := colorable.NewColorableStdout()
		cli := elog.New(flagDebug, flagVerbose, flagJSON, out)
		cli.DisableTTY = flagJSON

		if flagJSON {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logrus.SetFormatter(cli)
		}
		logrus.SetOutput(out)
		logrus.SetLevel(logrus.TraceLevel)

		log = cli

		if flagSpans == "" {
			flagSpans = viper.GetString("spans")
		}
		if flagVolumes == "" {
			flagVolumes = viper.GetString("volumes")
		}

		return nil
	}

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(volumesCmd)
	rootCmd.AddCommand(allocCmd)

	allocCmd.AddCommand(allocFreeCmd)
}

// initConfig loads an optional ~/.cachetool.yaml holding default span and
// volume config paths, the same ambient-config pattern the teacher uses
// for its own per-user settings file.
func initConfig() {
	home, err := homedir.Dir()
	if err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".cachetool")
	}
	viper.SetEnvPrefix("CACHETOOL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "cachetool",
	Short: "Inspect and administer an offline object cache's on-disk storage",
	Long: `cachetool reads and writes the raw span/stripe/volume storage layout of an
HTTP proxy's on-disk object cache without the proxy running.`,
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
