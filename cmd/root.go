// Package cmd wires the moodpipe CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "github.com/moodtape/moodpipe/config"
)

var dumpConfig bool

var rootCmd = &cobra.Command{
	Use:   "moodpipe",
	Short: "Real-time audio mood sensing and fusion pipeline",
	Long: `moodpipe captures live audio, extracts spectral features under a hard
latency budget, classifies them into a (valence, arousal) estimate and fuses
that signal with facial and ambient affect sources into one published mood
state.`,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "print the effective configuration and exit")
}

// loadConfig loads config and applies the log level. Exits the process on
// config errors; the core itself has no fatal path.
func loadConfig() *cfg.Root {
	conf, err := cfg.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration")
	}
	if lvl, err := logrus.ParseLevel(conf.Pipeline.LogLvl); err == nil {
		logrus.SetLevel(lvl)
	}
	if dumpConfig {
		out, err := conf.Dump()
		if err != nil {
			logrus.WithError(err).Fatal("dump config")
		}
		fmt.Print(out)
		os.Exit(0)
	}
	return conf
}
