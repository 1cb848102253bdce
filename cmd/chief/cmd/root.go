package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chief",
	Short: "Chief is the command line interface for the chief job orchestrator",
	Long: `chief compiles YAML job declarations into schedules, dispatches jobs on
wall-clock triggers, runs their scripts as subprocesses, and ships
telemetry to the overwatch Monitor.

Common workflows:

  Validate a job declaration file:
    chief validate --config chief.yaml

  Preview upcoming fire times:
    chief preview --config chief.yaml --count 5

  Run a job once, outside the daemon loop:
    chief run --config chief.yaml --job nightly-backup

  Start the orchestrator daemon:
    chief daemon --config chief.yaml

  Print crontab-ready lines for an external cron fallback:
    chief export-cron --config chief.yaml

Configuration:
  Runtime settings (Monitor endpoint, spool path, poll interval) are
  read from the environment with the CHIEF_ prefix; see
  internal/config for the full list.`,
}

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			return 130
		}
		if ce, ok := errorAsConfigError(err); ok {
			fmt.Fprintln(os.Stderr, ce.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "chief.yaml", "job declaration file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	viper.SetEnvPrefix("CHIEF")
	viper.AutomaticEnv()

	if v := viper.GetString("config"); v != "" {
		cfgFile = v
	}
}

func configPath() string {
	if cfgFile == "" {
		return "chief.yaml"
	}
	return cfgFile
}
