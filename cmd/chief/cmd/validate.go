package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a job declaration file",
	Long: `Runs the Config Compiler over the declaration file and reports the
first offending job and field on failure, exiting 1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := loadAndCompile(configPath(), time.Now())
		if err != nil {
			return err
		}
		cmd.Printf("ok: %d job(s) compiled\n", len(jobs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
