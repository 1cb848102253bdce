package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var previewCount int

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print the next fire times for every job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewCount < 1 {
			previewCount = 1
		}
		now := time.Now()
		jobs, err := loadAndCompile(configPath(), now)
		if err != nil {
			return err
		}
		for _, jr := range jobs {
			cmd.Printf("%s:\n", jr.Job.Name)
			for _, t := range jr.Schedule.NextRunTimes(now, previewCount) {
				cmd.Printf("  %s\n", t.Format(time.RFC3339))
			}
		}
		return nil
	},
}

func init() {
	previewCmd.Flags().IntVar(&previewCount, "count", 1, "number of upcoming fire times to print per job")
	rootCmd.AddCommand(previewCmd)
}
