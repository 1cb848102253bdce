package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chief/internal/schedule"
)

var exportCronJobName string

var exportCronCmd = &cobra.Command{
	Use:   "export-cron",
	Short: "Print crontab-ready lines for pure-cron and hybrid jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := loadAndCompile(configPath(), time.Now())
		if err != nil {
			return err
		}

		if exportCronJobName != "" {
			jr, ok := findJob(jobs, exportCronJobName)
			if !ok {
				return fmt.Errorf("no such job: %s", exportCronJobName)
			}
			jobs = []*schedule.JobRuntime{jr}
		}

		for _, jr := range jobs {
			switch jr.Schedule.Kind {
			case schedule.KindPureCron, schedule.KindHybrid:
				cmd.Printf("# %s\n", jr.Job.Name)
				cmd.Printf("CRON_TZ=%s\n", jr.Schedule.TZ.String())
				cmd.Printf("%s %s\n", jr.Schedule.CronExpr, jobCommand(jr.Job))
			case schedule.KindRuntimeOnly:
				cmd.Printf("# %s: runtime-only interval schedule, no cron equivalent (chief daemon only)\n", jr.Job.Name)
			}
		}
		return nil
	},
}

// jobCommand renders a job's script chain as a single shell command
// line, matching how an operator would hand-write the equivalent
// crontab entry.
func jobCommand(job schedule.JobSpec) string {
	parts := make([]string, 0, len(job.Scripts))
	for _, s := range job.Scripts {
		tokens := append([]string{s.Path}, s.Args...)
		parts = append(parts, strings.Join(tokens, " "))
	}
	return strings.Join(parts, " && ")
}

func init() {
	exportCronCmd.Flags().StringVar(&exportCronJobName, "job", "", "export only this job")
	rootCmd.AddCommand(exportCronCmd)
}
