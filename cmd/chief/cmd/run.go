package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"chief/internal/exec"
	"chief/internal/logger"
	"chief/internal/schedule"
)

var (
	runJobName         string
	runRespectSchedule bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one or all jobs once, outside the daemon loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		jobs, err := loadAndCompile(configPath(), now)
		if err != nil {
			return err
		}

		if runJobName != "" {
			jr, ok := findJob(jobs, runJobName)
			if !ok {
				return fmt.Errorf("no such job: %s", runJobName)
			}
			jobs = []*schedule.JobRuntime{jr}
		}

		log := logger.New()
		executor := exec.NewExecutor(exec.NewExecRuntime(""))

		failed := false
		for _, jr := range jobs {
			if runRespectSchedule && jr.Schedule.Kind == schedule.KindHybrid && !jr.Schedule.Guard(now) {
				cmd.Printf("%s: skipped, outside its hybrid schedule guard\n", jr.Job.Name)
				continue
			}

			runID := uuid.NewString()
			result := executor.Run(context.Background(), jr.Job, runID, now)
			log.Info("ad hoc run finished", "job", jr.Job.Name, "runId", runID, "success", result.Success)

			if result.Success {
				cmd.Printf("%s: ok (run %s)\n", jr.Job.Name, runID)
			} else {
				cmd.Printf("%s: failed (run %s)\n", jr.Job.Name, runID)
				failed = true
			}
		}

		if failed {
			return fmt.Errorf("one or more jobs failed")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runJobName, "job", "", "run only this job")
	runCmd.Flags().BoolVar(&runRespectSchedule, "respect-schedule", false, "refuse to run a hybrid-kind job outside its schedule guard")
	rootCmd.AddCommand(runCmd)
}
