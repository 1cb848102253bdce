package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"chief/internal/schedule"
)

// loadConfigFile reads and strictly decodes the job declaration file,
// rejecting unknown keys per spec.md §4.1.
func loadConfigFile(path string) (*schedule.ConfigFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg schedule.ConfigFile
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// loadAndCompile loads the config file at path and compiles it into
// dispatch-ready JobRuntimes as of now.
func loadAndCompile(path string, now time.Time) ([]*schedule.JobRuntime, error) {
	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return schedule.Compile(cfg, now)
}

// errInterrupted signals that a command ended because it caught
// SIGINT/SIGTERM and shut down cleanly, not because it failed.
// Execute() translates it to exit code 130 instead of the generic
// error-path exit code 1.
var errInterrupted = errors.New("interrupted")

func errorAsConfigError(err error) (*schedule.ConfigError, bool) {
	var ce *schedule.ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func findJob(jobs []*schedule.JobRuntime, name string) (*schedule.JobRuntime, bool) {
	for _, jr := range jobs {
		if jr.Job.Name == name {
			return jr, true
		}
	}
	return nil, false
}
