package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears viper config between tests for isolation.
func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("CHIEF")
	viper.AutomaticEnv()
	cfgFile = "chief.yaml"
	previewCount = 1
	runJobName = ""
	runRespectSchedule = false
	exportCronJobName = ""
}

const validConfigYAML = `version: 1
jobs:
  - name: nightly-export
    working_dir: .
    overlap: skip
    schedule:
      frequency: daily
      time: "03:00"
    scripts:
      - path: run.sh
`

// writeConfig writes a YAML job declaration file into a temp dir and
// returns its path, along with the script the job's single step
// refers to so the file actually exists on disk. The test changes into
// that dir, since a relative working_dir resolves against the process's
// working directory.
func writeConfig(t *testing.T, yamlText string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	scriptPath := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write fixture script: %v", err)
	}
	cfgPath := filepath.Join(dir, "chief.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlText), 0o644); err != nil {
		t.Fatalf("write fixture config: %v", err)
	}
	return cfgPath
}
