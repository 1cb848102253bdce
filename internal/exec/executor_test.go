package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chief/internal/schedule"
)

func fakeClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func writableScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestExecutor_RunsAllScriptsInOrder(t *testing.T) {
	dir := t.TempDir()
	first := writableScript(t, dir, "first.sh", "#!/bin/sh\necho first\n")
	second := writableScript(t, dir, "second.sh", "#!/bin/sh\necho second\n")

	job := schedule.JobSpec{
		Name:       "chain",
		WorkingDir: dir,
		Scripts: []schedule.ScriptSpec{
			{Path: first, TimeoutSeconds: 10},
			{Path: second, TimeoutSeconds: 10},
		},
	}

	ex := NewExecutor(NewExecRuntime(t.TempDir()))
	ex.Now = fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	result := ex.Run(context.Background(), job, "run-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Scripts) != 2 {
		t.Fatalf("expected 2 script results, got %d", len(result.Scripts))
	}
	if result.Scripts[0].Path != first || result.Scripts[1].Path != second {
		t.Errorf("scripts ran out of order: %+v", result.Scripts)
	}
}

func TestExecutor_StopOnFailureSkipsLaterScripts(t *testing.T) {
	dir := t.TempDir()
	failing := writableScript(t, dir, "fail.sh", "#!/bin/sh\nexit 1\n")
	never := writableScript(t, dir, "never.sh", "#!/bin/sh\necho should-not-run\n")

	job := schedule.JobSpec{
		Name:          "chain",
		WorkingDir:    dir,
		StopOnFailure: true,
		Scripts: []schedule.ScriptSpec{
			{Path: failing, TimeoutSeconds: 10},
			{Path: never, TimeoutSeconds: 10},
		},
	}

	ex := NewExecutor(NewExecRuntime(t.TempDir()))
	result := ex.Run(context.Background(), job, "run-2", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if result.Success {
		t.Fatal("expected overall failure")
	}
	if len(result.Scripts) != 1 {
		t.Fatalf("expected only the first script to run, got %d results", len(result.Scripts))
	}
}

func TestExecutor_ContinuesWithoutStopOnFailure(t *testing.T) {
	dir := t.TempDir()
	failing := writableScript(t, dir, "fail.sh", "#!/bin/sh\nexit 1\n")
	runsAnyway := writableScript(t, dir, "runs.sh", "#!/bin/sh\necho ran\n")

	job := schedule.JobSpec{
		Name:          "chain",
		WorkingDir:    dir,
		StopOnFailure: false,
		Scripts: []schedule.ScriptSpec{
			{Path: failing, TimeoutSeconds: 10},
			{Path: runsAnyway, TimeoutSeconds: 10},
		},
	}

	ex := NewExecutor(NewExecRuntime(t.TempDir()))
	result := ex.Run(context.Background(), job, "run-3", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if result.Success {
		t.Fatal("expected overall failure due to first script")
	}
	if len(result.Scripts) != 2 {
		t.Fatalf("expected both scripts to run, got %d results", len(result.Scripts))
	}
	if !result.Scripts[1].Success {
		t.Error("expected second script to succeed")
	}
}

func TestExecutor_TimeoutMarksScriptTimedOut(t *testing.T) {
	dir := t.TempDir()
	slow := writableScript(t, dir, "slow.sh", "#!/bin/sh\nsleep 5\n")

	job := schedule.JobSpec{
		Name:       "chain",
		WorkingDir: dir,
		Scripts: []schedule.ScriptSpec{
			{Path: slow, TimeoutSeconds: 1},
		},
	}

	ex := NewExecutor(NewExecRuntime(t.TempDir()))
	result := ex.Run(context.Background(), job, "run-4", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if result.Success {
		t.Fatal("expected failure due to timeout")
	}
	if !result.Scripts[0].TimedOut {
		t.Error("expected TimedOut to be true")
	}
	if result.Scripts[0].ExitCode != -1 {
		t.Errorf("expected normalized timeout exit code -1, got %d", result.Scripts[0].ExitCode)
	}
}

func TestExecutor_SpawnFailureNormalizesToNegativeTwo(t *testing.T) {
	job := schedule.JobSpec{
		Name:       "chain",
		WorkingDir: t.TempDir(),
		Scripts: []schedule.ScriptSpec{
			{Path: "/no/such/binary-xyz", TimeoutSeconds: 10},
		},
	}

	ex := NewExecutor(NewExecRuntime(t.TempDir()))
	result := ex.Run(context.Background(), job, "run-5", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if result.Success {
		t.Fatal("expected failure due to spawn error")
	}
	if result.Scripts[0].ExitCode != -2 {
		t.Errorf("expected normalized spawn-failure exit code -2, got %d", result.Scripts[0].ExitCode)
	}
	if result.Scripts[0].Error == nil {
		t.Error("expected spawn error to be recorded")
	}
}
