package exec

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chief/internal/schedule"
)

var tracer = otel.Tracer("chief/exec")

// tailLines is how many trailing output lines a ScriptResult carries
// for script.completed's metadata.
const tailLines = 20

// ScriptResult is the outcome of running one ScriptSpec within a job.
type ScriptResult struct {
	Path       string
	Args       []string
	ExitCode   int
	Success    bool
	TimedOut   bool
	Error      error
	StartedAt  time.Time
	FinishedAt time.Time

	// Tail holds up to the last tailLines lines of combined
	// stdout/stderr the script produced.
	Tail []string
}

func (r ScriptResult) DurationMs() int {
	return int(r.FinishedAt.Sub(r.StartedAt) / time.Millisecond)
}

// ExecutionResult is the outcome of running a job's full script chain.
type ExecutionResult struct {
	JobName    string
	RunID      string
	Scripts    []ScriptResult
	Success    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r ExecutionResult) DurationMs() int {
	return int(r.FinishedAt.Sub(r.StartedAt) / time.Millisecond)
}

// Executor runs a job's ScriptSpec chain sequentially against a
// Runtime, honoring each script's own timeout and the job's
// stop_on_failure setting.
type Executor struct {
	Runtime Runtime

	// MonitorEndpoint and MonitorAPIKey are injected into subprocess
	// environment as CHIEF_MONITOR_ENDPOINT/CHIEF_MONITOR_API_KEY when
	// non-empty, so a script can emit its own telemetry directly.
	MonitorEndpoint string
	MonitorAPIKey   string

	// Now lets tests observe deterministic timestamps; defaults to
	// time.Now via NewExecutor.
	Now func() time.Time

	// OnLine, if set, is called once per line of combined
	// stdout/stderr output produced by each script, for live
	// telemetry shipping.
	OnLine func(jobName, runID string, scriptPath string, line string)

	// OnScriptStart and OnScriptComplete, if set, are called
	// synchronously immediately before a script is spawned and
	// immediately after it finishes, for script.started/
	// script.completed telemetry.
	OnScriptStart    func(jobName, runID, scriptPath string)
	OnScriptComplete func(jobName, runID string, result ScriptResult)
}

// NewExecutor wires rt as the process backend with a real wall clock.
func NewExecutor(rt Runtime) *Executor {
	return &Executor{Runtime: rt, Now: time.Now}
}

// Run executes job's scripts in declared order. Every script is
// attempted unless StopOnFailure is set and an earlier script failed;
// result.Success reflects whether every attempted script exited zero.
// scheduledFor is the trigger instant that caused this run (or the
// moment of invocation, for an ad hoc run); it is exported to scripts
// as CHIEF_SCHEDULED_FOR.
func (e *Executor) Run(ctx context.Context, job schedule.JobSpec, runID string, scheduledFor time.Time) ExecutionResult {
	result := ExecutionResult{JobName: job.Name, RunID: runID, Success: true, StartedAt: e.Now()}

	for i, script := range job.Scripts {
		sr := e.runScript(ctx, job, script, runID, i, scheduledFor)
		result.Scripts = append(result.Scripts, sr)
		if !sr.Success {
			result.Success = false
			if job.StopOnFailure {
				break
			}
		}
	}

	result.FinishedAt = e.Now()
	return result
}

func (e *Executor) runScript(ctx context.Context, job schedule.JobSpec, script schedule.ScriptSpec, runID string, idx int, scheduledFor time.Time) ScriptResult {
	ctx, span := tracer.Start(ctx, "script.exec",
		trace.WithAttributes(
			attribute.String("job.name", job.Name),
			attribute.String("run.id", runID),
			attribute.String("script.path", script.Path),
		))
	defer span.End()

	sr := ScriptResult{Path: script.Path, Args: script.Args, StartedAt: e.Now()}

	if e.OnScriptStart != nil {
		e.OnScriptStart(job.Name, runID, script.Path)
	}
	defer func() {
		if e.OnScriptComplete != nil {
			e.OnScriptComplete(job.Name, runID, sr)
		}
	}()

	timeout := time.Duration(script.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(schedule.DefaultScriptTimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := map[string]string{
		"CHIEF_JOB_NAME":      job.Name,
		"CHIEF_RUN_ID":        runID,
		"CHIEF_SCRIPT_INDEX":  fmt.Sprintf("%d", idx),
		"CHIEF_SCRIPT_PATH":   script.Path,
		"CHIEF_SCHEDULED_FOR": scheduledFor.Format(time.RFC3339),
	}
	if e.MonitorEndpoint != "" {
		env["CHIEF_MONITOR_ENDPOINT"] = e.MonitorEndpoint
		env["CHIEF_MONITOR_API_KEY"] = e.MonitorAPIKey
	}

	handle, err := e.Runtime.Start(runCtx, StartOptions{
		Path:       script.Path,
		Args:       script.Args,
		WorkingDir: job.WorkingDir,
		RunID:      fmt.Sprintf("%s-%d", runID, idx),
		Env:        env,
	})
	if err != nil {
		sr.Error = err
		sr.ExitCode = -2
		sr.FinishedAt = e.Now()
		return sr
	}

	tail := newTailRecorder(tailLines)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.streamLines(runCtx, job.Name, runID, script.Path, handle, tail)
	}()

	result, _ := handle.Wait(runCtx)
	wg.Wait()

	sr.ExitCode = result.ExitCode
	sr.Error = result.Error
	sr.Success = result.ExitCode == 0
	sr.Tail = tail.snapshot()

	if runCtx.Err() == context.DeadlineExceeded {
		sr.TimedOut = true
		sr.Success = false
		sr.ExitCode = -1
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		handle.Stop(stopCtx)
		stopCancel()
	}

	sr.FinishedAt = e.Now()
	span.SetAttributes(attribute.Int("script.exit_code", sr.ExitCode), attribute.Bool("script.success", sr.Success))
	return sr
}

func (e *Executor) streamLines(ctx context.Context, jobName, runID, scriptPath string, handle Handle, tail *tailRecorder) {
	rc, err := handle.StreamLogs(ctx)
	if err != nil {
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if e.OnLine != nil {
			e.OnLine(jobName, runID, scriptPath, line)
		}
	}
}
