// Package orchestrator is the daemon scheduler: it owns the compiled
// JobRuntime table, a FIFO trigger queue, and the single
// active-job pointer that enforces global serialization across jobs,
// dispatching triggers to the Job Executor under each job's overlap
// policy.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"chief/internal/exec"
	"chief/internal/logger"
	"chief/internal/schedule"
	"chief/pkg/telemetry"
)

var tracer = otel.Tracer("chief/orchestrator")

const (
	defaultPollInterval  = 10 * time.Second
	completionBufferSize = 256
)

// TriggerEvent is one pending dispatch request sitting in the FIFO
// trigger queue.
type TriggerEvent struct {
	JobName      string
	ScheduledFor time.Time
}

// Emitter is the subset of telemetry.Emitter the daemon needs.
type Emitter interface {
	Emit(ev telemetry.Event)
}

type completionMsg struct {
	jobName string
	runID   string
	result  exec.ExecutionResult
}

type dispatchAction int

const (
	actionHold dispatchAction = iota
	actionDispatch
	actionSkipDrop
	actionQueuePending
	actionDropSilently
)

// Daemon is the main loop described by the scheduler: drain
// completions, generate triggers in declaration order, run a dispatch
// pass over the trigger queue, sleep until the next poll or the next
// completion.
type Daemon struct {
	jobs   []*schedule.JobRuntime
	byName map[string]*schedule.JobRuntime

	mu            sync.Mutex
	queue         []TriggerEvent
	activeJobName string

	completions chan completionMsg

	executor *exec.Executor
	emitter  Emitter
	log      *slog.Logger

	pollInterval time.Duration
	now          func() time.Time

	runSeq int
}

// New builds a Daemon from already-compiled job runtimes, in the
// YAML declaration order Compile produced them in. Call Seed once
// before Run to populate each job's initial NextFire.
func New(jobs []*schedule.JobRuntime, executor *exec.Executor, emitter Emitter, pollInterval time.Duration, log *slog.Logger) *Daemon {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	d := &Daemon{
		jobs:         jobs,
		byName:       make(map[string]*schedule.JobRuntime, len(jobs)),
		completions:  make(chan completionMsg, completionBufferSize),
		executor:     executor,
		emitter:      emitter,
		log:          log,
		pollInterval: pollInterval,
		now:          time.Now,
	}
	for _, jr := range jobs {
		d.byName[jr.Job.Name] = jr
	}

	executor.OnScriptStart = d.emitScriptStarted
	executor.OnScriptComplete = d.emitScriptCompleted

	return d
}

// Seed sets every enabled job's NextFire to next_run_after(now).
// Triggers that would have fired in the past are never caught up on.
func (d *Daemon) Seed(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, jr := range d.jobs {
		if !jr.Job.Enabled {
			continue
		}
		if next, ok := jr.Schedule.NextRunAfter(now); ok {
			jr.NextFire = next
		}
	}
}

// Run blocks until ctx is cancelled. On cancellation it stops
// dequeuing new triggers and waits for in-flight executions to finish
// before returning, matching the worker agent's graceful-drain shape.
func (d *Daemon) Run(ctx context.Context) error {
	g := &errgroup.Group{}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.tick(g)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("orchestrator stopping, waiting for running jobs to finish")
			err := g.Wait()
			d.drainCompletions()
			return err

		case msg := <-d.completions:
			d.handleCompletion(msg)
			d.drainCompletions()
			d.tick(g)

		case <-ticker.C:
			d.tick(g)
		}
	}
}

// tick runs one iteration of steps 2-3 of the main loop: generate
// triggers for every job whose NextFire has arrived, then run a
// dispatch pass over the trigger queue. Dispatched executions always
// run against context.Background(), independent of the daemon's own
// ctx, so a cancelled daemon drains in-flight work instead of killing
// it.
func (d *Daemon) tick(g *errgroup.Group) {
	d.generateTriggers(d.now())
	d.dispatch(g)
}

func (d *Daemon) drainCompletions() {
	for {
		select {
		case msg := <-d.completions:
			d.handleCompletion(msg)
		default:
			return
		}
	}
}

// handleCompletion implements step 1 of the main loop for a single
// finished execution: decrement running_count, clear or re-arm
// active_job_name, compute the job's next trigger, emit
// job.completed/job.failed then job.next_scheduled.
func (d *Daemon) handleCompletion(msg completionMsg) {
	d.mu.Lock()
	jr := d.byName[msg.jobName]
	var next time.Time
	var hasNext bool
	var job schedule.JobSpec
	if jr != nil {
		job = jr.Job
	}
	if jr != nil {
		if jr.RunningCount > 0 {
			jr.RunningCount--
		}
		if jr.RunningCount == 0 {
			if jr.QueuedPending {
				jr.QueuedPending = false
				d.queue = append(d.queue, TriggerEvent{JobName: jr.Job.Name, ScheduledFor: d.now()})
			} else if d.activeJobName == jr.Job.Name {
				d.activeJobName = ""
			}
		}
		next, hasNext = jr.Schedule.NextRunAfter(d.now())
		if hasNext {
			jr.NextFire = next
		}
	}
	d.mu.Unlock()

	success := msg.result.Success
	durationMs := msg.result.DurationMs()

	evType := telemetry.EventJobCompleted
	level := telemetry.LevelInfo
	msgText := fmt.Sprintf("job %s completed", msg.jobName)
	if !success {
		evType = telemetry.EventJobFailed
		level = telemetry.LevelError
		msgText = fmt.Sprintf("job %s failed", msg.jobName)
	}

	d.emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  evType,
		Level:      level,
		Message:    msgText,
		JobName:    msg.jobName,
		RunID:      msg.runID,
		Success:    &success,
		DurationMs: &durationMs,
		Metadata:   monitorMetadata(job),
	})

	if hasNext {
		nextMeta := monitorMetadata(job)
		if nextMeta == nil {
			nextMeta = map[string]interface{}{}
		}
		nextMeta["next_run_at"] = next.Format(time.RFC3339)
		d.emitter.Emit(telemetry.Event{
			SourceType:   telemetry.SourceChief,
			EventType:    telemetry.EventJobNextScheduled,
			Level:        telemetry.LevelInfo,
			Message:      fmt.Sprintf("job %s next scheduled", msg.jobName),
			JobName:      msg.jobName,
			ScheduledFor: next.Format(time.RFC3339),
			Metadata:     nextMeta,
		})
	}
}

// generateTriggers implements step 2: for each JobRuntime in
// declaration order, if its NextFire has arrived, append a trigger and
// advance NextFire past it. Declaration order governs tie-breaks in
// the dispatch pass that follows.
func (d *Daemon) generateTriggers(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, jr := range d.jobs {
		if !jr.Job.Enabled || jr.NextFire.IsZero() {
			continue
		}
		if !now.Before(jr.NextFire) {
			d.queue = append(d.queue, TriggerEvent{JobName: jr.Job.Name, ScheduledFor: jr.NextFire})
			if next, ok := jr.Schedule.NextRunAfter(jr.NextFire); ok {
				jr.NextFire = next
			} else {
				jr.NextFire = time.Time{}
			}
		}
	}
}

// dispatch implements step 3: scan the trigger queue front-to-back,
// testing dispatchability for each trigger. Dispatchable triggers are
// removed and launched; non-dispatchable global-precondition failures
// are left in place (and the scan continues past them).
func (d *Daemon) dispatch(g *errgroup.Group) {
	d.mu.Lock()
	defer d.mu.Unlock()

	held := d.queue[:0]
	for _, trig := range d.queue {
		jr := d.byName[trig.JobName]
		if jr == nil {
			continue
		}

		switch d.dispatchability(jr) {
		case actionDispatch:
			d.activeJobName = jr.Job.Name
			jr.RunningCount++
			d.launch(g, jr.Job, trig)

		case actionSkipDrop:
			d.emitter.Emit(telemetry.Event{
				SourceType:   telemetry.SourceChief,
				EventType:    telemetry.EventOverlapSkipped,
				Level:        telemetry.LevelWarn,
				Message:      fmt.Sprintf("job %s still running, skipping trigger", jr.Job.Name),
				JobName:      jr.Job.Name,
				ScheduledFor: trig.ScheduledFor.Format(time.RFC3339),
			})

		case actionQueuePending:
			jr.QueuedPending = true
			d.emitter.Emit(telemetry.Event{
				SourceType:   telemetry.SourceChief,
				EventType:    telemetry.EventQueuedPending,
				Level:        telemetry.LevelInfo,
				Message:      fmt.Sprintf("job %s queued pending current run", jr.Job.Name),
				JobName:      jr.Job.Name,
				ScheduledFor: trig.ScheduledFor.Format(time.RFC3339),
			})

		case actionDropSilently:
			// A queue-policy job already has one pending trigger; this
			// one is dropped without emitting anything further.

		case actionHold:
			held = append(held, trig)
		}
	}
	d.queue = held
}

// dispatchability decides what happens to a trigger for job jr. Must
// be called with d.mu held.
func (d *Daemon) dispatchability(jr *schedule.JobRuntime) dispatchAction {
	if d.activeJobName != "" && d.activeJobName != jr.Job.Name {
		return actionHold
	}

	switch jr.Job.Overlap {
	case schedule.OverlapSkip:
		if jr.RunningCount == 0 {
			return actionDispatch
		}
		return actionSkipDrop

	case schedule.OverlapQueue:
		if jr.RunningCount == 0 && !jr.QueuedPending {
			return actionDispatch
		}
		if !jr.QueuedPending {
			return actionQueuePending
		}
		return actionDropSilently

	case schedule.OverlapParallel:
		return actionDispatch

	default:
		return actionHold
	}
}

// launch emits daemon.dispatch and starts the job executor on its own
// goroutine, tracked by g so Run can wait for it to finish on
// shutdown. The execution itself runs against context.Background(),
// independent of the daemon's own ctx, so in-flight scripts finish
// even after the daemon stops dispatching new triggers.
func (d *Daemon) launch(g *errgroup.Group, job schedule.JobSpec, trig TriggerEvent) {
	d.runSeq++
	runID := fmt.Sprintf("%s-%d-%d", job.Name, d.now().Unix(), d.runSeq)

	ctx, span := tracer.Start(context.Background(), "schedule.dispatch",
		trace.WithAttributes(
			attribute.String("job.name", job.Name),
			attribute.String("run.id", runID),
		))
	span.End()

	d.emitter.Emit(telemetry.Event{
		SourceType:   telemetry.SourceChief,
		EventType:    telemetry.EventDaemonDispatch,
		Level:        telemetry.LevelInfo,
		Message:      fmt.Sprintf("dispatching job %s", job.Name),
		JobName:      job.Name,
		RunID:        runID,
		ScheduledFor: trig.ScheduledFor.Format(time.RFC3339),
	})

	g.Go(func() error {
		d.runJob(ctx, job, runID, trig.ScheduledFor)
		return nil
	})
}

func (d *Daemon) runJob(parent context.Context, job schedule.JobSpec, runID string, scheduledFor time.Time) {
	ctx := logger.WithRunID(parent, runID)
	runLog := logger.FromContext(ctx, d.log)

	runLog.Info("job started", "job", job.Name)

	d.emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventJobStarted,
		Level:      telemetry.LevelInfo,
		Message:    fmt.Sprintf("job %s started", job.Name),
		JobName:    job.Name,
		RunID:      runID,
		Metadata:   monitorMetadata(job),
	})

	result := d.executor.Run(ctx, job, runID, scheduledFor)

	runLog.Info("job finished", "job", job.Name, "success", result.Success)

	d.completions <- completionMsg{jobName: job.Name, runID: runID, result: result}
}

// monitorMetadata carries a job's per-job check configuration in
// event metadata so the Monitor's Check Engine can derive a
// store.CheckConfig without a side-channel — the wire format has no
// separate "register this job's monitor settings" call, so every
// job-scoped event simply repeats them.
func monitorMetadata(job schedule.JobSpec) map[string]interface{} {
	if job.Monitor == nil {
		return nil
	}
	return map[string]interface{}{
		"check_enabled":    job.Monitor.CheckEnabled,
		"grace_seconds":    job.Monitor.GraceSeconds,
		"alert_on_failure": job.Monitor.AlertOnFailure,
		"alert_on_miss":    job.Monitor.AlertOnMiss,
	}
}

// emitScriptStarted and emitScriptCompleted are wired onto the shared
// Executor as OnScriptStart/OnScriptComplete: every concurrently
// running job's scripts funnel through the same Emitter, which is
// itself safe for concurrent use.
func (d *Daemon) emitScriptStarted(jobName, runID, scriptPath string) {
	d.emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventScriptStarted,
		Level:      telemetry.LevelInfo,
		Message:    fmt.Sprintf("script %s started", scriptPath),
		JobName:    jobName,
		RunID:      runID,
		ScriptPath: scriptPath,
	})
}

func (d *Daemon) emitScriptCompleted(jobName, runID string, sr exec.ScriptResult) {
	level := telemetry.LevelInfo
	if !sr.Success {
		level = telemetry.LevelError
	}
	success := sr.Success
	durationMs := sr.DurationMs()
	returnCode := sr.ExitCode

	metadata := map[string]interface{}{}
	if sr.Error != nil {
		metadata["error"] = sr.Error.Error()
	}
	if sr.TimedOut {
		metadata["timedOut"] = true
	}
	if len(sr.Tail) > 0 {
		metadata["outputTail"] = sr.Tail
	}

	d.emitter.Emit(telemetry.Event{
		SourceType: telemetry.SourceChief,
		EventType:  telemetry.EventScriptCompleted,
		Level:      level,
		Message:    fmt.Sprintf("script %s completed", sr.Path),
		JobName:    jobName,
		RunID:      runID,
		ScriptPath: sr.Path,
		Success:    &success,
		ReturnCode: &returnCode,
		DurationMs: &durationMs,
		Metadata:   metadata,
	})
}
