package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nixpig/buildworker/internal/compiler"
	"github.com/nixpig/buildworker/internal/jobmanager/output"
	"github.com/nixpig/buildworker/internal/summary"
)

// waitDelay bounds how long Wait blocks on output pipes that descendants of
// the driver keep open after the driver itself has exited.
const waitDelay = 2 * time.Second

// Job represents one run of the compiler driver executed using exec.Cmd. It
// owns the process for its whole lifetime.
type Job struct {
	id      string
	project compiler.Project
	config  compiler.JobConfiguration

	cmd       *exec.Cmd
	output    *output.Buffer
	startedAt time.Time

	mu              sync.Mutex
	status          Status
	display         string
	summary         *summary.Summary
	stdoutListeners listenerSet[string]
	stopListeners   listenerSet[summary.Summary]

	stopped     chan struct{}
	stoppedOnce sync.Once
	done        chan struct{}
}

// NewJob creates a Job for an unstarted cmd. The command line becomes the
// first line of the Job's output, and cmd's stdout and stderr are both
// captured into that output.
func NewJob(
	id string,
	project compiler.Project,
	config compiler.JobConfiguration,
	cmd *exec.Cmd,
) (*Job, error) {
	if cmd == nil {
		return nil, errors.New("cmd cannot be nil")
	}

	if cmd.Process != nil {
		return nil, errors.New("cmd already started")
	}

	j := &Job{
		id:      id,
		project: project,
		config:  config,
		cmd:     cmd,
		output:  output.NewBuffer(),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}

	j.status.State = JobStateCreated

	j.output.Append([]byte(cmd.String() + "\n"))

	// Sharing one writer makes exec use a single pipe for both streams, so
	// output keeps the order the process produced it in.
	w := &jobWriter{j: j}
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = waitDelay

	setProcessGroup(cmd)

	return j, nil
}

// Start starts the driver process. Trying to start a Job that is not in
// JobStateCreated returns an InvalidStateError.
func (j *Job) Start() error {
	j.mu.Lock()

	if j.status.State != JobStateCreated {
		state := j.status.State
		j.mu.Unlock()

		return NewInvalidStateError(state, JobStateRunning)
	}

	if err := j.cmd.Start(); err != nil {
		j.status.State = JobStateFailed
		j.mu.Unlock()

		j.output.Close()
		j.markStopped()
		close(j.done)

		return fmt.Errorf("failed to start process: %w", err)
	}

	j.status.State = JobStateRunning
	j.startedAt = time.Now()
	j.mu.Unlock()

	go j.wait()

	return nil
}

// Stop kills the driver process. The Job is Stopped with StoppedByUser set
// before the process confirms it has exited, and the exit that follows
// doesn't change that. Trying to stop a Job that is not in JobStateRunning
// returns an InvalidStateError.
func (j *Job) Stop() error {
	j.mu.Lock()

	if j.status.State != JobStateRunning {
		state := j.status.State
		j.mu.Unlock()

		return NewInvalidStateError(state, JobStateStopped)
	}

	j.status = Status{State: JobStateStopped, StoppedByUser: true}
	j.mu.Unlock()

	j.markStopped()

	if err := killProcess(j.cmd.Process); err != nil &&
		!errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process: %w", err)
	}

	return nil
}

// SubscribeStdout registers fn to receive the entire output text each time
// new output arrives. fn is called synchronously on the goroutine reading
// the process output and must not block for long. The returned func
// unsubscribes.
func (j *Job) SubscribeStdout(fn func(text string)) (unsubscribe func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.summary != nil {
		// No more output can arrive.
		return func() {}
	}

	id := j.stdoutListeners.add(fn)

	return func() {
		j.mu.Lock()
		j.stdoutListeners.remove(id)
		j.mu.Unlock()
	}
}

// SubscribeStop registers fn to receive the summary of the output once the
// process has exited. If that already happened, fn is called immediately.
// Either way fn is called exactly once unless unsubscribed first.
func (j *Job) SubscribeStop(fn func(summary.Summary)) (unsubscribe func()) {
	j.mu.Lock()

	if j.summary != nil {
		sum := *j.summary
		j.mu.Unlock()

		fn(sum)

		return func() {}
	}

	id := j.stopListeners.add(fn)
	j.mu.Unlock()

	return func() {
		j.mu.Lock()
		j.stopListeners.remove(id)
		j.mu.Unlock()
	}
}

// AwaitCompletion blocks until the Job is stopped, whether by Stop or by the
// process exiting on its own, and returns the final status. It returns
// immediately for a Job that's already stopped.
func (j *Job) AwaitCompletion(ctx context.Context) (Status, error) {
	select {
	case <-j.stopped:
		return j.Status(), nil
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

// ID returns the ID of the Job.
func (j *Job) ID() string {
	return j.id
}

// Project returns the project being built.
func (j *Job) Project() compiler.Project {
	return j.project
}

// Config returns the configuration the Job was created with, after any
// verb rewriting.
func (j *Job) Config() compiler.JobConfiguration {
	return j.config
}

// StartedAt returns when the process was started, or the zero time.
func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.startedAt
}

// Status returns the status of the Job.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.status
}

// StatusDisplay returns the label for the final status, computed once the
// process has exited. It's empty before that.
func (j *Job) StatusDisplay() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.display
}

// Summary returns the parsed output and true once the process has exited.
func (j *Job) Summary() (summary.Summary, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.summary == nil {
		return summary.Summary{}, false
	}

	return *j.summary, true
}

// Output returns the full output accumulated so far.
func (j *Job) Output() string {
	return j.output.String()
}

// StreamOutput returns an io.ReadCloser of output from the Job.
//
// Read returns all output since the Job was created and blocks waiting for
// new output until the process exits.
func (j *Job) StreamOutput() io.ReadCloser {
	return j.output.Subscribe()
}

// Done returns a channel that is closed when the process has exited and
// stop observers have been notified, or when the process failed to start.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) wait() {
	// Wait returns only after output copying has finished, so no stdout event
	// can follow the stop event.
	err := j.cmd.Wait()

	j.output.Close()

	exitCode := exitCodeOf(j.cmd.ProcessState, err)

	j.mu.Lock()

	if j.status.State == JobStateRunning {
		j.status = Status{State: JobStateStopped, ExitCode: exitCode}
	}

	j.display = j.status.Display()

	j.mu.Unlock()

	sum := summary.Parse(j.output.String())

	j.mu.Lock()
	j.summary = &sum
	fns := j.stopListeners.snapshot()
	j.stopListeners.clear()
	j.stdoutListeners.clear()
	j.mu.Unlock()

	broadcast(fns, sum)

	j.markStopped()
	close(j.done)
}

func (j *Job) markStopped() {
	j.stoppedOnce.Do(func() {
		close(j.stopped)
	})
}

// exitCodeOf returns the exit code of the process, or 0 when it isn't
// available, e.g. the process was killed by a signal.
func exitCodeOf(ps *os.ProcessState, err error) int {
	if ps == nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ps = exitErr.ProcessState
		}
	}

	if ps == nil || ps.ExitCode() < 0 {
		return 0
	}

	return ps.ExitCode()
}

// jobWriter receives the process output on behalf of a Job.
type jobWriter struct {
	j *Job
}

func (w *jobWriter) Write(p []byte) (int, error) {
	text := w.j.output.Append(p)

	w.j.mu.Lock()
	fns := w.j.stdoutListeners.snapshot()
	w.j.mu.Unlock()

	broadcast(fns, text)

	return len(p), nil
}
