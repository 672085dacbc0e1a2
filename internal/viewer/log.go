// Package viewer shows the output of build jobs on a terminal or any other
// io.Writer.
package viewer

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/summary"
)

var ErrNilJob = errors.New("job cannot be nil")

// Log writes the output of the jobs it's opened on to a writer as it
// arrives, followed by a footer when each job stops.
type Log struct {
	w   io.Writer
	wmu sync.Mutex

	mu       sync.Mutex
	attached []*attachment
}

// NewLog creates a Log writing to w.
func NewLog(w io.Writer) *Log {
	return &Log{w: w}
}

// Open attaches to job. Output already produced is written straight away.
// With reuse, the most recently opened job is detached first, so only the
// new job keeps writing.
func (l *Log) Open(job *jobmanager.Job, reuse bool) error {
	if job == nil {
		return ErrNilJob
	}

	l.mu.Lock()
	if reuse && len(l.attached) > 0 {
		last := l.attached[len(l.attached)-1]
		l.attached = l.attached[:len(l.attached)-1]
		last.detach()
	}

	a := &attachment{log: l, job: job}
	l.attached = append(l.attached, a)
	l.mu.Unlock()

	l.write(fmt.Sprintf(
		"==> %s: %s %s (%s)\n",
		job.Project().DisplayName(),
		job.Config().Verb,
		job.Config().Platform,
		job.ID(),
	))

	a.mu.Lock()
	a.unsubStdout = job.SubscribeStdout(a.onStdout)
	a.mu.Unlock()

	a.onStdout(job.Output())

	// Called straight away when the job has already stopped.
	unsubStop := job.SubscribeStop(a.onStop)

	a.mu.Lock()
	a.unsubStop = unsubStop
	a.mu.Unlock()

	return nil
}

// Close detaches from every job. Nothing is written afterwards.
func (l *Log) Close() error {
	l.mu.Lock()
	attached := l.attached
	l.attached = nil
	l.mu.Unlock()

	for _, a := range attached {
		a.detach()
	}

	return nil
}

func (l *Log) write(s string) {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	io.WriteString(l.w, s)
}

func (l *Log) forget(a *attachment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attached = slices.DeleteFunc(l.attached, func(o *attachment) bool {
		return o == a
	})
}

type attachment struct {
	log *Log
	job *jobmanager.Job

	mu          sync.Mutex
	written     int
	detached    bool
	unsubStdout func()
	unsubStop   func()
}

// onStdout writes the part of text not written yet. text is always the full
// output, so everything before written is known to be unchanged.
func (a *attachment) onStdout(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detached || len(text) <= a.written {
		return
	}

	a.log.write(text[a.written:])
	a.written = len(text)
}

func (a *attachment) onStop(sum summary.Summary) {
	a.onStdout(a.job.Output())

	a.mu.Lock()
	if a.detached {
		a.mu.Unlock()
		return
	}

	a.detached = true
	a.mu.Unlock()

	a.log.write(Footer(a.job.StatusDisplay(), a.job.Status().ExitCode, sum))
	a.log.forget(a)
}

func (a *attachment) detach() {
	a.mu.Lock()
	a.detached = true
	unsubs := []func(){a.unsubStdout, a.unsubStop}
	a.mu.Unlock()

	for _, fn := range unsubs {
		if fn != nil {
			fn()
		}
	}
}

// Footer formats the line written after a job's output once it stops.
func Footer(display string, exitCode int, sum summary.Summary) string {
	footer := fmt.Sprintf(
		"==> %s (exit code %d): %d error(s), %d warning(s)",
		display,
		exitCode,
		len(sum.Errors),
		len(sum.Warnings),
	)

	if sum.Elapsed > 0 {
		footer += fmt.Sprintf(" in %s", sum.Elapsed.Round(time.Millisecond))
	}

	return footer + "\n"
}
