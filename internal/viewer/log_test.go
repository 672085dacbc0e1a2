package viewer_test

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nixpig/buildworker/internal/compiler"
	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/summary"
	"github.com/nixpig/buildworker/internal/testutil"
	"github.com/nixpig/buildworker/internal/viewer"
)

func startJob(t *testing.T, script string) *jobmanager.Job {
	t.Helper()

	job, err := jobmanager.NewJob(
		uuid.NewString(),
		compiler.Project{Path: "/games/Test/Test.yyp"},
		compiler.JobConfiguration{
			Verb:     compiler.VerbRun,
			Platform: compiler.PlatformLinux,
		},
		exec.Command("/bin/sh", "-c", script),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if err := job.Start(); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	t.Cleanup(func() {
		job.Stop()
		<-job.Done()
	})

	return job
}

func waitDone(t *testing.T, job *jobmanager.Job) {
	t.Helper()

	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("expected job to finish")
	}
}

func TestLog(t *testing.T) {
	t.Parallel()

	t.Run("Test writes output once followed by footer", func(t *testing.T) {
		t.Parallel()

		buf := &testutil.SafeBuffer{}
		l := viewer.NewLog(buf)

		job := startJob(t, "echo one; sleep 0.1; echo two; echo 'Igor complete.'")

		if err := l.Open(job, false); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		waitDone(t, job)

		got := buf.String()

		if n := strings.Count(got, "one\n"); n != 1 {
			t.Errorf("expected output to be written once: got '%d' times in '%s'", n, got)
		}

		if !strings.Contains(got, job.Output()) {
			t.Errorf("expected full output: got '%s', want '%s'", got, job.Output())
		}

		if !strings.HasPrefix(got, "==> Test: Run Linux ("+job.ID()+")\n") {
			t.Errorf("expected header: got '%s'", got)
		}

		if !strings.HasSuffix(got, "==> Finished (exit code 0): 0 error(s), 0 warning(s)\n") {
			t.Errorf("expected footer: got '%s'", got)
		}
	})

	t.Run("Test open on stopped job", func(t *testing.T) {
		t.Parallel()

		buf := &testutil.SafeBuffer{}
		l := viewer.NewLog(buf)

		job := startJob(t, "echo 'Error : missing asset'; exit 3")
		waitDone(t, job)

		if err := l.Open(job, false); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		got := buf.String()

		if !strings.Contains(got, "Error : missing asset\n") {
			t.Errorf("expected output: got '%s'", got)
		}

		if !strings.HasSuffix(got, "==> Failed (exit code 3): 1 error(s), 0 warning(s)\n") {
			t.Errorf("expected footer: got '%s'", got)
		}
	})

	t.Run("Test reuse detaches previous job", func(t *testing.T) {
		t.Parallel()

		buf := &testutil.SafeBuffer{}
		l := viewer.NewLog(buf)

		first := startJob(t, "echo first; sleep 30")
		second := startJob(t, "sleep 0.2; echo second")

		if err := l.Open(first, false); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := l.Open(second, true); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := first.Stop(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		waitDone(t, first)
		waitDone(t, second)

		got := buf.String()

		if strings.Contains(got, jobmanager.DisplayStopped) {
			t.Errorf("expected no footer for detached job: got '%s'", got)
		}

		if !strings.Contains(got, "second\n") ||
			!strings.HasSuffix(got, "==> Finished (exit code 0): 0 error(s), 0 warning(s)\n") {
			t.Errorf("expected output and footer of reused view: got '%s'", got)
		}
	})

	t.Run("Test close detaches all jobs", func(t *testing.T) {
		t.Parallel()

		buf := &testutil.SafeBuffer{}
		l := viewer.NewLog(buf)

		job := startJob(t, "sleep 0.2; printf 'out%s\\n' put")

		if err := l.Open(job, false); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := l.Close(); err != nil {
			t.Errorf("expected not to receive error: got '%v'", err)
		}

		waitDone(t, job)

		if got := buf.String(); strings.Contains(got, "output") {
			t.Errorf("expected no output after close: got '%s'", got)
		}
	})

	t.Run("Test nil job", func(t *testing.T) {
		t.Parallel()

		l := viewer.NewLog(&testutil.SafeBuffer{})

		if err := l.Open(nil, true); !errors.Is(err, viewer.ErrNilJob) {
			t.Errorf("expected ErrNilJob: got '%v'", err)
		}
	})
}

func TestFooter(t *testing.T) {
	t.Parallel()

	got := viewer.Footer(jobmanager.DisplayFinished, 0, summary.Summary{
		Warnings: []string{"Warning : unused"},
		Elapsed:  1500 * time.Millisecond,
	})

	want := "==> Finished (exit code 0): 0 error(s), 1 warning(s) in 1.5s\n"
	if got != want {
		t.Errorf("expected footer: got '%s', want '%s'", got, want)
	}
}
