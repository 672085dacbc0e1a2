package jobmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nixpig/buildworker/internal/compiler"
	"github.com/nixpig/buildworker/internal/summary"
)

// Viewer displays the output of a Job to the user.
type Viewer interface {
	// Open shows job. With reuse, the view of a previously opened Job is
	// replaced instead of opening another one.
	Open(job *Job, reuse bool) error
}

// Controller is responsible for creating Jobs and tracking the ones that
// are still running.
type Controller struct {
	// Jobs are removed when they stop, so the map only ever holds running
	// (or just-stopped, not yet exited) Jobs.
	jobs map[string]*Job

	logger *slog.Logger
	viewer Viewer

	mu sync.Mutex
}

// NewController creates a Controller ready to run Jobs. viewer may be nil if
// OpenEditor is never called.
func NewController(logger *slog.Logger, viewer Viewer) *Controller {
	return &Controller{
		jobs:   make(map[string]*Job),
		logger: logger,
		viewer: viewer,
	}
}

// Run builds the driver flags for cfg, spawns the driver in the project
// directory and returns the running Job. The Job stays registered until its
// stop event fires.
//
// cfg.Verb may be rewritten, see compiler.BuildFlags. Failures before the
// process is running are returned as *Error.
func (c *Controller) Run(
	project compiler.Project,
	rt compiler.Runtime,
	userPath string,
	cfg *compiler.JobConfiguration,
) (*Job, error) {
	args, err := compiler.BuildFlags(project, rt.Path, userPath, cfg)
	if err != nil {
		return nil, &Error{
			Kind:    KindConfiguration,
			Message: "build driver flags",
			Hint:    "supported verbs are " + supportedVerbs(),
			Cause:   err,
		}
	}

	if !rt.SupportsProject(project) {
		return nil, &Error{
			Kind: KindCompatibility,
			Message: fmt.Sprintf(
				"runtime '%s' cannot build project '%s'",
				rt.Version,
				project.DisplayName(),
			),
			Hint: fmt.Sprintf(
				"runtime builds '%s' projects but the project uses '%s'; select a runtime that supports '%s'",
				rt.ProjectFormat,
				project.Format,
				project.Format,
			),
		}
	}

	if err := os.MkdirAll(cfg.BuildDir, 0755); err != nil {
		return nil, &Error{
			Kind:    KindSpawn,
			Message: "create build directory",
			Hint:    "check the build directory is writable",
			Cause:   err,
		}
	}

	driver := rt.DriverPath()

	cmd := exec.Command(driver, args...)
	cmd.Dir = project.Dir()

	id := uuid.NewString()

	job, err := NewJob(id, project, *cfg, cmd)
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Message: "create job", Cause: err}
	}

	var once sync.Once
	job.SubscribeStop(func(sum summary.Summary) {
		once.Do(func() { c.remove(id) })

		st := job.Status()
		c.logger.Info(
			"job stopped",
			"id", id,
			"status", job.StatusDisplay(),
			"exit_code", st.ExitCode,
			"stopped_by_user", st.StoppedByUser,
			"errors", len(sum.Errors),
			"warnings", len(sum.Warnings),
		)
	})

	// Registered before Start so that a process exiting immediately can't be
	// removed before it's added.
	c.add(job)

	if err := job.Start(); err != nil {
		c.remove(id)

		return nil, &Error{
			Kind:    KindSpawn,
			Message: "start driver",
			Hint:    fmt.Sprintf("check the driver exists at '%s'", driver),
			Cause:   err,
		}
	}

	c.logger.Info(
		"job started",
		"id", id,
		"project", project.DisplayName(),
		"verb", cfg.Verb,
		"platform", cfg.Platform,
		"runner", cfg.Runner,
	)

	c.logger.Debug("driver command", "id", id, "cmd", cmd.String())

	return job, nil
}

// OpenEditor shows the output of job in the Controller's Viewer.
func (c *Controller) OpenEditor(job *Job, reuse bool) error {
	if c.viewer == nil {
		return errors.New("no viewer configured")
	}

	return c.viewer.Open(job, reuse)
}

// Stop stops the running Job with the given id or returns ErrJobNotFound if
// it isn't registered.
func (c *Controller) Stop(id string) error {
	job, err := c.Get(id)
	if err != nil {
		return err
	}

	return job.Stop()
}

// Get returns the running Job with the given id or ErrJobNotFound if it
// isn't registered.
func (c *Controller) Get(id string) (*Job, error) {
	c.mu.Lock()
	job, exists := c.jobs[id]
	c.mu.Unlock()

	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// Jobs returns the registered Jobs, oldest first.
func (c *Controller) Jobs() []*Job {
	c.mu.Lock()
	jobs := slices.Collect(maps.Values(c.jobs))
	c.mu.Unlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		if n := a.StartedAt().Compare(b.StartedAt()); n != 0 {
			return n
		}

		return strings.Compare(a.ID(), b.ID())
	})

	return jobs
}

// Shutdown stops every registered Job and waits for their processes to
// exit. Jobs that stop on their own meanwhile are skipped.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	jobs := slices.Collect(maps.Values(c.jobs))
	c.mu.Unlock()

	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Go(func() {
			err := job.Stop()

			switch {
			case err == nil:
			case errors.As(err, new(InvalidStateError)):
				// Never started; there's nothing to wait for.
				if job.Status().State == JobStateCreated {
					return
				}
			default:
				c.logger.Warn("stop job on shutdown", "id", job.ID(), "err", err)
			}

			<-job.Done()
		})
	}

	wg.Wait()
}

func (c *Controller) add(job *Job) {
	c.mu.Lock()
	c.jobs[job.ID()] = job
	c.mu.Unlock()
}

func (c *Controller) remove(id string) {
	c.mu.Lock()
	delete(c.jobs, id)
	c.mu.Unlock()
}

func supportedVerbs() string {
	verbs := compiler.SupportedVerbs()

	names := make([]string, len(verbs))
	for i, v := range verbs {
		names[i] = string(v)
	}

	return strings.Join(names, ", ")
}
