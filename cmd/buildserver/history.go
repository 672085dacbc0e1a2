package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	api "github.com/nixpig/buildworker/api/v1"
	"github.com/nixpig/buildworker/internal/jobmanager"
)

const defaultHistoryLimit = 1000

// history remembers every job run by the server, so stopped jobs can still
// be queried after the Controller has deregistered them. It's kept in
// memory only.
type history struct {
	limit int

	mu      sync.Mutex
	order   []string
	records map[string]*record
}

type record struct {
	job    *jobmanager.Job
	target string
}

func newHistory(limit int) *history {
	return &history{limit: limit, records: make(map[string]*record)}
}

// add remembers job, forgetting the oldest stopped jobs beyond the limit.
func (h *history) add(job *jobmanager.Job, target string) *record {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := &record{job: job, target: target}

	h.records[job.ID()] = r
	h.order = append(h.order, job.ID())

	for i := 0; len(h.order) > h.limit && i < len(h.order); {
		id := h.order[i]

		if h.records[id].job.Status().State == jobmanager.JobStateRunning {
			i++
			continue
		}

		delete(h.records, id)
		h.order = append(h.order[:i], h.order[i+1:]...)
	}

	return r
}

func (h *history) get(id string) (*record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.records[id]
	if !ok {
		return nil, fmt.Errorf("build '%s': %w", id, jobmanager.ErrJobNotFound)
	}

	return r, nil
}

// Build implements httpapi.Source.
func (h *history) Build(id string) (*api.BuildStatus, error) {
	r, err := h.get(id)
	if err != nil {
		return nil, err
	}

	return describe(r), nil
}

// Builds implements httpapi.Source. Builds are returned in the order they
// were run.
func (h *history) Builds() []*api.BuildStatus {
	h.mu.Lock()
	records := make([]*record, 0, len(h.order))
	for _, id := range h.order {
		records = append(records, h.records[id])
	}
	h.mu.Unlock()

	builds := make([]*api.BuildStatus, 0, len(records))
	for _, r := range records {
		builds = append(builds, describe(r))
	}

	return builds
}

// Output implements httpapi.Source.
func (h *history) Output(id string, follow bool) (io.ReadCloser, error) {
	r, err := h.get(id)
	if err != nil {
		return nil, err
	}

	if follow {
		return r.job.StreamOutput(), nil
	}

	return io.NopCloser(strings.NewReader(r.job.Output())), nil
}

func describe(r *record) *api.BuildStatus {
	job := r.job
	st := job.Status()
	cfg := job.Config()

	b := &api.BuildStatus{
		ID:            job.ID(),
		Project:       job.Project().DisplayName(),
		Target:        r.target,
		Verb:          string(cfg.Verb),
		Platform:      string(cfg.Platform),
		Runner:        string(cfg.Runner),
		State:         st.State.String(),
		Display:       job.StatusDisplay(),
		StoppedByUser: st.StoppedByUser,
		ExitCode:      st.ExitCode,
		StartedAt:     job.StartedAt(),
	}

	if sum, ok := job.Summary(); ok {
		b.Summary = &api.Summary{
			Lines:    sum.Lines,
			Errors:   sum.Errors,
			Warnings: sum.Warnings,
			Outcome:  sum.Outcome.String(),
			Elapsed:  sum.Elapsed,
		}
	}

	return b
}
