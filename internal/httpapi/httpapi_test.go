package httpapi_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	api "github.com/nixpig/buildworker/api/v1"
	"github.com/nixpig/buildworker/internal/httpapi"
	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/jobmanager/output"
)

type fakeSource struct {
	builds  []*api.BuildStatus
	outputs map[string]*output.Buffer
}

func (s *fakeSource) Build(id string) (*api.BuildStatus, error) {
	for _, b := range s.builds {
		if b.ID == id {
			return b, nil
		}
	}

	return nil, fmt.Errorf("build '%s': %w", id, jobmanager.ErrJobNotFound)
}

func (s *fakeSource) Builds() []*api.BuildStatus {
	return s.builds
}

func (s *fakeSource) Output(id string, follow bool) (io.ReadCloser, error) {
	b, ok := s.outputs[id]
	if !ok {
		return nil, jobmanager.ErrJobNotFound
	}

	if !follow {
		return io.NopCloser(strings.NewReader(b.String())), nil
	}

	return b.Subscribe(), nil
}

func newTestServer(t *testing.T, source httpapi.Source) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(httpapi.NewRouter(source, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)

	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return resp.StatusCode, string(body)
}

func TestRouter(t *testing.T) {
	t.Parallel()

	running := output.NewBuffer()
	running.Write([]byte("compiling\n"))

	finished := output.NewBuffer()
	finished.Write([]byte("Igor complete.\n"))
	finished.Close()

	source := &fakeSource{
		builds: []*api.BuildStatus{
			{
				ID:        "a",
				Project:   "MyGame",
				Verb:      "Run",
				Platform:  "Windows",
				Runner:    "VM",
				State:     "Running",
				StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			},
			{
				ID:      "b",
				Project: "MyGame",
				State:   "Stopped",
				Display: "Finished",
				Summary: &api.Summary{
					Lines:    2,
					Errors:   []string{},
					Warnings: []string{},
					Outcome:  "Succeeded",
				},
			},
		},
		outputs: map[string]*output.Buffer{"a": running, "b": finished},
	}

	srv := newTestServer(t, source)

	t.Run("Test health", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/health")

		if code != http.StatusOK || body != "OK\n" {
			t.Errorf("expected healthy response: got '%d' '%s'", code, body)
		}
	})

	t.Run("Test list builds", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/builds")
		if code != http.StatusOK {
			t.Fatalf("expected status: got '%d', want '%d'", code, http.StatusOK)
		}

		var got []*api.BuildStatus
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("expected valid json: got '%v'", err)
		}

		if diff := cmp.Diff(source.builds, got); diff != "" {
			t.Errorf("expected builds (-want +got):\n%s", diff)
		}
	})

	t.Run("Test get build", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/builds/b")
		if code != http.StatusOK {
			t.Fatalf("expected status: got '%d', want '%d'", code, http.StatusOK)
		}

		var got api.BuildStatus
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("expected valid json: got '%v'", err)
		}

		if diff := cmp.Diff(source.builds[1], &got); diff != "" {
			t.Errorf("expected build (-want +got):\n%s", diff)
		}
	})

	t.Run("Test get unknown build", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/builds/missing")

		if code != http.StatusNotFound {
			t.Errorf("expected status: got '%d', want '%d'", code, http.StatusNotFound)
		}

		if !strings.Contains(body, jobmanager.ErrJobNotFound.Error()) {
			t.Errorf("expected error body: got '%s'", body)
		}
	})

	t.Run("Test get output", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/builds/a/output")

		if code != http.StatusOK || body != "compiling\n" {
			t.Errorf("expected output: got '%d' '%s'", code, body)
		}
	})

	t.Run("Test follow output of finished build", func(t *testing.T) {
		t.Parallel()

		code, body := get(t, srv.URL+"/builds/b/output?follow=true")

		if code != http.StatusOK || body != "Igor complete.\n" {
			t.Errorf("expected output: got '%d' '%s'", code, body)
		}
	})

	t.Run("Test output of unknown build", func(t *testing.T) {
		t.Parallel()

		if code, _ := get(t, srv.URL+"/builds/missing/output"); code != http.StatusNotFound {
			t.Errorf("expected status: got '%d', want '%d'", code, http.StatusNotFound)
		}
	})
}

func TestFollowOutput(t *testing.T) {
	t.Parallel()

	b := output.NewBuffer()
	b.Write([]byte("first\n"))

	srv := newTestServer(t, &fakeSource{outputs: map[string]*output.Buffer{"a": b}})

	resp, err := http.Get(srv.URL + "/builds/a/output?follow=true")
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	defer resp.Body.Close()

	bodyCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			errCh <- err
			return
		}

		bodyCh <- string(body)
	}()

	b.Write([]byte("second\n"))
	b.Close()

	select {
	case got := <-bodyCh:
		if got != "first\nsecond\n" {
			t.Errorf("expected followed output: got '%s'", got)
		}
	case err := <-errCh:
		t.Errorf("expected not to receive error: got '%v'", err)
	case <-time.After(5 * time.Second):
		t.Errorf("expected response to end once output closes")
	}
}

func TestEmptyBuildList(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeSource{})

	if _, body := get(t, srv.URL+"/builds"); strings.TrimSpace(body) != "[]" {
		t.Errorf("expected empty list: got '%s'", body)
	}
}
