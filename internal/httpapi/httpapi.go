// Package httpapi serves a read-only HTTP view of the builds known to the
// build server.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	api "github.com/nixpig/buildworker/api/v1"
	"github.com/nixpig/buildworker/internal/jobmanager"
)

// streamBufferSize matches the chunk size used for gRPC output streams.
const streamBufferSize = 4096

// Source provides the builds to serve. Build and Output return an error
// wrapping jobmanager.ErrJobNotFound for unknown ids.
type Source interface {
	Build(id string) (*api.BuildStatus, error)
	Builds() []*api.BuildStatus
	Output(id string, follow bool) (io.ReadCloser, error)
}

type handler struct {
	source Source
	logger *slog.Logger
}

// NewRouter returns the routes:
//
//	GET /health
//	GET /builds
//	GET /builds/{id}
//	GET /builds/{id}/output[?follow=true]
func NewRouter(source Source, logger *slog.Logger) http.Handler {
	h := &handler{source: source, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)

	r.Get("/builds", h.listBuilds)
	r.Get("/builds/{id}", h.getBuild)
	r.Get("/builds/{id}/output", h.getOutput)

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (h *handler) listBuilds(w http.ResponseWriter, r *http.Request) {
	builds := h.source.Builds()
	if builds == nil {
		builds = []*api.BuildStatus{}
	}

	h.writeJSON(w, http.StatusOK, builds)
}

func (h *handler) getBuild(w http.ResponseWriter, r *http.Request) {
	b, err := h.source.Build(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, b)
}

func (h *handler) getOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	follow, _ := strconv.ParseBool(r.URL.Query().Get("follow"))

	rc, err := h.source.Output(id, follow)
	if err != nil {
		h.writeError(w, err)
		return
	}

	defer rc.Close()

	// Unblocks a Read waiting for output the client no longer wants.
	stop := context.AfterFunc(r.Context(), func() { rc.Close() })
	defer stop()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	buf := make([]byte, streamBufferSize)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				h.logger.Debug("write build output", "id", id, "err", err)
				return
			}

			if flusher != nil {
				flusher.Flush()
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("read build output", "id", id, "err", err)
			}

			return
		}
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "err", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "internal server error"

	if errors.Is(err, jobmanager.ErrJobNotFound) {
		code = http.StatusNotFound
		msg = err.Error()
	} else {
		h.logger.Error("http request", "err", err)
	}

	h.writeJSON(w, code, map[string]string{"error": msg})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.Debug(
			"http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}
