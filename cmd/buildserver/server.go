package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	api "github.com/nixpig/buildworker/api/v1"
	"github.com/nixpig/buildworker/internal/auth"
	"github.com/nixpig/buildworker/internal/buildconfig"
	"github.com/nixpig/buildworker/internal/compiler"
	"github.com/nixpig/buildworker/internal/jobmanager"
	"github.com/nixpig/buildworker/internal/tlsconfig"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// streamBufferSize is the buffer size for reading job output.
	// 4KB aligns with typical pipe buffer sizes.
	streamBufferSize = 4096
)

type server struct {
	controller *jobmanager.Controller
	presets    *buildconfig.File
	history    *history
	logger     *slog.Logger
	cfg        *serverConfig

	mu         sync.Mutex
	grpcServer *grpc.Server
	closed     bool
}

func newServer(
	controller *jobmanager.Controller,
	presets *buildconfig.File,
	history *history,
	logger *slog.Logger,
	cfg *serverConfig,
) *server {
	return &server{
		controller: controller,
		presets:    presets,
		history:    history,
		logger:     logger,
		cfg:        cfg,
	}
}

func (s *server) start(listener net.Listener) error {
	creds, err := tlsconfig.Credentials(&tlsconfig.Config{
		CertPath:   s.cfg.serverCertPath,
		KeyPath:    s.cfg.serverKeyPath,
		CACertPath: s.cfg.caCertPath,
		Server:     true,
	})
	if err != nil {
		return fmt.Errorf("load TLS credentials: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			contextCheckUnaryInterceptor,
			auth.UnaryInterceptor(s.logger),
		),
		grpc.ChainStreamInterceptor(
			contextCheckStreamInterceptor,
			auth.StreamInterceptor(s.logger),
		),
		grpc.Creds(creds),
	)

	api.RegisterBuildServiceServer(grpcServer, s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return listener.Close()
	}
	s.grpcServer = grpcServer
	s.mu.Unlock()

	return grpcServer.Serve(listener)
}

// shutdown stops the gRPC server gracefully. A server that hasn't started
// yet won't start afterwards.
func (s *server) shutdown() {
	s.mu.Lock()
	s.closed = true
	grpcServer := s.grpcServer
	s.mu.Unlock()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

func (s *server) RunBuild(
	ctx context.Context,
	req *api.RunBuildRequest,
) (*api.BuildStatus, error) {
	if req.Target == "" {
		return nil, status.Error(codes.InvalidArgument, "target is empty")
	}

	cfg, err := s.presets.Configuration(req.Target)
	if err != nil {
		return nil, status.Errorf(
			codes.InvalidArgument,
			"%v; available targets are %s",
			err,
			strings.Join(s.presets.TargetNames(), ", "),
		)
	}

	if req.Verb != "" {
		cfg.Verb = compiler.Verb(req.Verb)
	}

	job, err := s.controller.Run(
		s.presets.ProjectRef(),
		s.presets.RuntimeRef(),
		s.presets.UserPath,
		cfg,
	)
	if err != nil {
		return nil, s.mapError("run build", err)
	}

	return describe(s.history.add(job, req.Target)), nil
}

func (s *server) StopBuild(ctx context.Context, ref *api.BuildRef) error {
	if ref.ID == "" {
		return status.Error(codes.InvalidArgument, "id is empty")
	}

	r, err := s.history.get(ref.ID)
	if err != nil {
		return s.mapError("stop build", err)
	}

	if err := r.job.Stop(); err != nil {
		return s.mapError("stop build", err)
	}

	return nil
}

func (s *server) QueryBuild(
	ctx context.Context,
	ref *api.BuildRef,
) (*api.BuildStatus, error) {
	if ref.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is empty")
	}

	b, err := s.history.Build(ref.ID)
	if err != nil {
		return nil, s.mapError("query build", err)
	}

	return b, nil
}

func (s *server) ListBuilds(ctx context.Context) ([]*api.BuildStatus, error) {
	return s.history.Builds(), nil
}

func (s *server) StreamBuildOutput(
	ref *api.BuildRef,
	stream api.BuildOutputServer,
) error {
	if ref.ID == "" {
		return status.Error(codes.InvalidArgument, "id is empty")
	}

	outputReader, err := s.history.Output(ref.ID, true)
	if err != nil {
		return s.mapError("output stream", err)
	}

	defer outputReader.Close()

	// A client going away mid-build would otherwise leave Read blocked until
	// the build produces more output.
	stop := context.AfterFunc(stream.Context(), func() { outputReader.Close() })
	defer stop()

	buf := make([]byte, streamBufferSize)
	for {
		n, err := outputReader.Read(buf)
		if n > 0 {
			if err := stream.Send(buf[:n]); err != nil {
				s.logger.Warn("stream data to client", "id", ref.ID, "err", err)
				return status.Error(codes.DataLoss, "failed to stream data")
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return s.mapError("read build output stream", err)
		}
	}

	if err := stream.Context().Err(); err != nil {
		return status.FromContextError(err).Err()
	}

	return nil
}

// mapError translates jobmanager errors to gRPC errors.
func (s *server) mapError(logMsg string, err error) error {
	var runErr *jobmanager.Error

	switch {
	case errors.Is(err, jobmanager.ErrJobNotFound):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.NotFound, err.Error())

	case errors.As(err, new(jobmanager.InvalidStateError)):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.As(err, &runErr):
		s.logger.Warn(logMsg, "kind", runErr.Kind, "err", err)

		msg := runErr.Error()
		if runErr.Hint != "" {
			msg += "; " + runErr.Hint
		}

		if runErr.Kind == jobmanager.KindSpawn {
			return status.Error(codes.FailedPrecondition, msg)
		}

		return status.Error(codes.InvalidArgument, msg)

	default:
		s.logger.Error(logMsg, "err", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

// contextCheckUnaryInterceptor rejects requests with a cancelled context.
func contextCheckUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return handler(ctx, req)
}

// contextCheckStreamInterceptor rejects streams with a cancelled context.
func contextCheckStreamInterceptor(
	srv any,
	ss grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	if ss.Context().Err() != nil {
		return status.FromContextError(ss.Context().Err()).Err()
	}

	return handler(srv, ss)
}
