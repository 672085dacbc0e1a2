package api_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	api "github.com/nixpig/buildworker/api/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestBuildStatusProto(t *testing.T) {
	t.Parallel()

	t.Run("Test stopped build keeps summary", func(t *testing.T) {
		t.Parallel()

		want := &api.BuildStatus{
			ID:            "5b1f",
			Project:       "MyGame",
			Target:        "windows",
			Verb:          "PackageZip",
			Platform:      "Windows",
			Runner:        "YYC",
			State:         "Stopped",
			Display:       "Failed",
			StoppedByUser: false,
			ExitCode:      2,
			StartedAt:     time.Date(2026, 3, 1, 10, 0, 0, 1500, time.UTC),
			Summary: &api.Summary{
				Lines:    12,
				Errors:   []string{"Error : missing sprite"},
				Warnings: []string{},
				Outcome:  "Failed",
				Elapsed:  1500 * time.Millisecond,
			},
		}

		s, err := want.ToProto()
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		got, err := api.BuildStatusFromProto(s)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("expected status (-want +got):\n%s", diff)
		}
	})

	t.Run("Test wrong field type", func(t *testing.T) {
		t.Parallel()

		s, err := structpb.NewStruct(map[string]any{"exit_code": "two"})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, err := api.BuildStatusFromProto(s); err == nil {
			t.Errorf("expected to receive error")
		}
	})
}

type fakeServer struct {
	builds map[string]*api.BuildStatus
	output []byte
}

func (s *fakeServer) RunBuild(
	_ context.Context,
	req *api.RunBuildRequest,
) (*api.BuildStatus, error) {
	return &api.BuildStatus{ID: "1", Target: req.Target, Verb: req.Verb, State: "Running"}, nil
}

func (s *fakeServer) StopBuild(_ context.Context, ref *api.BuildRef) error {
	if _, ok := s.builds[ref.ID]; !ok {
		return status.Error(codes.NotFound, "job not found")
	}

	return nil
}

func (s *fakeServer) QueryBuild(
	_ context.Context,
	ref *api.BuildRef,
) (*api.BuildStatus, error) {
	b, ok := s.builds[ref.ID]
	if !ok {
		return nil, status.Error(codes.NotFound, "job not found")
	}

	return b, nil
}

func (s *fakeServer) ListBuilds(context.Context) ([]*api.BuildStatus, error) {
	return []*api.BuildStatus{s.builds["1"], s.builds["2"]}, nil
}

func (s *fakeServer) StreamBuildOutput(
	ref *api.BuildRef,
	stream api.BuildOutputServer,
) error {
	for i := 0; i < len(s.output); i += 4 {
		if err := stream.Send(s.output[i:min(i+4, len(s.output))]); err != nil {
			return err
		}
	}

	return nil
}

func newTestClient(t *testing.T, srv api.BuildServiceServer) api.BuildServiceClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)

	s := grpc.NewServer()
	api.RegisterBuildServiceServer(s, srv)

	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	t.Cleanup(func() { conn.Close() })

	return api.NewBuildServiceClient(conn)
}

func TestBuildService(t *testing.T) {
	t.Parallel()

	srv := &fakeServer{
		builds: map[string]*api.BuildStatus{
			"1": {ID: "1", State: "Running"},
			"2": {ID: "2", State: "Stopped", Display: "Finished"},
		},
		output: []byte("Igor complete.\n"),
	}

	client := newTestClient(t, srv)

	t.Run("Test run build", func(t *testing.T) {
		t.Parallel()

		got, err := client.RunBuild(
			t.Context(),
			&api.RunBuildRequest{Target: "windows", Verb: "Clean"},
		)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		want := &api.BuildStatus{ID: "1", Target: "windows", Verb: "Clean", State: "Running"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("expected status (-want +got):\n%s", diff)
		}
	})

	t.Run("Test stop unknown build", func(t *testing.T) {
		t.Parallel()

		err := client.StopBuild(t.Context(), &api.BuildRef{ID: "missing"})
		if status.Code(err) != codes.NotFound {
			t.Errorf("expected not found: got '%v'", err)
		}
	})

	t.Run("Test query build", func(t *testing.T) {
		t.Parallel()

		got, err := client.QueryBuild(t.Context(), &api.BuildRef{ID: "2"})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if diff := cmp.Diff(srv.builds["2"], got); diff != "" {
			t.Errorf("expected status (-want +got):\n%s", diff)
		}
	})

	t.Run("Test list builds", func(t *testing.T) {
		t.Parallel()

		got, err := client.ListBuilds(t.Context())
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		want := []*api.BuildStatus{srv.builds["1"], srv.builds["2"]}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("expected statuses (-want +got):\n%s", diff)
		}
	})

	t.Run("Test stream build output", func(t *testing.T) {
		t.Parallel()

		stream, err := client.StreamBuildOutput(t.Context(), &api.BuildRef{ID: "1"})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		var got []byte

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}

			if err != nil {
				t.Fatalf("expected not to receive error: got '%v'", err)
			}

			got = append(got, chunk...)
		}

		if string(got) != string(srv.output) {
			t.Errorf("expected output: got '%s', want '%s'", got, srv.output)
		}
	})
}
