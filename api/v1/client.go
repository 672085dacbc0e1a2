package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// BuildServiceClient is the client API for the build service.
type BuildServiceClient interface {
	RunBuild(ctx context.Context, req *RunBuildRequest, opts ...grpc.CallOption) (*BuildStatus, error)
	StopBuild(ctx context.Context, ref *BuildRef, opts ...grpc.CallOption) error
	QueryBuild(ctx context.Context, ref *BuildRef, opts ...grpc.CallOption) (*BuildStatus, error)
	ListBuilds(ctx context.Context, opts ...grpc.CallOption) ([]*BuildStatus, error)
	StreamBuildOutput(ctx context.Context, ref *BuildRef, opts ...grpc.CallOption) (BuildOutputClient, error)
}

// BuildOutputClient receives chunks of build output. Recv returns io.EOF
// once the build has stopped and all output was received.
type BuildOutputClient interface {
	Recv() ([]byte, error)
	grpc.ClientStream
}

type buildServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBuildServiceClient(cc grpc.ClientConnInterface) BuildServiceClient {
	return &buildServiceClient{cc}
}

func (c *buildServiceClient) RunBuild(
	ctx context.Context,
	req *RunBuildRequest,
	opts ...grpc.CallOption,
) (*BuildStatus, error) {
	in, err := req.ToProto()
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, BuildService_RunBuild_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}

	return BuildStatusFromProto(out)
}

func (c *buildServiceClient) StopBuild(
	ctx context.Context,
	ref *BuildRef,
	opts ...grpc.CallOption,
) error {
	return c.cc.Invoke(
		ctx,
		BuildService_StopBuild_FullMethodName,
		wrapperspb.String(ref.ID),
		new(emptypb.Empty),
		opts...,
	)
}

func (c *buildServiceClient) QueryBuild(
	ctx context.Context,
	ref *BuildRef,
	opts ...grpc.CallOption,
) (*BuildStatus, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(
		ctx,
		BuildService_QueryBuild_FullMethodName,
		wrapperspb.String(ref.ID),
		out,
		opts...,
	); err != nil {
		return nil, err
	}

	return BuildStatusFromProto(out)
}

func (c *buildServiceClient) ListBuilds(
	ctx context.Context,
	opts ...grpc.CallOption,
) ([]*BuildStatus, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(
		ctx,
		BuildService_ListBuilds_FullMethodName,
		&emptypb.Empty{},
		out,
		opts...,
	); err != nil {
		return nil, err
	}

	return BuildStatusesFromProto(out)
}

func (c *buildServiceClient) StreamBuildOutput(
	ctx context.Context,
	ref *BuildRef,
	opts ...grpc.CallOption,
) (BuildOutputClient, error) {
	stream, err := c.cc.NewStream(
		ctx,
		&BuildService_ServiceDesc.Streams[0],
		BuildService_StreamBuildOutput_FullMethodName,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	if err := stream.SendMsg(wrapperspb.String(ref.ID)); err != nil {
		return nil, err
	}

	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	return &buildOutputClient{stream}, nil
}

type buildOutputClient struct {
	grpc.ClientStream
}

func (c *buildOutputClient) Recv() ([]byte, error) {
	m := new(wrapperspb.BytesValue)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m.GetValue(), nil
}
