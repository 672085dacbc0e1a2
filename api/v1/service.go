package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "build.v1.BuildService"

const (
	BuildService_RunBuild_FullMethodName          = "/build.v1.BuildService/RunBuild"
	BuildService_StopBuild_FullMethodName         = "/build.v1.BuildService/StopBuild"
	BuildService_QueryBuild_FullMethodName        = "/build.v1.BuildService/QueryBuild"
	BuildService_ListBuilds_FullMethodName        = "/build.v1.BuildService/ListBuilds"
	BuildService_StreamBuildOutput_FullMethodName = "/build.v1.BuildService/StreamBuildOutput"
)

// BuildServiceServer is the server API for the build service.
type BuildServiceServer interface {
	RunBuild(context.Context, *RunBuildRequest) (*BuildStatus, error)
	StopBuild(context.Context, *BuildRef) error
	QueryBuild(context.Context, *BuildRef) (*BuildStatus, error)
	ListBuilds(context.Context) ([]*BuildStatus, error)
	StreamBuildOutput(*BuildRef, BuildOutputServer) error
}

// BuildOutputServer sends chunks of build output to a client.
type BuildOutputServer interface {
	Send(chunk []byte) error
	Context() context.Context
}

func RegisterBuildServiceServer(s grpc.ServiceRegistrar, srv BuildServiceServer) {
	s.RegisterService(&BuildService_ServiceDesc, srv)
}

// BuildService_ServiceDesc is the grpc.ServiceDesc for the build service.
var BuildService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BuildServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunBuild", Handler: runBuildHandler},
		{MethodName: "StopBuild", Handler: stopBuildHandler},
		{MethodName: "QueryBuild", Handler: queryBuildHandler},
		{MethodName: "ListBuilds", Handler: listBuildsHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamBuildOutput",
			Handler:       streamBuildOutputHandler,
			ServerStreams: true,
		},
	},
	Metadata: "build.v1",
}

// unary decodes the request message into in and runs call through the
// server's interceptor, if any.
func unary(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	fullMethod string,
	in any,
	call func(ctx context.Context, s BuildServiceServer, req any) (any, error),
) (any, error) {
	if err := dec(in); err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return call(ctx, srv.(BuildServiceServer), req)
	}

	if interceptor == nil {
		return handler(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}

	return interceptor(ctx, in, info, handler)
}

func runBuildHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return unary(
		srv, ctx, dec, interceptor,
		BuildService_RunBuild_FullMethodName,
		new(structpb.Struct),
		func(ctx context.Context, s BuildServiceServer, req any) (any, error) {
			r, err := RunBuildRequestFromProto(req.(*structpb.Struct))
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}

			b, err := s.RunBuild(ctx, r)
			if err != nil {
				return nil, err
			}

			return b.ToProto()
		},
	)
}

func stopBuildHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return unary(
		srv, ctx, dec, interceptor,
		BuildService_StopBuild_FullMethodName,
		new(wrapperspb.StringValue),
		func(ctx context.Context, s BuildServiceServer, req any) (any, error) {
			ref := &BuildRef{ID: req.(*wrapperspb.StringValue).GetValue()}

			if err := s.StopBuild(ctx, ref); err != nil {
				return nil, err
			}

			return &emptypb.Empty{}, nil
		},
	)
}

func queryBuildHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return unary(
		srv, ctx, dec, interceptor,
		BuildService_QueryBuild_FullMethodName,
		new(wrapperspb.StringValue),
		func(ctx context.Context, s BuildServiceServer, req any) (any, error) {
			ref := &BuildRef{ID: req.(*wrapperspb.StringValue).GetValue()}

			b, err := s.QueryBuild(ctx, ref)
			if err != nil {
				return nil, err
			}

			return b.ToProto()
		},
	)
}

func listBuildsHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	return unary(
		srv, ctx, dec, interceptor,
		BuildService_ListBuilds_FullMethodName,
		new(emptypb.Empty),
		func(ctx context.Context, s BuildServiceServer, _ any) (any, error) {
			builds, err := s.ListBuilds(ctx)
			if err != nil {
				return nil, err
			}

			return BuildStatusesToProto(builds)
		},
	)
}

func streamBuildOutputHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	return srv.(BuildServiceServer).StreamBuildOutput(
		&BuildRef{ID: in.GetValue()},
		&buildOutputServer{stream},
	)
}

type buildOutputServer struct {
	grpc.ServerStream
}

func (s *buildOutputServer) Send(chunk []byte) error {
	return s.ServerStream.SendMsg(wrapperspb.Bytes(chunk))
}
