// Package auth authorises build service calls by the role carried in the
// client certificate's organisational unit.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	api "github.com/nixpig/buildworker/api/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type Permission string

const (
	PermissionBuildRun    Permission = "build:run"
	PermissionBuildStop   Permission = "build:stop"
	PermissionBuildQuery  Permission = "build:query"
	PermissionBuildList   Permission = "build:list"
	PermissionBuildStream Permission = "build:stream"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var RolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermissionBuildRun,
		PermissionBuildStop,
		PermissionBuildQuery,
		PermissionBuildList,
		PermissionBuildStream,
	},
	RoleViewer: {
		PermissionBuildQuery,
		PermissionBuildList,
		PermissionBuildStream,
	},
}

var MethodPermissions = map[string]Permission{
	api.BuildService_RunBuild_FullMethodName:          PermissionBuildRun,
	api.BuildService_StopBuild_FullMethodName:         PermissionBuildStop,
	api.BuildService_QueryBuild_FullMethodName:        PermissionBuildQuery,
	api.BuildService_ListBuilds_FullMethodName:        PermissionBuildList,
	api.BuildService_StreamBuildOutput_FullMethodName: PermissionBuildStream,
}

// GetClientIdentity returns the common name and first organisational unit
// of the verified client certificate.
func GetClientIdentity(ctx context.Context) (string, string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", "", fmt.Errorf("failed to get peer info from context")
	}

	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", "", fmt.Errorf("failed to get TLS info from peer auth info")
	}

	if len(tlsInfo.State.VerifiedChains) == 0 ||
		len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", "", fmt.Errorf("no verified chains in TLS info")
	}

	cert := tlsInfo.State.VerifiedChains[0][0]

	cn := cert.Subject.CommonName

	var ou string
	if len(cert.Subject.OrganizationalUnit) > 0 {
		ou = cert.Subject.OrganizationalUnit[0]
	}

	return cn, ou, nil
}

func IsAuthorised(clientRole Role, method string) error {
	required, exists := MethodPermissions[method]
	if !exists {
		return fmt.Errorf("method '%s' has no permission assigned", method)
	}

	permissions, ok := RolePermissions[clientRole]
	if !ok {
		return fmt.Errorf("unknown role '%s'", clientRole)
	}

	if !slices.Contains(permissions, required) {
		return fmt.Errorf("role '%s' lacks permission '%s'", clientRole, required)
	}

	return nil
}

// Authorise checks the client calling method is allowed to. The returned
// error is a gRPC status: Unauthenticated without a verified client
// certificate, PermissionDenied when the role doesn't allow the call.
func Authorise(ctx context.Context, method string, logger *slog.Logger) error {
	cn, ou, err := GetClientIdentity(ctx)
	if err != nil {
		logger.Warn("failed to get client identity", "method", method, "err", err)
		return status.Error(codes.Unauthenticated, "not authenticated")
	}

	role := Role(ou)

	if err := IsAuthorised(role, method); err != nil {
		logger.Warn(
			"failed to authorise client",
			"cn", cn,
			"role", role,
			"method", method,
			"err", err,
		)

		return status.Error(codes.PermissionDenied, "not authorised")
	}

	logger.Debug("authorised client request", "cn", cn, "role", role, "method", method)

	return nil
}

// UnaryInterceptor authorises unary calls before they reach the handler.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := Authorise(ctx, info.FullMethod, logger); err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamInterceptor authorises streaming calls before they reach the
// handler.
func StreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := Authorise(ss.Context(), info.FullMethod, logger); err != nil {
			return err
		}

		return handler(srv, ss)
	}
}
