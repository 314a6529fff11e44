package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/vehicle-vision/internal/auth"
	"github.com/example/vehicle-vision/internal/grpcapi"
	"github.com/example/vehicle-vision/internal/vision"
)

type analyzerFunc func(ctx context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error) {
	return f(ctx, requestID, imageBytes)
}

func okResult(requestID string) *vision.AnalysisResult {
	return &vision.AnalysisResult{
		RequestID:       requestID,
		VehicleType:     vision.Sedan,
		LicensePlate:    "ABC1234",
		ConfidenceScore: 0.7,
		Format:          "png",
	}
}

func startServer(t *testing.T, analyzer analyzerFunc, verifier *auth.Verifier) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server, _ := New(NewAnalysisServer(analyzer, zap.NewNop()), verifier, grpcapi.DefaultMaxUploadBytes, zap.NewNop())
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAnalyzeUsesRequestIDFromMetadata(t *testing.T) {
	var seen string
	conn := startServer(t, func(_ context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error) {
		seen = requestID
		assert.Equal(t, []byte("image"), imageBytes)
		return okResult(requestID), nil
	}, nil)

	ctx := metadata.AppendToOutgoingContext(context.Background(), grpcapi.RequestIDMetadataKey, "req-42")
	out, err := grpcapi.Invoke(ctx, conn, wrapperspb.Bytes([]byte("image")))
	require.NoError(t, err)
	assert.Equal(t, "req-42", seen)

	result, err := grpcapi.DecodeResult(out)
	require.NoError(t, err)
	assert.Equal(t, "req-42", result.RequestID)
	assert.Equal(t, vision.Sedan, result.VehicleType)
}

func TestAnalyzeGeneratesRequestID(t *testing.T) {
	var seen string
	conn := startServer(t, func(_ context.Context, requestID string, _ []byte) (*vision.AnalysisResult, error) {
		seen = requestID
		return okResult(requestID), nil
	}, nil)

	_, err := grpcapi.Invoke(context.Background(), conn, wrapperspb.Bytes([]byte("image")))
	require.NoError(t, err)
	assert.Len(t, seen, 36)
}

func TestAnalyzeMapsClientErrors(t *testing.T) {
	conn := startServer(t, func(context.Context, string, []byte) (*vision.AnalysisResult, error) {
		return nil, &vision.InvalidInputError{Reason: "empty image"}
	}, nil)

	_, err := grpcapi.Invoke(context.Background(), conn, wrapperspb.Bytes(nil))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.ErrorIs(t, grpcapi.FromStatus(err), vision.ErrInvalidInput)
}

func TestAuthInterceptor(t *testing.T) {
	verifier, err := auth.NewVerifier("grpc-secret", "")
	require.NoError(t, err)

	conn := startServer(t, func(ctx context.Context, requestID string, _ []byte) (*vision.AnalysisResult, error) {
		userID, ok := auth.GetUserID(ctx)
		assert.True(t, ok)
		assert.Equal(t, "svc-gateway", userID)
		return okResult(requestID), nil
	}, verifier)

	_, err = grpcapi.Invoke(context.Background(), conn, wrapperspb.Bytes([]byte("image")))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc-gateway",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("grpc-secret"))
	require.NoError(t, err)

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
	_, err = grpcapi.Invoke(ctx, conn, wrapperspb.Bytes([]byte("image")))
	require.NoError(t, err)
}

func TestHealthIsPublic(t *testing.T) {
	verifier, err := auth.NewVerifier("grpc-secret", "")
	require.NoError(t, err)
	conn := startServer(t, nil, verifier)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGracefulStopReportsNotServing(t *testing.T) {
	server, healthServer := New(NewAnalysisServer(analyzerFunc(nil), zap.NewNop()), nil, grpcapi.DefaultMaxUploadBytes, zap.NewNop())

	GracefulStop(server, healthServer)

	for _, service := range []string{"", grpcapi.ServiceName} {
		resp, err := healthServer.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus(), service)
	}
}

func TestServerAcceptsMessagesUpToUploadLimit(t *testing.T) {
	var size int
	conn := startServer(t, func(_ context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error) {
		size = len(imageBytes)
		return okResult(requestID), nil
	}, nil)

	payload := make([]byte, 6<<20)
	_, err := grpcapi.Invoke(context.Background(), conn, wrapperspb.Bytes(payload),
		grpc.MaxCallSendMsgSize(grpcapi.MaxMessageSize(grpcapi.DefaultMaxUploadBytes)))
	require.NoError(t, err)
	assert.Equal(t, len(payload), size)
}
