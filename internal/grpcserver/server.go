package grpcserver

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/vehicle-vision/internal/auth"
	"github.com/example/vehicle-vision/internal/grpcapi"
	"github.com/example/vehicle-vision/internal/logging"
	"github.com/example/vehicle-vision/internal/usecase"
	"github.com/example/vehicle-vision/internal/vision"
)

// AnalysisServer serves the analysis pipeline over gRPC.
type AnalysisServer struct {
	analyzer usecase.Analyzer
	logger   *zap.Logger
}

// NewAnalysisServer creates a server backed by analyzer.
func NewAnalysisServer(analyzer usecase.Analyzer, logger *zap.Logger) *AnalysisServer {
	return &AnalysisServer{analyzer: analyzer, logger: logger.Named("grpc_analysis")}
}

// Analyze implements grpcapi.AnalysisServiceServer.
func (s *AnalysisServer) Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(s.logger, "grpcserver.analyze", requestID)

	result, err := s.analyzer.Analyze(ctx, requestID, in.GetValue())
	if err != nil {
		if vision.IsClientError(err) {
			opLogger.Warn("image rejected", zap.Error(err))
		} else {
			opLogger.Error("analysis failed", zap.Error(err))
		}
		return nil, grpcapi.ToStatus(err)
	}

	out, err := grpcapi.EncodeResult(result)
	if err != nil {
		opLogger.Error("failed to encode result", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

// New builds a grpc.Server exposing the analysis service and the standard
// health service. Messages up to maxUploadBytes of image data are accepted.
// A nil verifier disables authentication.
func New(analysis *AnalysisServer, verifier *auth.Verifier, maxUploadBytes int64, logger *zap.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(grpcapi.MaxMessageSize(maxUploadBytes)),
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(logger.Named("grpc")),
			authInterceptor(verifier),
		),
	)
	server.RegisterService(&grpcapi.ServiceDesc, analysis)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// GracefulStop reports NOT_SERVING on every health entry, then waits for
// in-flight calls to finish.
func GracefulStop(server *grpc.Server, healthServer *health.Server) {
	healthServer.Shutdown()
	server.GracefulStop()
}

func requestIDFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(grpcapi.RequestIDMetadataKey); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.NewString()
}

func authInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if verifier == nil || strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		subject, err := verifier.VerifyHeader(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.WithUserID(ctx, subject), req)
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc request", fields...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}
