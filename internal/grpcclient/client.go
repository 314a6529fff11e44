package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/vehicle-vision/internal/grpcapi"
	"github.com/example/vehicle-vision/internal/logging"
	"github.com/example/vehicle-vision/internal/usecase"
	"github.com/example/vehicle-vision/internal/vision"
)

// DialAnalyzer returns an Analyzer that forwards images of up to
// maxUploadBytes to a remote analysis service. token, when set, is sent as a
// bearer token on every call.
func DialAnalyzer(ctx context.Context, addr, token string, maxUploadBytes int64, logger *zap.Logger, opts ...grpc.DialOption) (usecase.Analyzer, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallSendMsgSize(grpcapi.MaxMessageSize(maxUploadBytes)),
			grpc.MaxCallRecvMsgSize(grpcapi.MaxMessageSize(maxUploadBytes)),
		),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_analyzer", "", err)
		logger.Error("failed to dial analysis service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &remoteAnalyzer{conn: conn, token: token, logger: logger.Named("grpc_analyzer")}, conn, nil
}

type remoteAnalyzer struct {
	conn   grpc.ClientConnInterface
	token  string
	logger *zap.Logger
}

func (r *remoteAnalyzer) Analyze(ctx context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, grpcapi.RequestIDMetadataKey, requestID)
	if r.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+r.token)
	}

	resp, err := grpcapi.Invoke(ctx, r.conn, wrapperspb.Bytes(imageBytes))
	if err != nil {
		mapped := grpcapi.FromStatus(err)
		if vision.IsClientError(mapped) {
			return nil, mapped
		}
		wrapped := logging.NewOperationError("grpcclient.analyze", requestID, mapped)
		r.logger.Error("analysis service call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	result, err := grpcapi.DecodeResult(resp)
	if err != nil {
		return nil, &vision.InternalError{Stage: "remote.decode", Err: err}
	}
	return result, nil
}
