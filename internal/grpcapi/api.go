// Package grpcapi defines the vehiclevision.v1.AnalysisService wire contract
// shared by the gRPC server and client.
//
// The service carries protobuf well-known types so no generated stubs are
// needed: the request is a google.protobuf.BytesValue holding the encoded
// image and the response is a google.protobuf.Struct with the result fields.
// The request id travels in the x-request-id metadata key.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName          = "vehiclevision.v1.AnalysisService"
	AnalyzeMethod        = "/" + ServiceName + "/Analyze"
	RequestIDMetadataKey = "x-request-id"

	// DefaultMaxUploadBytes matches the HTTP upload limit.
	DefaultMaxUploadBytes = 10 << 20
	// messageOverhead covers protobuf framing around the image bytes.
	messageOverhead = 64 << 10
)

// MaxMessageSize is the gRPC message limit both peers need to carry an image
// of up to maxUploadBytes. Non-positive values fall back to DefaultMaxUploadBytes.
func MaxMessageSize(maxUploadBytes int64) int {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return int(maxUploadBytes + messageOverhead)
}

// AnalysisServiceServer is implemented by the gRPC server.
type AnalysisServiceServer interface {
	Analyze(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// ServiceDesc describes the analysis service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vehiclevision/v1/analysis.proto",
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnalysisServiceServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnalyzeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AnalysisServiceServer).Analyze(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Invoke calls Analyze on conn.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, AnalyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
