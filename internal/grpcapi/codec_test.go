package grpcapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/vehicle-vision/internal/vision"
)

func sampleResult(details *string) *vision.AnalysisResult {
	return &vision.AnalysisResult{
		RequestID:       "req-1",
		VehicleType:     vision.SUV,
		LicensePlate:    "ABC1234",
		ConfidenceScore: 0.8,
		DamageDetected:  details != nil,
		DamageDetails:   details,
		Format:          "png",
		Features: vision.FeatureVector{
			WidthOverHeight: 1.5,
			EdgeRatio:       0.25,
			DarkRatio:       0.1,
			MeanBrightness:  140,
		},
	}
}

func TestResultRoundTrip(t *testing.T) {
	note := "Possible scratches or dents detected"
	for _, details := range []*string{nil, &note} {
		in := sampleResult(details)
		if details != nil {
			in.Features.MeanBrightness = 60
		}

		wire, err := EncodeResult(in)
		require.NoError(t, err)

		out, err := DecodeResult(wire)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncodeResultWritesNullDetails(t *testing.T) {
	wire, err := EncodeResult(sampleResult(nil))
	require.NoError(t, err)

	_, isNull := wire.GetFields()["damage_details"].GetKind().(*structpb.Value_NullValue)
	assert.True(t, isNull)
}

func TestDecodeResultRejectsMalformed(t *testing.T) {
	wire, err := structpb.NewStruct(map[string]interface{}{
		"request_id":                "req-1",
		"vehicle_type":              "Sedan",
		"license_plate_placeholder": "",
		"confidence_score":          0.5,
		"damage_detected":           false,
	})
	require.NoError(t, err)

	_, err = DecodeResult(wire)
	require.Error(t, err)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   codes.Code
		target error
	}{
		{name: "decode", err: &vision.DecodeError{Err: errors.New("bad header")}, code: codes.InvalidArgument, target: vision.ErrDecode},
		{name: "invalid input", err: &vision.InvalidInputError{Reason: "empty image"}, code: codes.InvalidArgument, target: vision.ErrInvalidInput},
		{name: "internal", err: &vision.InternalError{Stage: "extract", Err: errors.New("boom")}, code: codes.Internal, target: vision.ErrInternal},
		{name: "untyped", err: errors.New("boom"), code: codes.Internal, target: vision.ErrInternal},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded, target: context.DeadlineExceeded},
		{name: "canceled", err: context.Canceled, code: codes.Canceled, target: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ToStatus(tt.err)
			assert.Equal(t, tt.code, status.Code(st))

			back := FromStatus(st)
			assert.ErrorIs(t, back, tt.target)
		})
	}
}

func TestFromStatusKeepsMessage(t *testing.T) {
	back := FromStatus(ToStatus(&vision.InvalidInputError{Reason: "empty image"}))
	assert.Equal(t, "invalid image input: empty image", back.Error())
}

func TestFromStatusTreatsOversizeAsInvalidInput(t *testing.T) {
	err := FromStatus(status.Error(codes.ResourceExhausted, "grpc: received message larger than max"))
	assert.ErrorIs(t, err, vision.ErrInvalidInput)
	assert.True(t, vision.IsClientError(err))
}

func TestMaxMessageSize(t *testing.T) {
	assert.Greater(t, MaxMessageSize(10<<20), 10<<20)
	assert.Equal(t, MaxMessageSize(DefaultMaxUploadBytes), MaxMessageSize(0))
}

func TestFromStatusPassesThroughForeignErrors(t *testing.T) {
	plain := errors.New("not a status")
	assert.Same(t, plain, FromStatus(plain))

	unavailable := status.Error(codes.Unavailable, "connection refused")
	assert.Equal(t, unavailable, FromStatus(unavailable))
}
