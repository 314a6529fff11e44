package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/vehicle-vision/internal/vision"
)

// Error reasons attached to failed calls as google.rpc.ErrorInfo.
const (
	ErrorDomain        = "vehiclevision"
	ReasonDecode       = "DECODE_ERROR"
	ReasonInvalidInput = "INVALID_INPUT"
	ReasonInternal     = "INTERNAL"
)

// EncodeResult converts a result into its wire form.
func EncodeResult(r *vision.AnalysisResult) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"request_id":                r.RequestID,
		"vehicle_type":              string(r.VehicleType),
		"license_plate_placeholder": r.LicensePlate,
		"confidence_score":          r.ConfidenceScore,
		"damage_detected":           r.DamageDetected,
		"damage_details":            nil,
		"format":                    r.Format,
		"features": map[string]interface{}{
			"width_over_height": r.Features.WidthOverHeight,
			"edge_ratio":        r.Features.EdgeRatio,
			"dark_ratio":        r.Features.DarkRatio,
			"mean_brightness":   r.Features.MeanBrightness,
		},
	}
	if r.DamageDetails != nil {
		fields["damage_details"] = *r.DamageDetails
	}
	return structpb.NewStruct(fields)
}

// DecodeResult converts the wire form back into a result and checks its invariants.
func DecodeResult(s *structpb.Struct) (*vision.AnalysisResult, error) {
	f := s.GetFields()
	features := f["features"].GetStructValue().GetFields()

	r := &vision.AnalysisResult{
		RequestID:       f["request_id"].GetStringValue(),
		VehicleType:     vision.VehicleType(f["vehicle_type"].GetStringValue()),
		LicensePlate:    f["license_plate_placeholder"].GetStringValue(),
		ConfidenceScore: f["confidence_score"].GetNumberValue(),
		DamageDetected:  f["damage_detected"].GetBoolValue(),
		Format:          f["format"].GetStringValue(),
		Features: vision.FeatureVector{
			WidthOverHeight: features["width_over_height"].GetNumberValue(),
			EdgeRatio:       features["edge_ratio"].GetNumberValue(),
			DarkRatio:       features["dark_ratio"].GetNumberValue(),
			MeanBrightness:  features["mean_brightness"].GetNumberValue(),
		},
	}
	if v, ok := f["damage_details"].GetKind().(*structpb.Value_StringValue); ok {
		details := v.StringValue
		r.DamageDetails = &details
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("malformed analysis response: %w", err)
	}
	return r, nil
}

// ToStatus maps an analysis error onto a gRPC status error.
func ToStatus(err error) error {
	var (
		code   codes.Code
		reason string
	)
	switch {
	case errors.Is(err, vision.ErrDecode):
		code, reason = codes.InvalidArgument, ReasonDecode
	case errors.Is(err, vision.ErrInvalidInput):
		code, reason = codes.InvalidArgument, ReasonInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		code, reason = codes.Internal, ReasonInternal
	}

	st := status.New(code, err.Error())
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// FromStatus maps a gRPC error back onto the analysis error taxonomy.
// Errors that carry no analysis reason are returned unchanged.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.ResourceExhausted:
		return &vision.InvalidInputError{Reason: "image exceeds the analysis service message limit"}
	}

	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		switch info.GetReason() {
		case ReasonDecode:
			return &vision.DecodeError{Err: errors.New(trimSentinel(st.Message(), vision.ErrDecode))}
		case ReasonInvalidInput:
			return &vision.InvalidInputError{Reason: trimSentinel(st.Message(), vision.ErrInvalidInput)}
		case ReasonInternal:
			return &vision.InternalError{Stage: "remote", Err: errors.New(st.Message())}
		}
	}
	return err
}

func trimSentinel(msg string, sentinel error) string {
	return strings.TrimPrefix(msg, sentinel.Error()+": ")
}
