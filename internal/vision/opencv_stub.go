//go:build !gocv
// +build !gocv

package vision

import (
	"errors"
	"image"
)

// OpenCVExtractor is unavailable without the gocv build tag.
type OpenCVExtractor struct{}

// NewOpenCVExtractor fails unless the binary was built with -tags gocv.
func NewOpenCVExtractor() (*OpenCVExtractor, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

// Extract always fails in builds without OpenCV.
func (e *OpenCVExtractor) Extract(image.Image) (FeatureVector, error) {
	return FeatureVector{}, &InternalError{Stage: "opencv.extract", Err: errors.New("gocv build tag is not enabled")}
}
