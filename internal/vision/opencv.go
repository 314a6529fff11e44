//go:build gocv
// +build gocv

package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCVExtractor computes the feature vector with OpenCV primitives: area
// resampling to the working resolution, Canny edges and a binary threshold
// for the dark mass.
type OpenCVExtractor struct {
	Width     int
	Height    int
	CannyLow  float32
	CannyHigh float32
	DarkLevel int
}

// NewOpenCVExtractor returns an extractor using the Canny thresholds 50/150.
func NewOpenCVExtractor() (*OpenCVExtractor, error) {
	return &OpenCVExtractor{
		Width:     WorkingWidth,
		Height:    WorkingHeight,
		CannyLow:  50,
		CannyHigh: 150,
		DarkLevel: DefaultDarkLevel,
	}, nil
}

// Extract implements FeatureExtractor.
func (e *OpenCVExtractor) Extract(img image.Image) (FeatureVector, error) {
	if img == nil {
		return FeatureVector{}, &InvalidInputError{Reason: "no image"}
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return FeatureVector{}, &InvalidInputError{Reason: "image has zero dimensions"}
	}

	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return FeatureVector{}, &InternalError{Stage: "opencv.convert", Err: err}
	}
	defer src.Close()
	if src.Empty() {
		return FeatureVector{}, &InternalError{Stage: "opencv.convert", Err: fmt.Errorf("empty matrix")}
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(e.Width, e.Height), 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(resized, &gray, gocv.ColorRGBAToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, e.CannyLow, e.CannyHigh)

	dark := gocv.NewMat()
	defer dark.Close()
	gocv.Threshold(gray, &dark, float32(e.DarkLevel-1), 255, gocv.ThresholdBinaryInv)

	total := float64(gray.Cols() * gray.Rows())
	return FeatureVector{
		WidthOverHeight: float64(bounds.Dx()) / float64(bounds.Dy()),
		EdgeRatio:       float64(gocv.CountNonZero(edges)) / total,
		DarkRatio:       float64(gocv.CountNonZero(dark)) / total,
		MeanBrightness:  gray.Mean().Val1,
	}, nil
}
