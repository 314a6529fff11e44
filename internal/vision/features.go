package vision

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// FeatureVector is the fixed summary of an image that drives every heuristic decision.
type FeatureVector struct {
	WidthOverHeight float64 `json:"width_over_height"`
	EdgeRatio       float64 `json:"edge_ratio"`
	DarkRatio       float64 `json:"dark_ratio"`
	MeanBrightness  float64 `json:"mean_brightness"`
}

// FeatureExtractor turns a decoded image into a FeatureVector.
type FeatureExtractor interface {
	Extract(img image.Image) (FeatureVector, error)
}

// Working resolution and thresholds used by DefaultLuminanceExtractor.
const (
	WorkingWidth         = 640
	WorkingHeight        = 480
	DefaultEdgeThreshold = 100.0
	DefaultDarkLevel     = 50
)

// LuminanceExtractor computes features on a downscaled grayscale copy of the image
// using a Sobel gradient for edges and a 256-bin histogram for darkness.
type LuminanceExtractor struct {
	Width  int
	Height int
	// EdgeThreshold is the Sobel gradient magnitude above which a pixel counts as an edge.
	EdgeThreshold float64
	// DarkLevel is the exclusive upper luminance bound of the dark histogram bins.
	DarkLevel int
}

// DefaultLuminanceExtractor returns the extractor with the standard working resolution.
func DefaultLuminanceExtractor() *LuminanceExtractor {
	return &LuminanceExtractor{
		Width:         WorkingWidth,
		Height:        WorkingHeight,
		EdgeThreshold: DefaultEdgeThreshold,
		DarkLevel:     DefaultDarkLevel,
	}
}

// ExtractFeatures runs the default extractor.
func ExtractFeatures(img image.Image) (FeatureVector, error) {
	return DefaultLuminanceExtractor().Extract(img)
}

// Extract implements FeatureExtractor.
func (e *LuminanceExtractor) Extract(img image.Image) (FeatureVector, error) {
	if img == nil {
		return FeatureVector{}, &InvalidInputError{Reason: "no image"}
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return FeatureVector{}, &InvalidInputError{Reason: "image has zero dimensions"}
	}

	gray := image.NewGray(image.Rect(0, 0, e.Width, e.Height))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)

	var histogram [256]float64
	lum := make([]float64, len(gray.Pix))
	for i, v := range gray.Pix {
		histogram[v]++
		lum[i] = float64(v)
	}

	var dark, total float64
	for level, count := range histogram {
		if level < e.DarkLevel {
			dark += count
		}
		total += count
	}

	return FeatureVector{
		WidthOverHeight: float64(bounds.Dx()) / float64(bounds.Dy()),
		EdgeRatio:       e.edgeRatio(gray),
		DarkRatio:       dark / total,
		MeanBrightness:  stat.Mean(lum, nil),
	}, nil
}

// edgeRatio counts interior pixels whose Sobel magnitude exceeds the threshold.
// Border pixels are never edges but still count toward the total.
func (e *LuminanceExtractor) edgeRatio(gray *image.Gray) float64 {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	at := func(x, y int) float64 { return float64(gray.Pix[y*gray.Stride+x]) }

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if math.Hypot(gx, gy) > e.EdgeThreshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}
