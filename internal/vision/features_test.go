package vision

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractFeaturesUniformImage(t *testing.T) {
	f, err := ExtractFeatures(uniformImage(800, 400, 180))
	require.NoError(t, err)
	require.InDelta(t, 2.0, f.WidthOverHeight, 1e-9)
	require.Zero(t, f.EdgeRatio)
	require.Zero(t, f.DarkRatio)
	require.InDelta(t, 180, f.MeanBrightness, 1)
}

func TestExtractFeaturesDarkImage(t *testing.T) {
	f, err := ExtractFeatures(uniformImage(200, 200, 0))
	require.NoError(t, err)
	require.InDelta(t, 1.0, f.DarkRatio, 1e-9)
	require.InDelta(t, 0, f.MeanBrightness, 1e-9)
}

func TestExtractFeaturesDetailedImage(t *testing.T) {
	f, err := ExtractFeatures(checkerboardImage(300, 600, 4))
	require.NoError(t, err)
	require.InDelta(t, 0.5, f.WidthOverHeight, 1e-9)
	require.Greater(t, f.EdgeRatio, DefaultEdgeRatioThreshold)
	require.LessOrEqual(t, f.EdgeRatio, 1.0)
	require.GreaterOrEqual(t, f.DarkRatio, 0.0)
	require.LessOrEqual(t, f.DarkRatio, 1.0)
}

func TestExtractFeaturesDeterministic(t *testing.T) {
	img := checkerboardImage(320, 240, 7)
	first, err := ExtractFeatures(img)
	require.NoError(t, err)
	second, err := ExtractFeatures(img)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestExtractFeaturesRejectsEmptyImage(t *testing.T) {
	_, err := ExtractFeatures(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.True(t, errors.Is(err, ErrInvalidInput))

	_, err = ExtractFeatures(nil)
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(encodePNG(t, uniformImage(10, 5, 20)))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 10, img.Bounds().Dx())

	_, _, err = Decode([]byte("definitely not an image"))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)

	_, _, err = Decode(nil)
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
}
