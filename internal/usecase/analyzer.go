package usecase

import (
	"context"

	"github.com/example/vehicle-vision/internal/vision"
)

// Analyzer produces an assessment for one uploaded image. It is satisfied by
// LocalAnalyzer and by the remote gRPC client.
type Analyzer interface {
	Analyze(ctx context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error)
}

// LocalAnalyzer runs the vision pipeline in-process.
type LocalAnalyzer struct {
	core *vision.Analyzer
}

// NewLocalAnalyzer wraps core.
func NewLocalAnalyzer(core *vision.Analyzer) *LocalAnalyzer {
	return &LocalAnalyzer{core: core}
}

// Analyze implements Analyzer. The pipeline itself is not interruptible, so
// the context is checked before it starts and the result is dropped if the
// deadline passed while it ran.
func (l *LocalAnalyzer) Analyze(ctx context.Context, requestID string, imageBytes []byte) (*vision.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := l.core.Analyze(imageBytes, requestID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
