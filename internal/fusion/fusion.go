package fusion

import (
	"math"

	"mentor-insights-go/internal/config"
	"mentor-insights-go/internal/types"
)

// Engine combines the three modality scores into one overall score.
// Pure and deterministic: no I/O, no state beyond the fixed weights.
type Engine struct {
	w config.Weights
}

// New validates the weights once; an invalid set is a configuration fault
// and the caller is expected to treat it as fatal.
func New(w config.Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{w: w}, nil
}

// Fuse computes the weighted overall score, rounded to 2 decimals and
// clamped to [0, 10]. Failed pipelines arrive with score 0 and keep their
// weight: missing data counts against the overall score.
func (e *Engine) Fuse(vision, prosody, content types.PipelineResult) float64 {
	s := e.w.Content*content.Score + e.w.Prosody*prosody.Score + e.w.Visual*vision.Score
	s = math.Round(s*100) / 100
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
