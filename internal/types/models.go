package types

type PipelineStatus string

const (
	StatusOk     PipelineStatus = "ok"
	StatusFailed PipelineStatus = "failed"
)

// Details carries pipeline-specific sub-metrics (pace, engagement, key
// strengths, ...). Opaque to the orchestrator and fusion: pass-through only.
type Details map[string]any

// PipelineResult is the normalized envelope every analysis pipeline returns.
// Score is always present and numeric, 0 on failure, so downstream fusion
// never branches on missing fields.
type PipelineResult struct {
	Score   float64        `json:"score"`
	Details Details        `json:"details"`
	Status  PipelineStatus `json:"status"`
}

// Failed builds the envelope for a pipeline fault. The reason ends up in
// details.error for display.
func Failed(reason string) PipelineResult {
	return PipelineResult{
		Score:   0,
		Status:  StatusFailed,
		Details: Details{"error": reason},
	}
}

// Ok builds a successful envelope with the given normalized score.
func Ok(score float64, details Details) PipelineResult {
	if details == nil {
		details = Details{}
	}
	return PipelineResult{Score: score, Status: StatusOk, Details: details}
}

type PipelineSet struct {
	Vision  PipelineResult `json:"vision"`
	Prosody PipelineResult `json:"prosody"`
	Content PipelineResult `json:"content"`
}

// EvaluationReport is the single output of one evaluation request.
// Immutable once returned; transcript is empty when prosody failed.
type EvaluationReport struct {
	OverallScore float64     `json:"overall_score"`
	Pipelines    PipelineSet `json:"pipelines"`
	Transcript   string      `json:"transcript"`
}
