package feedback

import (
	"fmt"

	"mentor-insights-go/internal/types"
)

// Card is the one-glance takeaway attached to a report.
type Card struct {
	Insight string `json:"insight"`
	Action  string `json:"action"`
	Impact  string `json:"impact"`
}

var modalityAdvice = map[string]Card{
	"content": {
		Action: "Tighten the session outline: define the topic up front, cover the core concepts in order, close with a recap",
		Impact: "Better concept coverage and retention",
	},
	"prosody": {
		Action: "Work on delivery: vary pitch, aim for 100-160 wpm, cut long silences",
		Impact: "Higher listener engagement through the session",
	},
	"visual": {
		Action: "Face the camera and use deliberate gestures to underline key points",
		Impact: "Stronger perceived presence and energy",
	},
}

// Generate derives a single action card from the weakest modality. Failed
// modalities score 0 so they naturally surface first.
func Generate(report types.EvaluationReport) Card {
	lowest := "content"
	lowestScore := report.Pipelines.Content.Score
	if report.Pipelines.Prosody.Score < lowestScore {
		lowest, lowestScore = "prosody", report.Pipelines.Prosody.Score
	}
	if report.Pipelines.Vision.Score < lowestScore {
		lowest, lowestScore = "visual", report.Pipelines.Vision.Score
	}

	card := modalityAdvice[lowest]
	card.Insight = fmt.Sprintf("Weakest modality: %s (%.2f/10)", lowest, lowestScore)

	// Judge-reported gaps beat generic advice when present.
	if lowest == "content" && report.Pipelines.Content.Status == types.StatusOk {
		if missing, ok := report.Pipelines.Content.Details["missing_concepts"].([]string); ok && len(missing) > 0 {
			card.Action = fmt.Sprintf("Cover the missing concepts next session: %v", missing)
		}
	}
	if report.OverallScore >= 8.5 {
		card.Insight = fmt.Sprintf("Strong session overall (%.2f/10)", report.OverallScore)
		card.Action = "Keep the current format; record and reuse this session as a reference"
		card.Impact = "Consistency across future sessions"
	}
	return card
}
