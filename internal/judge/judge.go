package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

// Client scores the transcribed content against a teaching rubric via an
// OpenAI-compatible chat-completions gateway.
type Client struct {
	gatewayURL string
	model      string
	apiKey     string
	http       *http.Client
	log        *logger.Logger
}

// NewFromEnv reads LLM_GATEWAY_URL, LLM_MODEL and LLM_API_KEY. Missing
// credentials are a startup-time configuration fault, not a per-request one.
func NewFromEnv() (*Client, error) {
	if os.Getenv("USE_MOCK_LLM") != "true" {
		if os.Getenv("LLM_GATEWAY_URL") == "" || os.Getenv("LLM_API_KEY") == "" {
			return nil, errors.New("llm gateway not configured (LLM_GATEWAY_URL / LLM_API_KEY)")
		}
	}
	return &Client{
		gatewayURL: os.Getenv("LLM_GATEWAY_URL"),
		model:      os.Getenv("LLM_MODEL"),
		apiKey:     os.Getenv("LLM_API_KEY"),
		http:       &http.Client{Timeout: 25 * time.Second},
		log:        logger.New(),
	}, nil
}

// assessment is the strict JSON schema the rubric prompt demands.
type assessment struct {
	RelevanceScore  float64  `json:"relevance_score"`
	AccuracyScore   float64  `json:"accuracy_score"`
	StructureScore  float64  `json:"structure_score"`
	KeyStrengths    []string `json:"key_strengths"`
	MissingConcepts []string `json:"missing_concepts"`
}

const rubricPrompt = `You are a harsh but fair judge evaluating a technical mentor.
Analyze the transcript based on: Relevance, Technical Accuracy, Structure, and Concept Explanation.

Return ONLY valid JSON exactly matching this schema:
{
  "relevance_score": (0-10),
  "accuracy_score": (0-10),
  "structure_score": (0-10),
  "key_strengths": ["string", "string"],
  "missing_concepts": ["string", "string"]
}

Do NOT include commentary. Do NOT wrap the JSON in backticks.

Topic: %s
Transcript:
"""%s"""
`

// Evaluate sends the rubric prompt and translates the model's JSON into
// the shared envelope. The content score is the mean of the three
// sub-scores, rounded to 2 decimals.
func (c *Client) Evaluate(ctx context.Context, transcript, topic string) (types.PipelineResult, error) {
	if os.Getenv("USE_MOCK_LLM") == "true" {
		c.log.WithPipeline("judge").Info("mock LLM mode ON - returning deterministic assessment")
		return resultFrom(assessment{
			RelevanceScore:  8,
			AccuracyScore:   7.5,
			StructureScore:  7,
			KeyStrengths:    []string{"clear definitions", "worked examples"},
			MissingConcepts: []string{"error handling", "race conditions"},
		}), nil
	}

	log := c.log.WithPipeline("judge").WithField("topic", topic)
	log.WithField("transcript_len", len(transcript)).Info("requesting content judgment")

	if topic == "" {
		topic = "General Technical Topic"
	}
	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": fmt.Sprintf(rubricPrompt, topic, transcript)},
		},
		"temperature":     0.0,
		"response_format": map[string]string{"type": "json_object"},
	}
	data, _ := json.Marshal(reqBody)

	var out assessment
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			lastErr = err
			log.WithField("error", err.Error()).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm gateway error: %s", string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("llm gateway rejected request: %s", string(body))
			return backoff.Permanent(lastErr)
		}

		// Try choices[0].message.content (OpenAI-like), then any balanced
		// JSON object in the raw body.
		if inner := extractContentFromChoices(body); inner != "" {
			if err := json.Unmarshal([]byte(inner), &out); err == nil {
				lastErr = nil
				return nil
			}
		}
		if fallback := extractJSON(string(body)); fallback != "" {
			if err := json.Unmarshal([]byte(fallback), &out); err == nil {
				lastErr = nil
				return nil
			}
		}

		lastErr = fmt.Errorf("no JSON found in LLM output")
		return lastErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 45 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return types.PipelineResult{}, fmt.Errorf("content judgment failed: %w", lastErr)
	}

	res := resultFrom(out)
	log.WithField("content_score", res.Score).Info("content judgment parsed")
	return res, nil
}

func resultFrom(a assessment) types.PipelineResult {
	avg := (a.RelevanceScore + a.AccuracyScore + a.StructureScore) / 3
	avg = math.Round(avg*100) / 100
	if a.KeyStrengths == nil {
		a.KeyStrengths = []string{}
	}
	if a.MissingConcepts == nil {
		a.MissingConcepts = []string{}
	}
	return types.Ok(avg, types.Details{
		"relevance_score":  a.RelevanceScore,
		"accuracy_score":   a.AccuracyScore,
		"structure_score":  a.StructureScore,
		"key_strengths":    a.KeyStrengths,
		"missing_concepts": a.MissingConcepts,
	})
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string and returns
// it, stripping common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := strings.TrimSpace(s[start : i+1])
				var tmp any
				if json.Unmarshal([]byte(candidate), &tmp) == nil {
					return candidate
				}
				return candidate
			}
		}
	}
	return ""
}
