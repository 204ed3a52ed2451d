package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

// Client talks to the visual-analysis sidecar (pose/face landmark service).
// The sidecar owns the heavy models; this adapter only translates its
// response into the shared result envelope.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewFromEnv reads VISION_URL. An empty URL is a configuration fault
// unless mock mode is on.
func NewFromEnv() (*Client, error) {
	if os.Getenv("USE_MOCK_VISION") != "true" && os.Getenv("VISION_URL") == "" {
		return nil, errors.New("VISION_URL not set")
	}
	return &Client{
		baseURL: strings.TrimRight(os.Getenv("VISION_URL"), "/"),
		http:    &http.Client{},
		log:     logger.New(),
	}, nil
}

type analyzeResponse struct {
	VisualScore float64 `json:"visual_score"`
	Details     struct {
		Engagement float64 `json:"engagement"`
		Energy     float64 `json:"energy"`
	} `json:"details"`
	Error string `json:"error,omitempty"`
}

// AnalyzeVideo posts the video reference and returns the normalized result.
func (c *Client) AnalyzeVideo(ctx context.Context, videoPath string) (types.PipelineResult, error) {
	if os.Getenv("USE_MOCK_VISION") == "true" {
		return types.Ok(7.4, types.Details{"engagement": 8.2, "energy": 6.6}), nil
	}

	log := c.log.WithPipeline("vision").WithField("video_path", videoPath)
	log.Info("starting visual analysis")

	payload, _ := json.Marshal(map[string]any{"video_path": videoPath, "sample_rate": 5})

	var parsed analyzeResponse
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("vision server error: %s", string(body))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("vision request rejected: %s", string(body))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return types.PipelineResult{}, lastErr
	}
	if parsed.Error != "" {
		return types.PipelineResult{}, fmt.Errorf("vision analysis failed: %s", parsed.Error)
	}

	log.WithField("visual_score", parsed.VisualScore).Info("visual analysis done")
	return types.Ok(parsed.VisualScore, types.Details{
		"engagement": parsed.Details.Engagement,
		"energy":     parsed.Details.Energy,
	}), nil
}
