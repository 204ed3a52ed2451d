package prosody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

// Client drives the speech-analysis sidecar: submit the audio reference,
// poll the job until it settles, download the result document. The
// document carries both the prosody metrics and the transcript that gates
// the content judge downstream.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewFromEnv() (*Client, error) {
	if os.Getenv("USE_MOCK_PROSODY") != "true" && os.Getenv("PROSODY_URL") == "" {
		return nil, errors.New("PROSODY_URL not set")
	}
	return &Client{
		baseURL: strings.TrimRight(os.Getenv("PROSODY_URL"), "/"),
		http:    &http.Client{Timeout: 12 * time.Second},
		log:     logger.New(),
	}, nil
}

type publishResponse struct {
	Code int    `json:"code"`
	Data struct {
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		ResultURL string `json:"result_url"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	Code int    `json:"code"`
	Data struct {
		Status    string `json:"status"` // Queued, Processing, Success, Failed
		ResultURL string `json:"result_url"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

type resultDocument struct {
	Transcript   string  `json:"transcript"`
	ProsodyScore float64 `json:"prosody_score"`
	Details      struct {
		PaceBPM      float64 `json:"pace_bpm"`
		PitchVariety float64 `json:"pitch_variety"`
		SilenceRatio float64 `json:"silence_ratio"`
	} `json:"details"`
}

// AnalyzeAudio returns the prosody result and the transcript. The
// transcript is empty whenever the error is non-nil.
func (c *Client) AnalyzeAudio(ctx context.Context, audioPath string) (types.PipelineResult, string, error) {
	if os.Getenv("USE_MOCK_PROSODY") == "true" {
		res := types.Ok(6.8, types.Details{"pace_bpm": 132.0, "pitch_variety": 6.1, "silence_ratio": 0.12})
		return res, "MOCK TRANSCRIPT: today we cover goroutines, channels and the select statement.", nil
	}

	log := c.log.WithPipeline("prosody").WithField("audio_path", audioPath)
	log.Info("submitting audio for analysis")

	jobID, resultURL, err := c.publish(ctx, audioPath)
	if err != nil {
		return types.PipelineResult{}, "", err
	}
	if resultURL == "" {
		resultURL, err = c.poll(ctx, jobID)
		if err != nil {
			return types.PipelineResult{}, "", err
		}
	}
	log.WithField("result_url", resultURL).Info("downloading analysis result")

	doc, err := c.download(ctx, resultURL)
	if err != nil {
		return types.PipelineResult{}, "", err
	}
	res := types.Ok(doc.ProsodyScore, types.Details{
		"pace_bpm":      doc.Details.PaceBPM,
		"pitch_variety": doc.Details.PitchVariety,
		"silence_ratio": doc.Details.SilenceRatio,
	})
	return res, doc.Transcript, nil
}

func (c *Client) publish(ctx context.Context, audioPath string) (string, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	w.WriteField("audioPath", audioPath)
	w.WriteField("features", "transcript,pitch,tempo,silence")
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &b)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp publishResponse
	if err := c.doJSON(ctx, req, &resp); err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("prosody publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	// Short recordings can settle synchronously.
	if resp.Data.ResultURL != "" && strings.ToLower(resp.Data.Status) == "success" {
		return "", resp.Data.ResultURL, nil
	}
	return resp.Data.JobID, "", nil
}

func (c *Client) poll(ctx context.Context, jobID string) (string, error) {
	base := c.baseURL + "/status"
	for i := 0; i < 40; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(1500 * time.Millisecond):
		}
		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("jobId", jobID)
		u.RawQuery = q.Encode()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		var s statusResponse
		if err := c.doJSON(ctx, req, &s); err != nil {
			continue
		}
		switch s.Data.Status {
		case "Success":
			return s.Data.ResultURL, nil
		case "Queued", "Processing":
			continue
		case "Failed":
			return "", fmt.Errorf("prosody analysis failed: %s", s.Reason)
		}
	}
	return "", fmt.Errorf("prosody analysis did not complete")
}

func (c *Client) download(ctx context.Context, resultURL string) (resultDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return resultDocument{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return resultDocument{}, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return resultDocument{}, fmt.Errorf("result download failed: %s", string(body))
	}
	var doc resultDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return resultDocument{}, fmt.Errorf("result decode error: %v body=%s", err, string(body))
	}
	return doc, nil
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
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
			lastErr = fmt.Errorf("server error: %s", string(body))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return lastErr
	}
	return nil
}
