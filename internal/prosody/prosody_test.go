package prosody

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     logger.New(),
	}
}

func TestAnalyzeAudioSynchronousResult(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "session_audio.wav", r.FormValue("audioPath"))
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{
				"status":     "Success",
				"result_url": srv.URL + "/result/abc",
			},
		})
	})
	mux.HandleFunc("/result/abc", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transcript":    "today we cover interfaces",
			"prosody_score": 6.4,
			"details": map[string]any{
				"pace_bpm":      128.5,
				"pitch_variety": 5.9,
				"silence_ratio": 0.08,
			},
		})
	})

	t.Setenv("USE_MOCK_PROSODY", "")
	res, transcript, err := newTestClient(srv.URL).AnalyzeAudio(context.Background(), "session_audio.wav")
	require.NoError(t, err)

	assert.Equal(t, types.StatusOk, res.Status)
	assert.Equal(t, 6.4, res.Score)
	assert.Equal(t, 128.5, res.Details["pace_bpm"])
	assert.Equal(t, 0.08, res.Details["silence_ratio"])
	assert.Equal(t, "today we cover interfaces", transcript)
}

func TestAnalyzeAudioPolledResult(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	polls := 0
	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"job_id": "job-1", "status": "Queued"},
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "job-1", r.URL.Query().Get("jobId"))
		polls++
		status := "Processing"
		resultURL := ""
		if polls >= 2 {
			status = "Success"
			resultURL = srv.URL + "/result/job-1"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"status": status, "result_url": resultURL},
		})
	})
	mux.HandleFunc("/result/job-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transcript":    "polled transcript",
			"prosody_score": 7.1,
		})
	})

	t.Setenv("USE_MOCK_PROSODY", "")
	res, transcript, err := newTestClient(srv.URL).AnalyzeAudio(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.Equal(t, 7.1, res.Score)
	assert.Equal(t, "polled transcript", transcript)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestAnalyzeAudioJobFailure(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]any{"job_id": "job-2", "status": "Queued"},
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code":   200,
			"data":   map[string]any{"status": "Failed"},
			"reason": "unsupported codec",
		})
	})

	t.Setenv("USE_MOCK_PROSODY", "")
	_, transcript, err := newTestClient(srv.URL).AnalyzeAudio(context.Background(), "a.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported codec")
	assert.Empty(t, transcript)
}

func TestAnalyzeAudioPublishRejected(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code":   422,
			"reason": "audio reference unreadable",
		})
	})

	t.Setenv("USE_MOCK_PROSODY", "")
	_, _, err := newTestClient(srv.URL).AnalyzeAudio(context.Background(), "a.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio reference unreadable")
}

func TestAnalyzeAudioMockMode(t *testing.T) {
	t.Setenv("USE_MOCK_PROSODY", "true")
	res, transcript, err := (&Client{log: logger.New()}).AnalyzeAudio(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOk, res.Status)
	assert.NotEmpty(t, transcript)
}
