package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

func newTestClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}, log: logger.New()}
}

func TestAnalyzeVideoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "session.mp4", req["video_path"])

		json.NewEncoder(w).Encode(map[string]any{
			"visual_score": 7.9,
			"details":      map[string]any{"engagement": 8.5, "energy": 7.3},
		})
	}))
	defer srv.Close()

	t.Setenv("USE_MOCK_VISION", "")
	res, err := newTestClient(srv.URL).AnalyzeVideo(context.Background(), "session.mp4")
	require.NoError(t, err)

	assert.Equal(t, types.StatusOk, res.Status)
	assert.Equal(t, 7.9, res.Score)
	assert.Equal(t, 8.5, res.Details["engagement"])
	assert.Equal(t, 7.3, res.Details["energy"])
}

func TestAnalyzeVideoSidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "could not open video stream"})
	}))
	defer srv.Close()

	t.Setenv("USE_MOCK_VISION", "")
	_, err := newTestClient(srv.URL).AnalyzeVideo(context.Background(), "broken.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not open video stream")
}

func TestAnalyzeVideoDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unsupported container", http.StatusBadRequest)
	}))
	defer srv.Close()

	t.Setenv("USE_MOCK_VISION", "")
	_, err := newTestClient(srv.URL).AnalyzeVideo(context.Background(), "v.avi")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAnalyzeVideoMockMode(t *testing.T) {
	t.Setenv("USE_MOCK_VISION", "true")
	res, err := (&Client{}).AnalyzeVideo(context.Background(), "v.mp4")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOk, res.Status)
	assert.NotZero(t, res.Score)
}

func TestNewFromEnvRequiresURL(t *testing.T) {
	t.Setenv("USE_MOCK_VISION", "")
	t.Setenv("VISION_URL", "")
	_, err := NewFromEnv()
	assert.Error(t, err)
}
