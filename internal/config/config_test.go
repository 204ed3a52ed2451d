package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.35, cfg.Weights.Content)
	assert.Equal(t, 0.35, cfg.Weights.Prosody)
	assert.Equal(t, 0.30, cfg.Weights.Visual)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	data := `
weights:
  content: 0.5
  prosody: 0.25
  visual: 0.25
timeouts:
  vision: 30s
  prosody: 45s
  judge: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Weights.Content)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Vision)
	assert.Equal(t, 45*time.Second, cfg.Timeouts.Prosody)
	assert.Equal(t, 20*time.Second, cfg.Timeouts.Judge)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	data := `
weights:
  content: 0.5
  prosody: 0.5
  visual: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEIGHT_CONTENT", "0.4")
	t.Setenv("WEIGHT_PROSODY", "0.4")
	t.Setenv("WEIGHT_VISUAL", "0.2")
	t.Setenv("TIMEOUT_JUDGE", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Weights.Content)
	assert.Equal(t, 0.2, cfg.Weights.Visual)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Judge)
}

func TestEnvOverridesCanBreakValidation(t *testing.T) {
	t.Setenv("WEIGHT_CONTENT", "0.9")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveTimeouts(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Judge = 0
	assert.Error(t, cfg.Validate())
}
