package media

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"mentor-insights-go/internal/logger"
)

// SaveUpload writes an uploaded video stream to a uuid-named temp file and
// returns its path. The caller owns the file and must release it through
// CleanUp on every exit path.
func SaveUpload(src io.Reader, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(os.TempDir(), "upload_"+uuid.New().String()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return path, nil
}

// ExtractAudio demuxes the audio track into a mono 16kHz WAV next to the
// video, via the ffmpeg binary.
func ExtractAudio(videoPath string) (string, error) {
	audioPath := filepath.Join(os.TempDir(), "audio_"+uuid.New().String()+".wav")
	cmd := exec.Command("ffmpeg", "-y", "-i", videoPath, "-vn", "-ac", "1", "-ar", "16000", audioPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(audioPath)
		return "", fmt.Errorf("audio extraction failed: %v: %s", err, string(out))
	}
	return audioPath, nil
}

// CleanUp removes temp artifacts; missing files are fine.
func CleanUp(paths ...string) {
	log := logger.New().WithField("component", "media")
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.WithField("path", p).WithField("error", err.Error()).Warn("cleanup failed")
		}
	}
}
