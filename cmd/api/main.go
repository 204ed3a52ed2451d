package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mentor-insights-go/internal/config"
	"mentor-insights-go/internal/export"
	"mentor-insights-go/internal/feedback"
	"mentor-insights-go/internal/fusion"
	"mentor-insights-go/internal/judge"
	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/media"
	"mentor-insights-go/internal/orchestrator"
	"mentor-insights-go/internal/prosody"
	"mentor-insights-go/internal/types"
	"mentor-insights-go/internal/vision"
)

type analyzeResponse struct {
	types.EvaluationReport
	Feedback feedback.Card `json:"feedback"`
}

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "mentor-insights-go").Info("starting service")

	// Configuration faults (weights, missing collaborator credentials) are
	// fatal here, never deferred to request time.
	cfg, err := config.Load(os.Getenv("EVAL_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	fusionEngine, err := fusion.New(cfg.Weights)
	if err != nil {
		log.WithError(err).Fatal("invalid fusion weights")
	}

	visionClient, err := vision.NewFromEnv()
	if err != nil {
		log.WithError(err).Fatal("vision pipeline not configured")
	}
	prosodyClient, err := prosody.NewFromEnv()
	if err != nil {
		log.WithError(err).Fatal("prosody pipeline not configured")
	}
	judgeClient, err := judge.NewFromEnv()
	if err != nil {
		log.WithError(err).Fatal("judge pipeline not configured")
	}

	// One orchestrator per process; pipeline engines are stateless and
	// shared across concurrent requests.
	orch := orchestrator.New(visionClient, prosodyClient, judgeClient, fusionEngine, cfg)
	history := export.NewHistory(envOr("HISTORY_PATH", "evaluation_history.xlsx"))

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.New().WithRequest(r).Info("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/analyze", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "analyze")
		reqLog.Info("analyze request received")

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, fh, err := r.FormFile("file")
		if err != nil {
			reqLog.WithError(err).Warn("missing file upload")
			http.Error(w, "missing file upload", http.StatusBadRequest)
			return
		}
		defer file.Close()
		topic := r.FormValue("topic")
		if topic == "" {
			topic = "General"
		}
		reqLog = reqLog.WithField("topic", topic).WithField("filename", fh.Filename)

		// Artifact acquisition is the one hard failure path: nothing has
		// been scheduled yet, so the client gets an error instead of a
		// degraded report.
		videoPath, err := media.SaveUpload(file, fh.Filename)
		if err != nil {
			reqLog.WithError(err).Error("failed to store upload")
			http.Error(w, "failed to store upload", http.StatusInternalServerError)
			return
		}
		defer media.CleanUp(videoPath)

		audioPath, err := media.ExtractAudio(videoPath)
		if err != nil {
			reqLog.WithError(err).Error("audio extraction failed")
			http.Error(w, "audio extraction failed", http.StatusUnprocessableEntity)
			return
		}
		defer media.CleanUp(audioPath)

		start := time.Now()
		report := orch.Evaluate(r.Context(), videoPath, audioPath, topic)
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("overall_score", report.OverallScore).Info("evaluation finished")

		if err := history.Append(topic, report); err != nil {
			reqLog.WithError(err).Warn("history append failed")
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analyzeResponse{EvaluationReport: report, Feedback: feedback.Generate(report)}); err != nil {
			reqLog.WithError(err).Error("failed to write response")
		}
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "history")
		limit := 10
		if s := r.URL.Query().Get("limit"); s != "" {
			if v, err := strconv.Atoi(s); err == nil && v > 0 {
				limit = v
			}
		}
		entries, err := history.Recent(limit)
		if err != nil {
			reqLog.WithError(err).Error("history read failed")
			http.Error(w, "history read failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.Encode(entries)
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
