package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"mentor-insights-go/internal/config"
	"mentor-insights-go/internal/fusion"
	"mentor-insights-go/internal/logger"
	"mentor-insights-go/internal/types"
)

// Failure reasons surfaced in details.error.
const (
	ReasonTimeout      = "timeout"
	ReasonNoTranscript = "no transcript available"
)

// VisionPipeline analyzes the video track (engagement, gesture energy).
type VisionPipeline interface {
	AnalyzeVideo(ctx context.Context, videoPath string) (types.PipelineResult, error)
}

// ProsodyPipeline analyzes the audio track and transcribes it. The
// transcript is empty on failure.
type ProsodyPipeline interface {
	AnalyzeAudio(ctx context.Context, audioPath string) (types.PipelineResult, string, error)
}

// JudgePipeline scores the transcribed content against a topic rubric.
type JudgePipeline interface {
	Evaluate(ctx context.Context, transcript, topic string) (types.PipelineResult, error)
}

// Orchestrator runs the three pipelines with the one real dependency
// (judge needs prosody's transcript), isolates their failures and fuses
// the scores into one report. Pipelines are injected so the heavy engines
// are constructed once per process and shared across requests.
type Orchestrator struct {
	vision  VisionPipeline
	prosody ProsodyPipeline
	judge   JudgePipeline
	fusion  *fusion.Engine
	cfg     config.Config
	log     *logger.Logger
}

func New(vision VisionPipeline, prosody ProsodyPipeline, judge JudgePipeline, fe *fusion.Engine, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		vision:  vision,
		prosody: prosody,
		judge:   judge,
		fusion:  fe,
		cfg:     cfg,
		log:     logger.New(),
	}
}

// Evaluate runs one full evaluation. Vision and prosody start immediately
// and in parallel; the instant prosody settles, judge is launched if a
// non-empty transcript came back, otherwise its result is synthesized as
// failed without invoking the collaborator. Pipeline faults never
// propagate to the caller: every failure ends up as a failed
// PipelineResult inside the report.
func (o *Orchestrator) Evaluate(ctx context.Context, videoPath, audioPath, topic string) types.EvaluationReport {
	var (
		vision, prosody, content types.PipelineResult
		transcript               string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vision, _ = o.run(gctx, "vision", o.cfg.Timeouts.Vision, func(c context.Context) (types.PipelineResult, string, error) {
			res, err := o.vision.AnalyzeVideo(c, videoPath)
			return res, "", err
		})
		return nil
	})
	g.Go(func() error {
		prosody, transcript = o.run(gctx, "prosody", o.cfg.Timeouts.Prosody, func(c context.Context) (types.PipelineResult, string, error) {
			return o.prosody.AnalyzeAudio(c, audioPath)
		})
		if transcript == "" {
			o.log.WithPipeline("judge").Warn("skipped: no transcript from prosody")
			content = types.Failed(ReasonNoTranscript)
			return nil
		}
		content, _ = o.run(gctx, "judge", o.cfg.Timeouts.Judge, func(c context.Context) (types.PipelineResult, string, error) {
			res, err := o.judge.Evaluate(c, transcript, topic)
			return res, "", err
		})
		return nil
	})
	_ = g.Wait() // faults are captured in the per-pipeline results

	return types.EvaluationReport{
		OverallScore: o.fusion.Fuse(vision, prosody, content),
		Pipelines: types.PipelineSet{
			Vision:  vision,
			Prosody: prosody,
			Content: content,
		},
		Transcript: transcript,
	}
}

type outcome struct {
	res        types.PipelineResult
	transcript string
	err        error
}

// run invokes one collaborator behind an independent deadline and converts
// every fault (error return, panic, expiry, request cancellation) into a
// failed result at this boundary. On expiry the underlying call may not
// support cancellation; the goroutine is abandoned and its eventual result
// dropped (the buffered channel keeps it from leaking).
func (o *Orchestrator) run(ctx context.Context, name string, timeout time.Duration, call func(context.Context) (types.PipelineResult, string, error)) (types.PipelineResult, string) {
	log := o.log.WithPipeline(name)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("pipeline panic: %v", r)}
			}
		}()
		res, tr, err := call(pctx)
		ch <- outcome{res: res, transcript: tr, err: err}
	}()

	select {
	case out := <-ch:
		log = log.WithField("duration_ms", time.Since(start).Milliseconds())
		if out.err != nil {
			log.WithField("error", out.err.Error()).Warn("pipeline failed")
			return types.Failed(out.err.Error()), ""
		}
		log.WithField("score", out.res.Score).Info("pipeline finished")
		return out.res, out.transcript
	case <-pctx.Done():
		if errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			log.WithField("timeout", timeout.String()).Warn("pipeline timed out, abandoning task")
			return types.Failed(ReasonTimeout), ""
		}
		log.Warn("request cancelled, abandoning task")
		return types.Failed(pctx.Err().Error()), ""
	}
}
