// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prismflow/internal/ffmpeg"
	"prismflow/internal/frame"
	"prismflow/internal/stabilize"
	"prismflow/internal/style"
	"prismflow/internal/video"
)

// OutputFramesDir is the run subdirectory that receives kept styled frames
const OutputFramesDir = "output_frames"

// ProgressCallback is called after each frame. total is 0 when the frame
// count is unknown.
type ProgressCallback func(current, total int, message string)

// FlowEstimator is a releasable optical flow estimator
type FlowEstimator interface {
	stabilize.FlowEstimator
	Release() error
}

// Config holds the run-wide processing settings
type Config struct {
	Mode        style.ProcessingMode
	Width       int
	Height      int
	FPS         float64 // 0 uses the probed rate
	MaxFrames   int     // 0 means all frames
	FlowEnabled bool
	KeepFrames  bool
	RunDir      string
	Stabilize   stabilize.Config
}

// Components are the collaborators a run needs. GAN is required for the
// CycleGAN modes and Diffusion for the stabilized ones. A nil Estimator
// disables optical flow.
type Components struct {
	Probe      func(path string) (*video.VideoInfo, error)
	OpenSource func(path string, width, height int) (ffmpeg.FrameSource, error)
	OpenSink   func(path string, width, height int, fps float64) (ffmpeg.VideoSink, error)
	Estimator  FlowEstimator
	GAN        style.Transformer
	Diffusion  style.Transformer
}

// Options describe a single run
type Options struct {
	InputPath  string
	OutputPath string
	Progress   ProgressCallback
}

// PipelineState is carried from one frame to the next
type PipelineState struct {
	PrevRaw      *frame.Frame
	PrevStyled   *frame.Frame
	FlowDisabled bool
}

// Result summarizes a run
type Result struct {
	InputPath       string
	OutputPath      string
	RunID           string
	FramesDir       string // set when frames were kept
	Width           int
	Height          int
	FPS             float64
	FramesProcessed int
	ModeCounts      map[style.Mode]int
	FlowCounts      map[stabilize.FlowStatus]int
	FlowDisabled    bool
	ProcessingTime  time.Duration
	Success         bool
	ErrorMessage    string
}

// Pipeline turns an input video into a stylized, temporally stabilized one
type Pipeline struct {
	config     Config
	components Components
	controller *stabilize.Controller
	logger     *zap.Logger
}

// New creates a pipeline
func New(config Config, components Components, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	var estimator stabilize.FlowEstimator
	if config.FlowEnabled && components.Estimator != nil {
		estimator = components.Estimator
	}
	return &Pipeline{
		config:     config,
		components: components,
		controller: stabilize.NewController(config.Stabilize, estimator, logger),
		logger:     logger,
	}
}

// Validate checks that the configured mode has the transformers it needs
func (p *Pipeline) Validate() error {
	if p.config.Width <= 0 || p.config.Height <= 0 {
		return fmt.Errorf("invalid processing size %dx%d", p.config.Width, p.config.Height)
	}
	if p.config.MaxFrames < 0 {
		return fmt.Errorf("max frames must not be negative")
	}
	if p.config.Mode.UsesGAN() && p.components.GAN == nil {
		return fmt.Errorf("%s requires a CycleGAN transformer", p.config.Mode.Label())
	}
	if p.config.Mode.Stabilized() && p.components.Diffusion == nil {
		return fmt.Errorf("%s requires a diffusion transformer", p.config.Mode.Label())
	}
	if p.components.OpenSource == nil || p.components.OpenSink == nil {
		return fmt.Errorf("frame source and video sink are required")
	}
	if p.config.Mode.Stabilized() {
		if err := p.config.Stabilize.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Run processes opts.InputPath into opts.OutputPath. The returned result is
// non-nil even on failure.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	startTime := time.Now()
	result := &Result{
		InputPath:  opts.InputPath,
		OutputPath: opts.OutputPath,
		RunID:      uuid.NewString(),
		Width:      p.config.Width,
		Height:     p.config.Height,
		ModeCounts: make(map[style.Mode]int),
		FlowCounts: make(map[stabilize.FlowStatus]int),
	}
	logger := p.logger.With(zap.String("run", result.RunID))

	fail := func(err error) (*Result, error) {
		result.ErrorMessage = err.Error()
		result.ProcessingTime = time.Since(startTime)
		logger.Error("run failed", zap.Int("frames", result.FramesProcessed), zap.Error(err))
		return result, err
	}

	if p.components.Estimator != nil {
		defer func() {
			if err := p.components.Estimator.Release(); err != nil {
				logger.Warn("failed to release flow estimator", zap.Error(err))
			}
		}()
	}

	if err := p.Validate(); err != nil {
		return fail(err)
	}

	progress := opts.Progress
	if progress == nil {
		progress = func(int, int, string) {}
	}

	total := 0
	result.FPS = p.config.FPS
	if p.components.Probe != nil {
		info, err := p.components.Probe(opts.InputPath)
		if err != nil {
			return fail(fmt.Errorf("failed to analyze video: %w", err))
		}
		total = info.FrameCount
		if result.FPS <= 0 {
			result.FPS = info.FPS
		}
	}
	if result.FPS <= 0 {
		return fail(fmt.Errorf("unknown frame rate for %s", opts.InputPath))
	}
	if p.config.MaxFrames > 0 && (total == 0 || total > p.config.MaxFrames) {
		total = p.config.MaxFrames
	}

	source, err := p.components.OpenSource(opts.InputPath, p.config.Width, p.config.Height)
	if err != nil {
		return fail(fmt.Errorf("failed to open input: %w", err))
	}
	defer source.Close()

	sink, err := p.components.OpenSink(opts.OutputPath, p.config.Width, p.config.Height, result.FPS)
	if err != nil {
		return fail(fmt.Errorf("failed to open output: %w", err))
	}
	if p.config.KeepFrames {
		result.FramesDir = filepath.Join(p.config.RunDir, result.RunID, OutputFramesDir)
		frames, err := ffmpeg.NewPNGDirSink(result.FramesDir)
		if err != nil {
			sink.Close()
			return fail(fmt.Errorf("failed to create frames directory: %w", err))
		}
		sink = ffmpeg.Tee(sink, frames)
	}
	sinkOpen := true
	defer func() {
		if sinkOpen {
			sink.Close()
		}
	}()

	logger.Info("run started",
		zap.String("input", opts.InputPath),
		zap.String("output", opts.OutputPath),
		zap.Stringer("mode", p.config.Mode),
		zap.Int("width", p.config.Width),
		zap.Int("height", p.config.Height),
		zap.Float64("fps", result.FPS),
		zap.Bool("flow", p.config.FlowEnabled && p.components.Estimator != nil))

	var state PipelineState
	for index := 0; p.config.MaxFrames == 0 || index < p.config.MaxFrames; index++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		curr, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("failed to decode frame %d: %w", index, err))
		}
		if curr.Width != p.config.Width || curr.Height != p.config.Height {
			return fail(fmt.Errorf("frame %d is %dx%d, want %dx%d", index, curr.Width, curr.Height, p.config.Width, p.config.Height))
		}

		styled, err := p.processFrame(ctx, index, curr, &state, result)
		if err != nil {
			return fail(err)
		}

		if err := sink.WriteFrame(styled); err != nil {
			return fail(fmt.Errorf("failed to write frame %d: %w", index, err))
		}
		result.FramesProcessed++
		progress(result.FramesProcessed, total, fmt.Sprintf("Styled frame %d", result.FramesProcessed))
	}

	sinkOpen = false
	if err := sink.Close(); err != nil {
		return fail(fmt.Errorf("failed to finalize output: %w", err))
	}
	if result.FramesProcessed == 0 {
		os.Remove(opts.OutputPath)
		return fail(fmt.Errorf("no frames decoded from %s", opts.InputPath))
	}

	result.FlowDisabled = state.FlowDisabled
	result.Success = true
	result.ProcessingTime = time.Since(startTime)
	logger.Info("run finished",
		zap.Int("frames", result.FramesProcessed),
		zap.Duration("elapsed", result.ProcessingTime),
		zap.Bool("flow_disabled", result.FlowDisabled))
	return result, nil
}

// processFrame runs the GAN and stabilization stages for one frame and
// advances state.
func (p *Pipeline) processFrame(ctx context.Context, index int, curr frame.Frame, state *PipelineState, result *Result) (frame.Frame, error) {
	raw := curr
	if p.config.Mode.UsesGAN() {
		req := style.Request{Image: curr, Mode: style.Full, Strength: 1}
		out, err := p.components.GAN.Transform(ctx, req)
		if err != nil {
			return frame.Frame{}, fmt.Errorf("%w: frame %d (cyclegan): %w", stabilize.ErrTransformerFailure, index, err)
		}
		if !out.SameSize(curr) {
			out = out.Resize(curr.Width, curr.Height)
		}
		raw = out
	}

	styled := raw
	if p.config.Mode.Stabilized() {
		out, err := p.controller.Stabilize(ctx, stabilize.Input{
			Index:        index,
			Curr:         raw,
			PrevRaw:      state.PrevRaw,
			PrevStyled:   state.PrevStyled,
			FlowDisabled: state.FlowDisabled,
		}, p.components.Diffusion)
		if err != nil {
			return frame.Frame{}, err
		}
		if out.Decision.Flow == stabilize.FlowUnavailable && !state.FlowDisabled {
			state.FlowDisabled = true
			p.logger.Warn("optical flow unavailable, disabled for the rest of the run",
				zap.Int("frame", index), zap.Error(out.Decision.Cause))
		}
		result.ModeCounts[out.Decision.Mode]++
		result.FlowCounts[out.Decision.Flow]++
		styled = out.Styled
	} else {
		result.ModeCounts[style.Full]++
	}

	state.PrevRaw = &raw
	state.PrevStyled = &styled
	return styled, nil
}
