package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prismflow/internal/config"
	"prismflow/internal/ffmpeg"
	"prismflow/internal/frame"
	"prismflow/internal/mocks"
	"prismflow/internal/pipeline"
	"prismflow/internal/stabilize"
	"prismflow/internal/style"
	"prismflow/internal/video"
)

const clipSize = 32

// movingSquare draws a bright square that moves two pixels right per frame
func movingSquare(index int) frame.Frame {
	f := frame.New(clipSize, clipSize)
	for i := range f.Pix {
		f.Pix[i] = 40
	}
	x0 := 4 + 2*index
	for y := 10; y < 20; y++ {
		for x := x0; x < x0+10 && x < clipSize; x++ {
			j := (y*clipSize + x) * frame.Channels
			f.Pix[j], f.Pix[j+1], f.Pix[j+2] = 220, 200, 180
		}
	}
	return f
}

func writeClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "square.mp4")
	opts := ffmpeg.DefaultEncodeOptions()
	opts.Codec = "mpeg4"
	sink, err := ffmpeg.OpenSink(path, clipSize, clipSize, 10, opts)
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		require.NoError(t, sink.WriteFrame(movingSquare(i)))
	}
	require.NoError(t, sink.Close())
	return path
}

// tint is a stand-in diffusion back end that darkens every sample
func tint(record *[]style.Request, mu *sync.Mutex) style.Func {
	return func(_ context.Context, req style.Request) (frame.Frame, error) {
		mu.Lock()
		*record = append(*record, req)
		mu.Unlock()
		out := req.Image.Clone()
		for i, v := range out.Pix {
			out.Pix[i] = v / 2
		}
		return out, nil
	}
}

func integrationConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Processing.Width = clipSize
	cfg.Processing.Height = clipSize
	cfg.Flow.Backend = config.FlowBackendBlockMatch
	cfg.Flow.BlockSize = 8
	cfg.Flow.SearchRadius = 3
	cfg.Output.Codec = "mpeg4"
	cfg.Output.KeepFrames = true
	cfg.Output.RunDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestEndToEndDiffusionWithBlockMatching(t *testing.T) {
	if !ffmpeg.IsFFmpegAvailable() {
		t.Skip("ffmpeg not installed")
	}

	const frames = 6
	input := writeClip(t, frames)
	output := filepath.Join(t.TempDir(), "square_styled.mp4")
	cfg := integrationConfig(t)

	b, err := buildComponents(cfg, style.DiffusionOnly, t.TempDir(), mocks.NewMockCommandExecutor(), zap.NewNop())
	require.NoError(t, err)
	var requests []style.Request
	var mu sync.Mutex
	b.components.Diffusion = tint(&requests, &mu)

	var progress []int
	p := pipeline.New(pipelineConfig(cfg, style.DiffusionOnly), b.components, zap.NewNop())
	result, err := p.Run(context.Background(), pipeline.Options{
		InputPath:  input,
		OutputPath: output,
		Progress:   func(current, _ int, _ string) { progress = append(progress, current) },
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, frames, result.FramesProcessed)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.InDelta(t, 10.0, result.FPS, 0.01)
	assert.Equal(t, 1, result.FlowCounts[stabilize.FlowSkippedFirstFrame])
	assert.Equal(t, frames-1, result.FlowCounts[stabilize.FlowApplied])
	assert.False(t, result.FlowDisabled)

	require.Len(t, requests, frames)
	assert.Equal(t, style.Full, requests[0].Mode)
	modes := 0
	for _, n := range result.ModeCounts {
		modes += n
	}
	assert.Equal(t, frames, modes)

	info, err := video.GetVideoInfo(output)
	require.NoError(t, err)
	assert.Equal(t, clipSize, info.Width)
	assert.Equal(t, clipSize, info.Height)

	entries, err := os.ReadDir(result.FramesDir)
	require.NoError(t, err)
	assert.Len(t, entries, frames)
	assert.Equal(t, filepath.Join(cfg.Output.RunDir, result.RunID, pipeline.OutputFramesDir), result.FramesDir)
}

func TestEndToEndMissingRAFTWeightsFallsBackToFullFrames(t *testing.T) {
	if !ffmpeg.IsFFmpegAvailable() {
		t.Skip("ffmpeg not installed")
	}

	input := writeClip(t, 4)
	output := filepath.Join(t.TempDir(), "square_styled.mp4")
	cfg := integrationConfig(t)
	cfg.Flow.Backend = config.FlowBackendRAFT
	cfg.Flow.WeightsPath = filepath.Join(t.TempDir(), "missing-raft.pth")
	cfg.Output.KeepFrames = false

	b, err := buildComponents(cfg, style.DiffusionOnly, t.TempDir(), mocks.NewMockCommandExecutor(), zap.NewNop())
	require.NoError(t, err)
	var requests []style.Request
	var mu sync.Mutex
	b.components.Diffusion = tint(&requests, &mu)

	result, err := pipeline.New(pipelineConfig(cfg, style.DiffusionOnly), b.components, zap.NewNop()).
		Run(context.Background(), pipeline.Options{InputPath: input, OutputPath: output})
	require.NoError(t, err)

	assert.Equal(t, 4, result.FramesProcessed)
	assert.True(t, result.FlowDisabled)
	assert.Equal(t, 1, result.FlowCounts[stabilize.FlowUnavailable])
	assert.Equal(t, 2, result.FlowCounts[stabilize.FlowDisabled])
	for _, req := range requests {
		assert.Equal(t, style.Full, req.Mode)
	}
	assert.Empty(t, result.FramesDir)
}
