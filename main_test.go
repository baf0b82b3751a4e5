package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"prismflow/internal/config"
	"prismflow/internal/mocks"
	"prismflow/internal/style"
	"prismflow/internal/video"
)

// parse runs the real flag set against args and hands the parsed command
// to inspect instead of starting a run
func parse(t *testing.T, args []string, inspect func(cmd *cli.Command) error) {
	t.Helper()
	cmd := newCommand(mocks.NewMockUserInteraction())
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		return inspect(c)
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"prismflow"}, args...)))
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := config.Default()
	parse(t, []string{
		"--mode", "cyclegan+diffusion",
		"--prompt", "watercolor painting",
		"--strength", "0.6",
		"--seed", "1234",
		"--max-frames", "48",
		"--keep-frames",
		"--flow-backend", "blockmatch",
		"-v",
	}, func(cmd *cli.Command) error {
		return applyFlags(cfg, cmd)
	})

	mode, err := cfg.ProcessingMode()
	require.NoError(t, err)
	assert.Equal(t, style.CycleGANDiffusion, mode)
	assert.Equal(t, "watercolor painting", cfg.Style.Prompt)
	assert.Equal(t, 0.6, cfg.Stabilize.Strength)
	assert.Equal(t, int64(1234), cfg.Style.Seed)
	assert.Equal(t, 48, cfg.Processing.MaxFrames)
	assert.True(t, cfg.Output.KeepFrames)
	assert.Equal(t, config.FlowBackendBlockMatch, cfg.Flow.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Flow.Enabled)
}

func TestApplyFlagsKeepsUnsetValues(t *testing.T) {
	cfg := config.Default()
	cfg.Style.Seed = 7
	parse(t, []string{"--no-flow"}, func(cmd *cli.Command) error {
		return applyFlags(cfg, cmd)
	})

	assert.Equal(t, int64(7), cfg.Style.Seed)
	assert.Equal(t, 0.75, cfg.Stabilize.Strength)
	assert.False(t, cfg.Flow.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestApplyFlagsRejectsInvalidValues(t *testing.T) {
	tests := [][]string{
		{"--strength", "1.5"},
		{"--flow-backend", "farneback"},
		{"--mode", "vqgan"},
		{"--max-frames=-3"},
	}
	for _, args := range tests {
		cfg := config.Default()
		var err error
		parse(t, args, func(cmd *cli.Command) error {
			err = applyFlags(cfg, cmd)
			return nil
		})
		assert.ErrorIs(t, err, config.ErrInvalidConfig, "args %v", args)
	}
}

func TestSelectionPromptsForModeOnlyWhenUnset(t *testing.T) {
	cfg := config.Default()

	parse(t, []string{"-i", "clip.mp4"}, func(cmd *cli.Command) error {
		sel := selection(cmd, cfg)
		assert.Equal(t, "clip.mp4", sel.InputPath)
		assert.Empty(t, sel.Mode, "mode is prompted for")
		return nil
	})

	parse(t, []string{"-m", "gan"}, func(cmd *cli.Command) error {
		require.NoError(t, applyFlags(cfg, cmd))
		assert.Equal(t, "gan", selection(cmd, cfg).Mode)
		return nil
	})
}

func TestBuildComponents(t *testing.T) {
	tests := []struct {
		mode          style.ProcessingMode
		flowEnabled   bool
		wantGAN       bool
		wantDiffusion bool
		wantEstimator bool
	}{
		{style.CycleGANOnly, true, true, false, false},
		{style.DiffusionOnly, true, false, true, true},
		{style.DiffusionOnly, false, false, true, false},
		{style.CycleGANDiffusion, true, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			cfg := config.Default()
			cfg.Flow.Enabled = tt.flowEnabled
			b, err := buildComponents(cfg, tt.mode, t.TempDir(), mocks.NewMockCommandExecutor(), zap.NewNop())
			require.NoError(t, err)

			assert.Equal(t, tt.wantGAN, b.components.GAN != nil)
			assert.Equal(t, tt.wantDiffusion, b.components.Diffusion != nil)
			assert.Equal(t, tt.wantEstimator, b.components.Estimator != nil)
			assert.NotNil(t, b.components.Probe)
			assert.NotNil(t, b.components.OpenSource)
			assert.NotNil(t, b.components.OpenSink)
		})
	}
}

func TestBuildComponentsRejectsBadScriptConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Style.ScriptPath = ""
	_, err := buildComponents(cfg, style.DiffusionOnly, t.TempDir(), mocks.NewMockCommandExecutor(), zap.NewNop())
	assert.Error(t, err)
}

func TestCheckAvailableReportsMissingScript(t *testing.T) {
	cfg := config.Default()
	cfg.Style.ScriptPath = "/nonexistent/stylize_frame.py"
	b, err := buildComponents(cfg, style.CycleGANOnly, t.TempDir(), mocks.NewMockCommandExecutor(), zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, b.checkAvailable(context.Background()))
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.FPS = 12
	cfg.Output.KeepFrames = true
	cfg.Stabilize.MaskedStrength = 0.9

	pc := pipelineConfig(cfg, style.DiffusionOnly)
	assert.Equal(t, style.DiffusionOnly, pc.Mode)
	assert.Equal(t, 768, pc.Width)
	assert.Equal(t, 12.0, pc.FPS)
	assert.True(t, pc.KeepFrames)
	assert.Equal(t, "runs", pc.RunDir)
	assert.Equal(t, 0.9, pc.Stabilize.MaskedStrength)
	assert.True(t, pc.FlowEnabled)
}

func TestResolvePython(t *testing.T) {
	executor := mocks.NewMockCommandExecutor()
	executor.Responses["python3 --version"] = []byte("Python 3.11.4")

	cfg := config.Default()
	cfg.Style.PythonPath = ""
	cfg.Flow.PythonPath = "/opt/venv/bin/python"
	resolvePython(context.Background(), cfg, executor, zap.NewNop())

	assert.Equal(t, "python3", cfg.Style.PythonPath)
	assert.Equal(t, "/opt/venv/bin/python", cfg.Flow.PythonPath)
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0644))
	return path
}

func TestInspectInputPrintsWarnings(t *testing.T) {
	input := writeInput(t)
	var probed string
	probe := func(path string) (*video.VideoInfo, error) {
		probed = path
		return &video.VideoInfo{Filepath: path, Width: 640, Height: 360, FrameCount: 5000}, nil
	}

	var out bytes.Buffer
	info, err := inspectInput(&out, input, probe)
	require.NoError(t, err)

	assert.Equal(t, input, probed)
	assert.Equal(t, 640, info.Width)
	assert.Contains(t, out.String(), "Frame rate unknown; set processing.fps")
	assert.Contains(t, out.String(), "5000 frames")
}

func TestInspectInputQuietForOrdinaryVideo(t *testing.T) {
	input := writeInput(t)
	probe := func(path string) (*video.VideoInfo, error) {
		return &video.VideoInfo{Filepath: path, Width: 640, Height: 360, FPS: 24, FrameCount: 240}, nil
	}

	var out bytes.Buffer
	_, err := inspectInput(&out, input, probe)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestInspectInputRejectsUnusableVideo(t *testing.T) {
	input := writeInput(t)
	tests := []struct {
		name  string
		path  string
		probe func(string) (*video.VideoInfo, error)
	}{
		{
			name: "no dimensions",
			path: input,
			probe: func(path string) (*video.VideoInfo, error) {
				return &video.VideoInfo{Filepath: path, FPS: 24}, nil
			},
		},
		{
			name: "probe failure",
			path: input,
			probe: func(string) (*video.VideoInfo, error) {
				return nil, errors.New("moov atom not found")
			},
		},
		{
			name: "missing file",
			path: filepath.Join(t.TempDir(), "gone.mp4"),
			probe: func(string) (*video.VideoInfo, error) {
				t.Error("probe should not run for a missing file")
				return nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			info, err := inspectInput(&out, tt.path, tt.probe)
			assert.Error(t, err)
			assert.Nil(t, info)
		})
	}
}
