// app.go
package main

import (
	"context"
	"fmt"
	"io"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"prismflow/internal/config"
	"prismflow/internal/ffmpeg"
	"prismflow/internal/flow"
	"prismflow/internal/pipeline"
	"prismflow/internal/python"
	"prismflow/internal/style"
	"prismflow/internal/ui"
	"prismflow/internal/validation"
	"prismflow/internal/video"
)

// loadConfig layers the command line over defaults, file and environment
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(cmd.String("config")).Load()
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, cmd); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg and revalidates it
func applyFlags(cfg *config.Config, cmd *cli.Command) error {
	if cmd.IsSet("mode") {
		cfg.Processing.Mode = cmd.String("mode")
	}
	if cmd.IsSet("max-frames") {
		cfg.Processing.MaxFrames = int(cmd.Int("max-frames"))
	}
	if cmd.IsSet("prompt") {
		cfg.Style.Prompt = cmd.String("prompt")
	}
	if cmd.IsSet("strength") {
		cfg.Stabilize.Strength = cmd.Float("strength")
	}
	if cmd.IsSet("seed") {
		cfg.Style.Seed = int64(cmd.Int("seed"))
	}
	if cmd.IsSet("keep-frames") {
		cfg.Output.KeepFrames = cmd.Bool("keep-frames")
	}
	if cmd.IsSet("flow-backend") {
		cfg.Flow.Backend = cmd.String("flow-backend")
	}
	if cmd.Bool("no-flow") {
		cfg.Flow.Enabled = false
	}
	if cmd.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	return cfg.Validate()
}

// selection prompts for the mode only when neither a flag nor a config
// file chose one
func selection(cmd *cli.Command, cfg *config.Config) ui.Selection {
	sel := ui.Selection{
		InputPath:  cmd.String("input"),
		OutputPath: cmd.String("output"),
	}
	if cmd.IsSet("mode") || cmd.String("config") != "" {
		sel.Mode = cfg.Processing.Mode
	}
	return sel
}

// inspectInput probes the input and prints the warnings that do not stop a run
func inspectInput(w io.Writer, path string, probe func(string) (*video.VideoInfo, error)) (*video.VideoInfo, error) {
	result, err := validation.ValidateInputVideo(path, probe)
	if err != nil {
		return nil, fmt.Errorf("error reading video: %w", err)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintln(w, ui.WarningStyle.Render("⚠️  "+warning))
	}
	return result.Info, nil
}

func pipelineConfig(cfg *config.Config, mode style.ProcessingMode) pipeline.Config {
	return pipeline.Config{
		Mode:        mode,
		Width:       cfg.Processing.Width,
		Height:      cfg.Processing.Height,
		FPS:         cfg.Processing.FPS,
		MaxFrames:   cfg.Processing.MaxFrames,
		FlowEnabled: cfg.Flow.Enabled,
		KeepFrames:  cfg.Output.KeepFrames,
		RunDir:      cfg.Output.RunDir,
		Stabilize:   cfg.StabilizeConfig(),
	}
}

// backends holds the components plus the script transformers that still
// need an availability check
type backends struct {
	components pipeline.Components
	scripts    map[string]*style.ScriptTransformer
}

func buildComponents(cfg *config.Config, mode style.ProcessingMode, tempDir string, executor python.Executor, logger *zap.Logger) (*backends, error) {
	encode := cfg.EncodeOptions()
	b := &backends{
		components: pipeline.Components{
			Probe: video.GetVideoInfo,
			OpenSource: func(path string, width, height int) (ffmpeg.FrameSource, error) {
				source, err := ffmpeg.OpenSource(path, width, height)
				if err != nil {
					return nil, err
				}
				return source, nil
			},
			OpenSink: func(path string, width, height int, fps float64) (ffmpeg.VideoSink, error) {
				sink, err := ffmpeg.OpenSink(path, width, height, fps, encode)
				if err != nil {
					return nil, err
				}
				return sink, nil
			},
		},
		scripts: make(map[string]*style.ScriptTransformer),
	}

	newScript := func(backend string) (*style.ScriptTransformer, error) {
		sc := cfg.ScriptConfig(backend, tempDir)
		if err := style.ValidateScriptConfig(sc); err != nil {
			return nil, fmt.Errorf("%s backend: %w", backend, err)
		}
		t := style.NewScriptTransformer(sc, executor, logger.Named(backend))
		b.scripts[backend] = t
		return t, nil
	}

	if mode.UsesGAN() {
		gan, err := newScript(style.BackendCycleGAN)
		if err != nil {
			return nil, err
		}
		b.components.GAN = gan
	}
	if mode.Stabilized() {
		diffusion, err := newScript(style.BackendDiffusion)
		if err != nil {
			return nil, err
		}
		b.components.Diffusion = diffusion
		if cfg.Flow.Enabled {
			b.components.Estimator = flow.NewEstimator(cfg.EstimatorConfig(), cfg.FlowLoader(logger.Named("flow")), logger)
		}
	}
	return b, nil
}

// checkAvailable fails fast when a style script or its packages are missing
func (b *backends) checkAvailable(ctx context.Context) error {
	for backend, t := range b.scripts {
		if !t.IsAvailable(ctx) {
			return fmt.Errorf("%s backend is not available: check the stylize script and its Python packages", backend)
		}
	}
	return nil
}
