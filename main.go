// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"prismflow/internal/config"
	"prismflow/internal/ffmpeg"
	"prismflow/internal/pipeline"
	"prismflow/internal/python"
	"prismflow/internal/ui"
	"prismflow/internal/video"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCommand(ui.Terminal{}).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("❌ "+err.Error()))
		stop()
		os.Exit(1)
	}
}

func newCommand(prompter ui.Prompter) *cli.Command {
	return &cli.Command{
		Name:  "prismflow",
		Usage: "Stylize a video with CycleGAN and Stable Diffusion, stabilized by optical flow",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Input video (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output .mp4 path (defaults to <input>_styled.mp4)",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "cyclegan, diffusion or cyclegan+diffusion (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "prompt",
				Aliases: []string{"p"},
				Usage:   "Stable Diffusion prompt",
			},
			&cli.FloatFlag{
				Name:  "strength",
				Usage: "Denoising strength for full and img2img frames",
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "Diffusion seed, -1 for random",
			},
			&cli.IntFlag{
				Name:  "max-frames",
				Usage: "Stop after this many frames, 0 for all",
			},
			&cli.BoolFlag{
				Name:  "keep-frames",
				Usage: "Also write styled frames as PNGs into the run directory",
			},
			&cli.StringFlag{
				Name:  "flow-backend",
				Usage: "Optical flow backend: raft or blockmatch",
			},
			&cli.BoolFlag{
				Name:  "no-flow",
				Usage: "Disable optical flow stabilization",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log every frame decision",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd, prompter)
		},
	}
}

func run(ctx context.Context, cmd *cli.Command, prompter ui.Prompter) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	fmt.Println(ui.TitleStyle.Render("🎨 PrismFlow Video Stylizer"))

	if !ffmpeg.IsFFmpegAvailable() {
		return errors.New("FFmpeg is not installed or not in PATH")
	}

	resolved, err := ui.Complete(prompter, selection(cmd, cfg))
	if err != nil {
		return err
	}

	info, err := inspectInput(os.Stdout, resolved.InputPath, video.GetVideoInfo)
	if err != nil {
		return err
	}
	ui.DisplayVideoInfo(info)

	executor := python.ExecExecutor{}
	resolvePython(ctx, cfg, executor, logger)

	tempDir, err := os.MkdirTemp("", "prismflow-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	backends, err := buildComponents(cfg, resolved.Mode, tempDir, executor, logger)
	if err != nil {
		return err
	}
	if err := backends.checkAvailable(ctx); err != nil {
		return err
	}

	p := pipeline.New(pipelineConfig(cfg, resolved.Mode), backends.components, logger)

	total := info.FrameCount
	if cfg.Processing.MaxFrames > 0 && (total == 0 || total > cfg.Processing.MaxFrames) {
		total = cfg.Processing.MaxFrames
	}
	fmt.Println(ui.PromptStyle.Render(fmt.Sprintf("🔄 Styling with %s...", resolved.Mode.Label())))
	bar := ui.NewProgressBar(os.Stdout, total)

	result, err := p.Run(ctx, pipeline.Options{
		InputPath:  resolved.InputPath,
		OutputPath: resolved.OutputPath,
		Progress:   ui.ProgressCallback(bar),
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("styling failed: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render("✅ Styling completed successfully!"))
	ui.DisplayRunSummary(result)
	return nil
}

// resolvePython fills empty interpreter paths with a detected python
func resolvePython(ctx context.Context, cfg *config.Config, executor python.Executor, logger *zap.Logger) {
	if cfg.Style.PythonPath != "" && cfg.Flow.PythonPath != "" {
		return
	}
	detected := python.DetectPythonPath(ctx, executor)
	if detected == "" {
		logger.Warn("no Python 3 interpreter found")
		return
	}
	if cfg.Style.PythonPath == "" {
		cfg.Style.PythonPath = detected
	}
	if cfg.Flow.PythonPath == "" {
		cfg.Flow.PythonPath = detected
	}
	logger.Debug("detected python", zap.String("python", detected))
}
