// internal/style/script.go
package style

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"prismflow/internal/frame"
	"prismflow/internal/python"
)

// Backend models the script can drive
const (
	BackendCycleGAN  = "cyclegan"
	BackendDiffusion = "diffusion"
)

// DefaultNegativePrompt is applied when no negative prompt is configured
const DefaultNegativePrompt = "low quality, worst quality, blurry, text, logo, watermark, signature"

// ScriptConfig holds configuration for a Python-backed transformer
type ScriptConfig struct {
	PythonPath     string
	ScriptPath     string
	Backend        string // cyclegan or diffusion
	ModelPath      string // checkpoint or model id; empty uses the script default
	Prompt         string
	NegativePrompt string
	Steps          int
	CFGScale       float64
	Seed           int64 // -1 draws a random seed per invocation
	Device         string
	TempDir        string
}

// DefaultScriptConfig returns the diffusion defaults
func DefaultScriptConfig() ScriptConfig {
	return ScriptConfig{
		PythonPath:     "python3",
		ScriptPath:     "scripts/stylize_frame.py",
		Backend:        BackendDiffusion,
		NegativePrompt: DefaultNegativePrompt,
		Steps:          20,
		CFGScale:       7.5,
		Seed:           -1,
		TempDir:        os.TempDir(),
	}
}

// ValidateScriptConfig validates a transformer configuration
func ValidateScriptConfig(config ScriptConfig) error {
	switch config.Backend {
	case BackendCycleGAN, BackendDiffusion:
	default:
		return fmt.Errorf("invalid style backend: %q", config.Backend)
	}
	if config.PythonPath == "" {
		return fmt.Errorf("Python path is required for the %s backend", config.Backend)
	}
	if config.ScriptPath == "" {
		return fmt.Errorf("script path is required for the %s backend", config.Backend)
	}
	if config.Backend == BackendDiffusion {
		if config.Steps <= 0 {
			return fmt.Errorf("diffusion steps must be positive, got %d", config.Steps)
		}
		if config.CFGScale <= 0 {
			return fmt.Errorf("cfg scale must be positive, got %v", config.CFGScale)
		}
	}
	return nil
}

// backendModules are the Python packages each backend imports
var backendModules = map[string][]string{
	BackendCycleGAN:  {"torch"},
	BackendDiffusion: {"torch", "diffusers"},
}

// ScriptTransformer runs one Python invocation per frame, exchanging PNGs
// through a scratch directory
type ScriptTransformer struct {
	config   ScriptConfig
	executor python.Executor
	logger   *zap.Logger
}

// NewScriptTransformer creates a transformer; executor nil uses os/exec
func NewScriptTransformer(config ScriptConfig, executor python.Executor, logger *zap.Logger) *ScriptTransformer {
	if executor == nil {
		executor = python.ExecExecutor{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptTransformer{config: config, executor: executor, logger: logger}
}

// IsAvailable checks the interpreter, the script and the backend's packages
func (s *ScriptTransformer) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(s.config.ScriptPath); err != nil {
		return false
	}
	return python.HasModules(ctx, s.executor, s.config.PythonPath, backendModules[s.config.Backend]...)
}

// Transform writes the request to disk, runs the script and reads back
// the styled frame at the input resolution
func (s *ScriptTransformer) Transform(ctx context.Context, req Request) (frame.Frame, error) {
	if err := req.Validate(); err != nil {
		return frame.Frame{}, err
	}
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	tempDir, err := os.MkdirTemp(s.config.TempDir, "stylize_*")
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to create temp directory: %v", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(tempDir); removeErr != nil {
			s.logger.Warn("failed to clean up temp directory", zap.String("dir", tempDir), zap.Error(removeErr))
		}
	}()

	inputPath := filepath.Join(tempDir, "input.png")
	outputPath := filepath.Join(tempDir, "output.png")
	if err := req.Image.WritePNG(inputPath); err != nil {
		return frame.Frame{}, err
	}

	maskPath := ""
	if req.Mode == Masked {
		maskPath = filepath.Join(tempDir, "mask.png")
		if err := req.Mask.WritePNG(maskPath); err != nil {
			return frame.Frame{}, err
		}
	}

	args := s.buildArgs(inputPath, outputPath, maskPath, req)
	output, err := s.executor.Execute(ctx, s.config.PythonPath, args...)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%s stylization failed: %v\nOutput: %s", s.config.Backend, err, string(output))
	}

	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		return frame.Frame{}, fmt.Errorf("stylization completed but output file was not created")
	}
	styled, err := frame.ReadPNG(outputPath)
	if err != nil {
		return frame.Frame{}, err
	}

	// Models may round the working size; the pipeline needs a fixed size
	if !styled.SameSize(req.Image) {
		s.logger.Debug("resizing styled frame",
			zap.Int("width", styled.Width), zap.Int("height", styled.Height),
			zap.Int("want_width", req.Image.Width), zap.Int("want_height", req.Image.Height))
		styled = styled.Resize(req.Image.Width, req.Image.Height)
	}
	return styled, nil
}

func (s *ScriptTransformer) buildArgs(inputPath, outputPath, maskPath string, req Request) []string {
	args := []string{
		s.config.ScriptPath,
		"--backend", s.config.Backend,
		"--input", inputPath,
		"--output", outputPath,
		"--mode", req.Mode.String(),
		"--width", strconv.Itoa(req.Image.Width),
		"--height", strconv.Itoa(req.Image.Height),
	}
	if s.config.ModelPath != "" {
		args = append(args, "--model", s.config.ModelPath)
	}
	if s.config.Device != "" {
		args = append(args, "--device", s.config.Device)
	}
	if s.config.Backend != BackendDiffusion {
		return args
	}

	args = append(args,
		"--strength", strconv.FormatFloat(req.Strength, 'f', -1, 64),
		"--prompt", s.config.Prompt,
		"--negative-prompt", s.config.NegativePrompt,
		"--steps", strconv.Itoa(s.config.Steps),
		"--cfg-scale", strconv.FormatFloat(s.config.CFGScale, 'f', -1, 64),
	)
	if maskPath != "" {
		args = append(args, "--mask", maskPath)
	}
	if s.config.Seed >= 0 {
		args = append(args, "--seed", strconv.FormatInt(s.config.Seed, 10))
	}
	return args
}
