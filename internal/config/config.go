// internal/config/config.go

// Package config loads prismflow settings. Precedence: defaults, then the
// YAML file, then PRISMFLOW_* environment variables, then CLI flags (applied
// by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"prismflow/internal/ffmpeg"
	"prismflow/internal/flow"
	"prismflow/internal/occlusion"
	"prismflow/internal/stabilize"
	"prismflow/internal/style"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Flow backends
const (
	FlowBackendRAFT       = "raft"
	FlowBackendBlockMatch = "blockmatch"
)

// Config is the complete prismflow configuration
type Config struct {
	Processing ProcessingConfig `yaml:"processing" env:"PROCESSING"`
	Flow       FlowConfig       `yaml:"flow" env:"FLOW"`
	Occlusion  OcclusionConfig  `yaml:"occlusion" env:"OCCLUSION"`
	Stabilize  StabilizeConfig  `yaml:"stabilize" env:"STABILIZE"`
	Style      StyleConfig      `yaml:"style" env:"STYLE"`
	Output     OutputConfig     `yaml:"output" env:"OUTPUT"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
}

// ProcessingConfig selects the back ends and the working resolution
type ProcessingConfig struct {
	// One of the processing mode labels or short names
	Mode      string  `yaml:"mode" env:"MODE"`
	Width     int     `yaml:"width" env:"WIDTH"`
	Height    int     `yaml:"height" env:"HEIGHT"`
	MaxFrames int     `yaml:"max_frames" env:"MAX_FRAMES"` // 0 processes every frame
	FPS       float64 `yaml:"fps" env:"FPS"`               // 0 keeps the source rate
}

// FlowConfig configures the optical flow estimator
type FlowConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Backend      string `yaml:"backend" env:"BACKEND"`
	PythonPath   string `yaml:"python_path" env:"PYTHON_PATH"`
	ScriptPath   string `yaml:"script_path" env:"SCRIPT_PATH"`
	WeightsPath  string `yaml:"weights_path" env:"WEIGHTS_PATH"`
	Device       string `yaml:"device" env:"DEVICE"`
	Iterations   int    `yaml:"iterations" env:"ITERATIONS"`
	SizeMultiple int    `yaml:"size_multiple" env:"SIZE_MULTIPLE"`
	PadDivisor   int    `yaml:"pad_divisor" env:"PAD_DIVISOR"`
	BlockSize    int    `yaml:"block_size" env:"BLOCK_SIZE"`
	SearchRadius int    `yaml:"search_radius" env:"SEARCH_RADIUS"`
}

// OcclusionConfig holds the diff-map weights
type OcclusionConfig struct {
	FlowMultiplier      float64 `yaml:"mask_flow_multiplier" env:"MASK_FLOW_MULTIPLIER"`
	DifoMultiplier      float64 `yaml:"mask_difo_multiplier" env:"MASK_DIFO_MULTIPLIER"`
	DifsMultiplier      float64 `yaml:"mask_difs_multiplier" env:"MASK_DIFS_MULTIPLIER"`
	Blur                float64 `yaml:"mask_blur" env:"MASK_BLUR"`
	ZeroFlowSensitivity float64 `yaml:"zero_flow_sensitivity" env:"ZERO_FLOW_SENSITIVITY"`
	FlowSignalScale     float64 `yaml:"flow_signal_scale" env:"FLOW_SIGNAL_SCALE"`
}

// StabilizeConfig holds the blending policy
type StabilizeConfig struct {
	Strength          float64 `yaml:"strength" env:"STRENGTH"`
	MaskedStrength    float64 `yaml:"masked_strength" env:"MASKED_STRENGTH"`
	CoverageThreshold float64 `yaml:"coverage_threshold" env:"COVERAGE_THRESHOLD"`
}

// StyleConfig configures the GAN and diffusion scripts
type StyleConfig struct {
	PythonPath     string  `yaml:"python_path" env:"PYTHON_PATH"`
	ScriptPath     string  `yaml:"script_path" env:"SCRIPT_PATH"`
	GANModel       string  `yaml:"gan_model" env:"GAN_MODEL"`
	DiffusionModel string  `yaml:"diffusion_model" env:"DIFFUSION_MODEL"`
	Prompt         string  `yaml:"prompt" env:"PROMPT"`
	NegativePrompt string  `yaml:"negative_prompt" env:"NEGATIVE_PROMPT"`
	Steps          int     `yaml:"steps" env:"STEPS"`
	CFGScale       float64 `yaml:"cfg_scale" env:"CFG_SCALE"`
	Seed           int64   `yaml:"seed" env:"SEED"`
	Device         string  `yaml:"device" env:"DEVICE"`
}

// OutputConfig configures encoding and run artifacts
type OutputConfig struct {
	KeepFrames bool   `yaml:"keep_frames" env:"KEEP_FRAMES"`
	RunDir     string `yaml:"run_dir" env:"RUN_DIR"`
	Codec      string `yaml:"codec" env:"CODEC"`
	PixFmt     string `yaml:"pix_fmt" env:"PIX_FMT"`
	Preset     string `yaml:"preset" env:"PRESET"`
	CRF        int    `yaml:"crf" env:"CRF"`
}

// LogConfig configures zap
type LogConfig struct {
	// debug, info, warn, error
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// Default returns the built-in configuration
func Default() *Config {
	stab := stabilize.DefaultConfig()
	weights := occlusion.DefaultWeights()
	est := flow.DefaultEstimatorConfig()
	script := style.DefaultScriptConfig()
	enc := ffmpeg.DefaultEncodeOptions()

	return &Config{
		Processing: ProcessingConfig{
			Mode:   style.DiffusionOnly.String(),
			Width:  768,
			Height: 512,
		},
		Flow: FlowConfig{
			Enabled:      true,
			Backend:      FlowBackendRAFT,
			PythonPath:   "python3",
			ScriptPath:   "scripts/raft_worker.py",
			WeightsPath:  "models/raft-things.pth",
			Iterations:   20,
			SizeMultiple: est.SizeMultiple,
			PadDivisor:   est.PadDivisor,
			BlockSize:    8,
			SearchRadius: 4,
		},
		Occlusion: OcclusionConfig{
			FlowMultiplier:      weights.FlowMultiplier,
			DifoMultiplier:      weights.DifoMultiplier,
			DifsMultiplier:      weights.DifsMultiplier,
			Blur:                weights.Blur,
			ZeroFlowSensitivity: weights.ZeroFlowSensitivity,
			FlowSignalScale:     weights.FlowSignalScale,
		},
		Stabilize: StabilizeConfig{
			Strength:          stab.DefaultStrength,
			MaskedStrength:    stab.MaskedStrength,
			CoverageThreshold: stab.CoverageThreshold,
		},
		Style: StyleConfig{
			PythonPath:     script.PythonPath,
			ScriptPath:     script.ScriptPath,
			GANModel:       "checkpoints/cyclegan_anime/latest_net_G.pth",
			DiffusionModel: "runwayml/stable-diffusion-v1-5",
			NegativePrompt: script.NegativePrompt,
			Steps:          script.Steps,
			CFGScale:       script.CFGScale,
			Seed:           script.Seed,
		},
		Output: OutputConfig{
			RunDir: "runs",
			Codec:  enc.Codec,
			PixFmt: enc.PixFmt,
			Preset: enc.Preset,
			CRF:    enc.CRF,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Loader builds a Config from defaults, a YAML file and the environment
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader reading PRISMFLOW_* variables
func NewLoader() *Loader {
	return &Loader{envPrefix: "PRISMFLOW", lookupEnv: os.LookupEnv}
}

// WithConfigPath sets the YAML file; an empty path skips the file
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookupEnv replaces os.LookupEnv, for tests
func (l *Loader) WithLookupEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load reads and validates the configuration
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is shorthand for NewLoader().WithConfigPath(path).Load()
func Load(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookupEnv(envKey)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []string

	if _, err := c.ProcessingMode(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Processing.Width <= 0 || c.Processing.Height <= 0 {
		errs = append(errs, fmt.Sprintf("processing size must be positive, got %dx%d", c.Processing.Width, c.Processing.Height))
	}
	if c.Processing.Width%2 != 0 || c.Processing.Height%2 != 0 {
		errs = append(errs, "processing width and height must be even for yuv420p output")
	}
	if c.Processing.MaxFrames < 0 {
		errs = append(errs, "max_frames must not be negative")
	}
	if c.Processing.FPS < 0 {
		errs = append(errs, "fps must not be negative")
	}

	switch c.Flow.Backend {
	case FlowBackendRAFT, FlowBackendBlockMatch:
	default:
		errs = append(errs, fmt.Sprintf("unknown flow backend %q", c.Flow.Backend))
	}
	if c.Flow.SizeMultiple <= 0 || c.Flow.PadDivisor <= 0 {
		errs = append(errs, "flow size_multiple and pad_divisor must be positive")
	}
	if c.Flow.Backend == FlowBackendBlockMatch && c.Flow.BlockSize <= 0 {
		errs = append(errs, "flow block_size must be positive")
	}

	if err := c.StabilizeConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Style.Steps <= 0 {
		errs = append(errs, "style steps must be positive")
	}
	if c.Style.CFGScale <= 0 {
		errs = append(errs, "style cfg_scale must be positive")
	}

	if c.Output.CRF < 0 || c.Output.CRF > 51 {
		errs = append(errs, fmt.Sprintf("output crf must be in [0,51], got %d", c.Output.CRF))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ProcessingMode parses the configured mode
func (c *Config) ProcessingMode() (style.ProcessingMode, error) {
	return style.ParseProcessingMode(c.Processing.Mode)
}

// Weights converts the occlusion section
func (c *Config) Weights() occlusion.Weights {
	return occlusion.Weights{
		FlowMultiplier:      c.Occlusion.FlowMultiplier,
		DifoMultiplier:      c.Occlusion.DifoMultiplier,
		DifsMultiplier:      c.Occlusion.DifsMultiplier,
		Blur:                c.Occlusion.Blur,
		ZeroFlowSensitivity: c.Occlusion.ZeroFlowSensitivity,
		FlowSignalScale:     c.Occlusion.FlowSignalScale,
	}
}

// StabilizeConfig converts the stabilize and occlusion sections
func (c *Config) StabilizeConfig() stabilize.Config {
	return stabilize.Config{
		DefaultStrength:   c.Stabilize.Strength,
		MaskedStrength:    c.Stabilize.MaskedStrength,
		CoverageThreshold: c.Stabilize.CoverageThreshold,
		Weights:           c.Weights(),
	}
}

// EstimatorConfig converts the flow section. The block matcher needs no
// weights file.
func (c *Config) EstimatorConfig() flow.EstimatorConfig {
	ec := flow.EstimatorConfig{
		SizeMultiple: c.Flow.SizeMultiple,
		PadDivisor:   c.Flow.PadDivisor,
	}
	if c.Flow.Backend == FlowBackendRAFT {
		ec.WeightsPath = c.Flow.WeightsPath
	}
	return ec
}

// FlowLoader returns the model loader for the configured backend
func (c *Config) FlowLoader(logger *zap.Logger) flow.Loader {
	if c.Flow.Backend == FlowBackendBlockMatch {
		return flow.BlockMatchLoader(c.Flow.BlockSize, c.Flow.SearchRadius)
	}
	return flow.ScriptLoader(flow.ScriptConfig{
		PythonPath:  c.Flow.PythonPath,
		ScriptPath:  c.Flow.ScriptPath,
		WeightsPath: c.Flow.WeightsPath,
		Device:      c.Flow.Device,
		Iterations:  c.Flow.Iterations,
	}, logger)
}

// ScriptConfig converts the style section for one backend
func (c *Config) ScriptConfig(backend, tempDir string) style.ScriptConfig {
	sc := style.ScriptConfig{
		PythonPath:     c.Style.PythonPath,
		ScriptPath:     c.Style.ScriptPath,
		Backend:        backend,
		Prompt:         c.Style.Prompt,
		NegativePrompt: c.Style.NegativePrompt,
		Steps:          c.Style.Steps,
		CFGScale:       c.Style.CFGScale,
		Seed:           c.Style.Seed,
		Device:         c.Style.Device,
		TempDir:        tempDir,
	}
	switch backend {
	case style.BackendCycleGAN:
		sc.ModelPath = c.Style.GANModel
	case style.BackendDiffusion:
		sc.ModelPath = c.Style.DiffusionModel
	}
	return sc
}

// EncodeOptions converts the output section
func (c *Config) EncodeOptions() ffmpeg.EncodeOptions {
	return ffmpeg.EncodeOptions{
		Codec:  c.Output.Codec,
		PixFmt: c.Output.PixFmt,
		Preset: c.Output.Preset,
		CRF:    c.Output.CRF,
	}
}

// NewLogger builds a zap logger from the log section
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid log level %q", ErrInvalidConfig, c.Log.Level)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
