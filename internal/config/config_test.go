package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prismflow/internal/style"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prismflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 768, cfg.Processing.Width)
	assert.Equal(t, 512, cfg.Processing.Height)
	mode, err := cfg.ProcessingMode()
	require.NoError(t, err)
	assert.Equal(t, style.DiffusionOnly, mode)

	assert.Equal(t, 5.0, cfg.Occlusion.FlowMultiplier)
	assert.Equal(t, 2.0, cfg.Occlusion.DifoMultiplier)
	assert.Equal(t, 0.0, cfg.Occlusion.DifsMultiplier)
	assert.Equal(t, 3.0, cfg.Occlusion.Blur)

	assert.Equal(t, 0.75, cfg.Stabilize.Strength)
	assert.Equal(t, 0.85, cfg.Stabilize.MaskedStrength)
	assert.Equal(t, 0.1, cfg.Stabilize.CoverageThreshold)

	assert.Equal(t, 20, cfg.Style.Steps)
	assert.Equal(t, 7.5, cfg.Style.CFGScale)
	assert.Equal(t, int64(-1), cfg.Style.Seed)
	assert.Equal(t, style.DefaultNegativePrompt, cfg.Style.NegativePrompt)

	assert.Equal(t, "libx264", cfg.Output.Codec)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
processing:
  mode: "CycleGAN + Stable Diffusion"
  width: 512
  height: 512
flow:
  backend: blockmatch
occlusion:
  mask_flow_multiplier: 8
  mask_blur: 0
stabilize:
  strength: 0.6
style:
  prompt: "ghibli style"
log:
  level: debug
`)
	cfg, err := NewLoader().WithConfigPath(path).WithLookupEnv(noEnv).Load()
	require.NoError(t, err)

	mode, err := cfg.ProcessingMode()
	require.NoError(t, err)
	assert.Equal(t, style.CycleGANDiffusion, mode)
	assert.Equal(t, 512, cfg.Processing.Width)
	assert.Equal(t, FlowBackendBlockMatch, cfg.Flow.Backend)
	assert.Equal(t, 8.0, cfg.Occlusion.FlowMultiplier)
	assert.Equal(t, 0.0, cfg.Occlusion.Blur)
	assert.Equal(t, 2.0, cfg.Occlusion.DifoMultiplier, "unset keys keep defaults")
	assert.Equal(t, 0.6, cfg.Stabilize.Strength)
	assert.Equal(t, "ghibli style", cfg.Style.Prompt)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "stabilize:\n  strength: 0.6\n")
	cfg, err := NewLoader().WithConfigPath(path).WithLookupEnv(envMap(map[string]string{
		"PRISMFLOW_STABILIZE_STRENGTH":            "0.5",
		"PRISMFLOW_OCCLUSION_MASK_DIFS_MULTIPLIER": "1.5",
		"PRISMFLOW_FLOW_ENABLED":                  "false",
		"PRISMFLOW_STYLE_SEED":                    "42",
		"PRISMFLOW_OUTPUT_KEEP_FRAMES":            "true",
	})).Load()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Stabilize.Strength)
	assert.Equal(t, 1.5, cfg.Occlusion.DifsMultiplier)
	assert.False(t, cfg.Flow.Enabled)
	assert.Equal(t, int64(42), cfg.Style.Seed)
	assert.True(t, cfg.Output.KeepFrames)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		env     map[string]string
		invalid bool
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.yaml") },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeConfig(t, "processing: [\n") },
		},
		{
			name: "bad env value",
			path: func(t *testing.T) string { return "" },
			env:  map[string]string{"PRISMFLOW_PROCESSING_WIDTH": "wide"},
		},
		{
			name:    "unknown mode",
			path:    func(t *testing.T) string { return writeConfig(t, "processing:\n  mode: vqgan\n") },
			invalid: true,
		},
		{
			name:    "strength out of range",
			path:    func(t *testing.T) string { return writeConfig(t, "stabilize:\n  masked_strength: 1.3\n") },
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().WithConfigPath(tt.path(t)).WithLookupEnv(envMap(tt.env)).Load()
			require.Error(t, err)
			assert.Equal(t, tt.invalid, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "odd width", mutate: func(c *Config) { c.Processing.Width = 767 }, wantErr: true},
		{name: "zero height", mutate: func(c *Config) { c.Processing.Height = 0 }, wantErr: true},
		{name: "negative max frames", mutate: func(c *Config) { c.Processing.MaxFrames = -1 }, wantErr: true},
		{name: "unknown flow backend", mutate: func(c *Config) { c.Flow.Backend = "farneback" }, wantErr: true},
		{name: "negative weight", mutate: func(c *Config) { c.Occlusion.DifoMultiplier = -2 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Stabilize.CoverageThreshold = 1.1 }, wantErr: true},
		{name: "zero steps", mutate: func(c *Config) { c.Style.Steps = 0 }, wantErr: true},
		{name: "crf out of range", mutate: func(c *Config) { c.Output.CRF = 60 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "short mode name", mutate: func(c *Config) { c.Processing.Mode = "cyclegan" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Occlusion.Blur = 1.5
	cfg.Stabilize.MaskedStrength = 0.9

	sc := cfg.StabilizeConfig()
	assert.Equal(t, 0.9, sc.MaskedStrength)
	assert.Equal(t, 1.5, sc.Weights.Blur)
	assert.Equal(t, 20.0, sc.Weights.ZeroFlowSensitivity)

	ec := cfg.EstimatorConfig()
	assert.Equal(t, "models/raft-things.pth", ec.WeightsPath)
	assert.Equal(t, 16, ec.SizeMultiple)

	cfg.Flow.Backend = FlowBackendBlockMatch
	assert.Empty(t, cfg.EstimatorConfig().WeightsPath, "block matching needs no weights")

	gan := cfg.ScriptConfig(style.BackendCycleGAN, "/tmp")
	assert.Equal(t, cfg.Style.GANModel, gan.ModelPath)
	diff := cfg.ScriptConfig(style.BackendDiffusion, "/tmp")
	assert.Equal(t, cfg.Style.DiffusionModel, diff.ModelPath)
	assert.NoError(t, style.ValidateScriptConfig(diff))

	assert.Equal(t, 18, cfg.EncodeOptions().CRF)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Level = "nope"
	_, err = cfg.NewLogger()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
