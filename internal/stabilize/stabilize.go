// internal/stabilize/stabilize.go
package stabilize

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
	"prismflow/internal/occlusion"
	"prismflow/internal/style"
)

// ErrTransformerFailure wraps errors returned by the style back end. These
// are never absorbed here.
var ErrTransformerFailure = errors.New("style transformer failed")

// FlowEstimator is the optical flow capability the controller consumes
type FlowEstimator interface {
	Estimate(ctx context.Context, a, b frame.Frame) (*flow.Result, error)
}

// FlowStatus records what happened in the flow stage for one frame
type FlowStatus int

const (
	// FlowApplied means the diff map was computed and the frame was blended
	FlowApplied FlowStatus = iota
	// FlowSkippedFirstFrame means there was no previous frame to compare
	FlowSkippedFirstFrame
	// FlowDisabled means flow was turned off for the run
	FlowDisabled
	// FlowUnavailable means the flow model could not be loaded
	FlowUnavailable
	// FlowFailed means estimation or diff-map computation failed for this frame
	FlowFailed
)

func (s FlowStatus) String() string {
	switch s {
	case FlowApplied:
		return "applied"
	case FlowSkippedFirstFrame:
		return "first-frame"
	case FlowDisabled:
		return "disabled"
	case FlowUnavailable:
		return "unavailable"
	case FlowFailed:
		return "failed"
	}
	return fmt.Sprintf("FlowStatus(%d)", int(s))
}

// FlowStatuses lists every status in display order
func FlowStatuses() []FlowStatus {
	return []FlowStatus{FlowApplied, FlowSkippedFirstFrame, FlowDisabled, FlowUnavailable, FlowFailed}
}

// Config holds the blending policy
type Config struct {
	DefaultStrength   float64
	MaskedStrength    float64 // used when coverage exceeds the threshold
	CoverageThreshold float64
	Weights           occlusion.Weights
}

// DefaultConfig returns the tuned policy
func DefaultConfig() Config {
	return Config{
		DefaultStrength:   0.75,
		MaskedStrength:    0.85,
		CoverageThreshold: 0.1,
		Weights:           occlusion.DefaultWeights(),
	}
}

// Validate checks the policy values
func (c Config) Validate() error {
	if c.DefaultStrength < 0 || c.DefaultStrength > 1 {
		return fmt.Errorf("default strength must be in [0,1], got %v", c.DefaultStrength)
	}
	if c.MaskedStrength < 0 || c.MaskedStrength > 1 {
		return fmt.Errorf("masked strength must be in [0,1], got %v", c.MaskedStrength)
	}
	if c.CoverageThreshold < 0 || c.CoverageThreshold > 1 {
		return fmt.Errorf("coverage threshold must be in [0,1], got %v", c.CoverageThreshold)
	}
	return c.Weights.Validate()
}

// Input is one frame of the sequence. PrevRaw and PrevStyled are nil for
// the first frame.
type Input struct {
	Index        int
	Curr         frame.Frame
	PrevRaw      *frame.Frame
	PrevStyled   *frame.Frame
	FlowDisabled bool
}

// Decision describes how a frame was produced
type Decision struct {
	Mode     style.Mode
	Strength float64
	Coverage float64 // mean alpha, zero unless Flow is FlowApplied
	Flow     FlowStatus
	Cause    error // why the flow stage degraded, nil otherwise
}

// Output is the styled frame and the decision that produced it
type Output struct {
	Styled   frame.Frame
	Decision Decision
}

// Controller decides per frame between full regeneration, masked
// regeneration and plain img2img over a motion-compensated blend. It
// holds no state across frames.
type Controller struct {
	config    Config
	estimator FlowEstimator
	logger    *zap.Logger
}

// NewController creates a controller. A nil estimator disables flow.
func NewController(config Config, estimator FlowEstimator, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{config: config, estimator: estimator, logger: logger}
}

// blendPlan is the successful outcome of the flow stage
type blendPlan struct {
	candidate frame.Frame
	alpha     frame.Mask
	coverage  float64
}

// Stabilize produces the styled version of in.Curr. Flow-stage failures
// degrade the frame to full regeneration; transformer failures are
// returned wrapped in ErrTransformerFailure.
func (c *Controller) Stabilize(ctx context.Context, in Input, transformer style.Transformer) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Curr.Validate(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", in.Index, err)
	}

	decision := Decision{Mode: style.Full, Strength: c.config.DefaultStrength}
	req := style.Request{Image: in.Curr, Mode: style.Full, Strength: c.config.DefaultStrength}

	plan, status, cause := c.flowStage(ctx, in)
	decision.Flow = status
	decision.Cause = cause

	if plan != nil {
		decision.Coverage = plan.coverage
		req.Image = plan.candidate
		if plan.coverage > c.config.CoverageThreshold {
			mask := plan.alpha.ToFrame()
			req.Mode = style.Masked
			req.Mask = &mask
			req.Strength = c.config.MaskedStrength
		} else {
			req.Mode = style.Img2Img
		}
		decision.Mode = req.Mode
		decision.Strength = req.Strength
	}

	switch status {
	case FlowUnavailable, FlowFailed:
		c.logger.Warn("optical flow degraded, regenerating frame",
			zap.Int("frame", in.Index), zap.Stringer("flow", status), zap.Error(cause))
	}

	styled, err := transformer.Transform(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d (%s): %w", ErrTransformerFailure, in.Index, req.Mode, err)
	}
	if !styled.SameSize(in.Curr) {
		return nil, fmt.Errorf("%w: frame %d returned %dx%d, want %dx%d", ErrTransformerFailure,
			in.Index, styled.Width, styled.Height, in.Curr.Width, in.Curr.Height)
	}

	c.logger.Debug("frame stabilized",
		zap.Int("frame", in.Index),
		zap.Stringer("mode", decision.Mode),
		zap.Float64("strength", decision.Strength),
		zap.Float64("coverage", decision.Coverage),
		zap.Stringer("flow", decision.Flow))

	return &Output{Styled: styled, Decision: decision}, nil
}

// flowStage runs estimation, the diff map and the blend. A nil plan always
// comes with a non-applied status. Panics are absorbed as FlowFailed.
func (c *Controller) flowStage(ctx context.Context, in Input) (plan *blendPlan, status FlowStatus, cause error) {
	if in.Index == 0 || in.PrevRaw == nil || in.PrevStyled == nil {
		return nil, FlowSkippedFirstFrame, nil
	}
	if in.FlowDisabled || c.estimator == nil {
		return nil, FlowDisabled, nil
	}

	defer func() {
		if r := recover(); r != nil {
			plan, status, cause = nil, FlowFailed, fmt.Errorf("%w: panic: %v", flow.ErrEstimationFailed, r)
		}
	}()

	result, err := c.estimator.Estimate(ctx, *in.PrevRaw, in.Curr)
	if err != nil {
		if errors.Is(err, flow.ErrModelUnavailable) {
			return nil, FlowUnavailable, err
		}
		return nil, FlowFailed, err
	}
	if result == nil {
		return nil, FlowUnavailable, flow.ErrModelUnavailable
	}

	diff, err := occlusion.ComputeDiffMap(result.Forward, result.Backward, *in.PrevRaw, in.Curr, *in.PrevStyled, c.config.Weights)
	if err != nil {
		return nil, FlowFailed, fmt.Errorf("%w: diff map: %v", flow.ErrEstimationFailed, err)
	}

	return &blendPlan{
		candidate: Blend(in.Curr, diff.Warped, diff.Alpha),
		alpha:     diff.Alpha,
		coverage:  diff.Coverage(),
	}, FlowApplied, nil
}

// Blend computes curr*alpha + warped*(1-alpha) per channel, truncated to
// the pixel range. All three inputs must share one size.
func Blend(curr, warped frame.Frame, alpha frame.Mask) frame.Frame {
	out := frame.New(curr.Width, curr.Height)
	for i, a := range alpha.Values {
		for c := 0; c < frame.Channels; c++ {
			j := i*frame.Channels + c
			v := float32(curr.Pix[j])*a + float32(warped.Pix[j])*(1-a)
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.Pix[j] = uint8(v)
		}
	}
	return out
}
