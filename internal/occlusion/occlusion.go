// internal/occlusion/occlusion.go
package occlusion

import (
	"fmt"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
	"prismflow/internal/warp"
)

// Weights tunes how the three disagreement signals build the alpha mask
type Weights struct {
	FlowMultiplier float64 // forward-backward inconsistency
	DifoMultiplier float64 // warped raw vs current raw
	DifsMultiplier float64 // warped styled vs current raw
	Blur           float64 // Gaussian sigma, 0 disables

	// ZeroFlowSensitivity suppresses the flow signal where motion is near
	// zero: suppression = clip(1 - s*|backward|, 0, 1)
	ZeroFlowSensitivity float64
	// FlowSignalScale pre-multiplies the flow signal before the max
	FlowSignalScale float64
}

// DefaultWeights returns the tuned defaults
func DefaultWeights() Weights {
	return Weights{
		FlowMultiplier:      5.0,
		DifoMultiplier:      2.0,
		DifsMultiplier:      0.0,
		Blur:                3.0,
		ZeroFlowSensitivity: 20,
		FlowSignalScale:     10,
	}
}

// Validate rejects negative weights, which would break the [0,1] mask
// semantics and the monotonicity of coverage in each weight
func (w Weights) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"flow_multiplier", w.FlowMultiplier},
		{"difo_multiplier", w.DifoMultiplier},
		{"difs_multiplier", w.DifsMultiplier},
		{"blur", w.Blur},
		{"zero_flow_sensitivity", w.ZeroFlowSensitivity},
		{"flow_signal_scale", w.FlowSignalScale},
	}
	for _, c := range checks {
		if c.value < 0 {
			return fmt.Errorf("occlusion %s must not be negative, got %v", c.name, c.value)
		}
	}
	return nil
}

// DiffMap is the output of ComputeDiffMap. Alpha is 1 where the freshly
// generated frame should be trusted and 0 where the motion-compensated
// previous styled frame should be kept.
type DiffMap struct {
	Alpha      frame.Mask
	FlowSignal frame.Mask // occlusion signal after zero-flow suppression
	OrgSignal  frame.Mask // max-channel |warped raw - current| / 255
	StlSignal  frame.Mask // max-channel |warped styled - current| / 255
	Warped     frame.Frame
	WarpedRaw  frame.Frame
}

// Coverage is the mean of the alpha mask
func (d *DiffMap) Coverage() float64 {
	return d.Alpha.Mean()
}

// ComputeDiffMap builds the blend mask and the motion-compensated previous
// styled frame. forward is prev->curr flow, backward is curr->prev.
func ComputeDiffMap(forward, backward flow.Field, prevRaw, currRaw, prevStyled frame.Frame, weights Weights) (*DiffMap, error) {
	if err := currRaw.Validate(); err != nil {
		return nil, fmt.Errorf("current frame: %w", err)
	}
	if !prevRaw.SameSize(currRaw) || !prevStyled.SameSize(currRaw) {
		return nil, fmt.Errorf("frame size mismatch: prev %dx%d, curr %dx%d, styled %dx%d",
			prevRaw.Width, prevRaw.Height, currRaw.Width, currRaw.Height, prevStyled.Width, prevStyled.Height)
	}
	if forward.Width != backward.Width || forward.Height != backward.Height {
		return nil, fmt.Errorf("flow size mismatch: forward %dx%d, backward %dx%d",
			forward.Width, forward.Height, backward.Width, backward.Height)
	}
	if err := forward.Validate(); err != nil {
		return nil, fmt.Errorf("forward flow: %w", err)
	}
	if err := backward.Validate(); err != nil {
		return nil, fmt.Errorf("backward flow: %w", err)
	}

	w, h := currRaw.Width, currRaw.Height

	// Flow on a unit-square scale
	fwdNorm := forward.Normalize(forward.Width, forward.Height)
	bwdNorm := backward.Normalize(backward.Width, backward.Height)

	sum, err := fwdNorm.Add(bwdNorm)
	if err != nil {
		return nil, err
	}
	occlusion := sum.Norm()
	motion := bwdNorm.Norm()

	flowSignal := frame.NewMask(forward.Width, forward.Height)
	sensitivity := float32(weights.ZeroFlowSensitivity)
	for i, v := range occlusion.Values {
		zeroFlow := clamp(1-motion.Values[i]*sensitivity, 0, 1)
		flowSignal.Values[i] = v * zeroFlow
	}
	flowSignal = flowSignal.Resize(w, h)

	// Back to pixel units at the processing resolution
	backwardPx := bwdNorm.Resize(w, h).Denormalize(w, h)

	warpedRaw, err := warp.Warp(prevRaw, backwardPx, warp.Nearest, warp.Reflect)
	if err != nil {
		return nil, fmt.Errorf("warp previous frame: %w", err)
	}
	warpedStyled, err := warp.Warp(prevStyled, backwardPx, warp.Nearest, warp.Reflect)
	if err != nil {
		return nil, fmt.Errorf("warp previous styled frame: %w", err)
	}

	org := channelDiff(warpedRaw, currRaw)
	stl := channelDiff(warpedStyled, currRaw)

	alpha := frame.NewMask(w, h)
	wf := float32(weights.FlowMultiplier * weights.FlowSignalScale)
	wo := float32(weights.DifoMultiplier)
	ws := float32(weights.DifsMultiplier)
	for i := range alpha.Values {
		v := max(flowSignal.Values[i]*wf, org.Values[i]*wo, stl.Values[i]*ws)
		alpha.Values[i] = clamp(v, 0, 1)
	}

	if weights.Blur > 0 {
		alpha = alpha.GaussianBlur(BlurKernelSize(w, h), weights.Blur).Clamp(0, 1)
	}

	return &DiffMap{
		Alpha:      alpha,
		FlowSignal: flowSignal,
		OrgSignal:  org,
		StlSignal:  stl,
		Warped:     warpedStyled,
		WarpedRaw:  warpedRaw,
	}, nil
}

// BlurKernelSize is min(w, h)/15 forced odd
func BlurKernelSize(w, h int) int {
	return min(w, h)/15 | 1
}

// channelDiff returns max over channels of |a - b| / 255
func channelDiff(a, b frame.Frame) frame.Mask {
	m := frame.NewMask(a.Width, a.Height)
	for i := range m.Values {
		var best uint8
		for c := 0; c < frame.Channels; c++ {
			x, y := a.Pix[i*3+c], b.Pix[i*3+c]
			d := x - y
			if y > x {
				d = y - x
			}
			if d > best {
				best = d
			}
		}
		m.Values[i] = float32(best) / 255
	}
	return m
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
