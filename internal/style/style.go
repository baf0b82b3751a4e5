// internal/style/style.go
package style

import (
	"context"
	"fmt"
	"strings"

	"prismflow/internal/frame"
)

// Mode selects how a transformer treats its input image
type Mode int

const (
	// Full regenerates the whole frame from the raw input
	Full Mode = iota
	// Masked regenerates only where the mask is bright
	Masked
	// Img2Img refines the base image everywhere at the given strength
	Img2Img
)

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Masked:
		return "masked"
	case Img2Img:
		return "img2img"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Request is one image transformation
type Request struct {
	Image    frame.Frame
	Mode     Mode
	Mask     *frame.Frame // required for Masked, ignored otherwise
	Strength float64
}

// Validate checks the request is well formed for its mode
func (r Request) Validate() error {
	if err := r.Image.Validate(); err != nil {
		return fmt.Errorf("input image: %w", err)
	}
	switch r.Mode {
	case Full, Img2Img:
	case Masked:
		if r.Mask == nil {
			return fmt.Errorf("masked mode requires a mask")
		}
		if !r.Mask.SameSize(r.Image) {
			return fmt.Errorf("mask %dx%d does not match image %dx%d",
				r.Mask.Width, r.Mask.Height, r.Image.Width, r.Image.Height)
		}
	default:
		return fmt.Errorf("unknown mode %v", r.Mode)
	}
	if r.Strength < 0 || r.Strength > 1 {
		return fmt.Errorf("strength must be in [0,1], got %v", r.Strength)
	}
	return nil
}

// Transformer maps one image to one styled image. Implementations may fail;
// callers decide whether a failure aborts the run.
type Transformer interface {
	Transform(ctx context.Context, req Request) (frame.Frame, error)
}

// Func adapts a plain function to Transformer
type Func func(ctx context.Context, req Request) (frame.Frame, error)

// Transform calls f
func (f Func) Transform(ctx context.Context, req Request) (frame.Frame, error) {
	return f(ctx, req)
}

// ProcessingMode selects which back ends a run chains together
type ProcessingMode int

const (
	CycleGANOnly ProcessingMode = iota
	DiffusionOnly
	CycleGANDiffusion
)

// ProcessingModes lists every mode in display order
func ProcessingModes() []ProcessingMode {
	return []ProcessingMode{CycleGANOnly, DiffusionOnly, CycleGANDiffusion}
}

// Label is the human-readable name shown in prompts
func (p ProcessingMode) Label() string {
	switch p {
	case CycleGANOnly:
		return "CycleGAN Only"
	case DiffusionOnly:
		return "Stable Diffusion Only"
	case CycleGANDiffusion:
		return "CycleGAN + Stable Diffusion"
	}
	return fmt.Sprintf("ProcessingMode(%d)", int(p))
}

func (p ProcessingMode) String() string {
	switch p {
	case CycleGANOnly:
		return "cyclegan"
	case DiffusionOnly:
		return "diffusion"
	case CycleGANDiffusion:
		return "cyclegan+diffusion"
	}
	return fmt.Sprintf("ProcessingMode(%d)", int(p))
}

// UsesGAN reports whether frames pass through the GAN translator
func (p ProcessingMode) UsesGAN() bool {
	switch p {
	case CycleGANOnly, CycleGANDiffusion:
		return true
	case DiffusionOnly:
		return false
	}
	return false
}

// Stabilized reports whether the diffusion stage and temporal blending run
func (p ProcessingMode) Stabilized() bool {
	switch p {
	case DiffusionOnly, CycleGANDiffusion:
		return true
	case CycleGANOnly:
		return false
	}
	return false
}

// ParseProcessingMode accepts a label or a short name, case-insensitively
func ParseProcessingMode(s string) (ProcessingMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, p := range ProcessingModes() {
		if key == strings.ToLower(p.Label()) || key == p.String() {
			return p, nil
		}
	}
	switch key {
	case "gan", "cyclegan-only":
		return CycleGANOnly, nil
	case "sd", "stable-diffusion", "diffusion-only":
		return DiffusionOnly, nil
	case "gan+sd", "cyclegan+sd", "both":
		return CycleGANDiffusion, nil
	}
	return 0, fmt.Errorf("unknown processing mode %q", s)
}
