// internal/flow/padder.go
package flow

import "prismflow/internal/frame"

// Padder pads frames so both dimensions are multiples of Divisor, splitting
// the padding evenly between the two sides and replicating edge pixels.
type Padder struct {
	Left, Right, Top, Bottom int
}

// NewPadder computes the padding needed for a width x height input
func NewPadder(width, height, divisor int) Padder {
	if divisor <= 1 {
		return Padder{}
	}
	padW := (divisor - width%divisor) % divisor
	padH := (divisor - height%divisor) % divisor
	return Padder{
		Left:   padW / 2,
		Right:  padW - padW/2,
		Top:    padH / 2,
		Bottom: padH - padH/2,
	}
}

// IsZero reports whether no padding is required
func (p Padder) IsZero() bool {
	return p.Left == 0 && p.Right == 0 && p.Top == 0 && p.Bottom == 0
}

// Pad returns the padded frame
func (p Padder) Pad(f frame.Frame) frame.Frame {
	if p.IsZero() {
		return f
	}
	w := f.Width + p.Left + p.Right
	h := f.Height + p.Top + p.Bottom
	out := frame.New(w, h)
	for y := 0; y < h; y++ {
		sy := clampInt(y-p.Top, 0, f.Height-1)
		for x := 0; x < w; x++ {
			sx := clampInt(x-p.Left, 0, f.Width-1)
			si := (sy*f.Width + sx) * frame.Channels
			di := (y*w + x) * frame.Channels
			copy(out.Pix[di:di+frame.Channels], f.Pix[si:si+frame.Channels])
		}
	}
	return out
}

// Unpad crops a field computed on a padded input back to the unpadded size
func (p Padder) Unpad(f Field) Field {
	if p.IsZero() {
		return f
	}
	w := f.Width - p.Left - p.Right
	h := f.Height - p.Top - p.Bottom
	out := NewField(w, h)
	for y := 0; y < h; y++ {
		src := f.Data[((y+p.Top)*f.Width+p.Left)*2:]
		copy(out.Data[y*w*2:(y+1)*w*2], src[:w*2])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
