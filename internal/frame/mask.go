// internal/frame/mask.go
package frame

import (
	"fmt"
	"math"
)

// Mask is a per-pixel scalar field. When combined with a Frame the value
// is broadcast to all three channels.
type Mask struct {
	Width  int
	Height int
	Values []float32
}

// NewMask allocates a zero mask
func NewMask(width, height int) Mask {
	return Mask{
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

// FilledMask allocates a mask with every value set to v
func FilledMask(width, height int, v float32) Mask {
	m := NewMask(width, height)
	for i := range m.Values {
		m.Values[i] = v
	}
	return m
}

// At returns the value at (x, y)
func (m Mask) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Validate checks that the value buffer matches the declared size
func (m Mask) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid mask size %dx%d", m.Width, m.Height)
	}
	if len(m.Values) != m.Width*m.Height {
		return fmt.Errorf("mask buffer has %d values, want %d", len(m.Values), m.Width*m.Height)
	}
	return nil
}

// Mean returns the average value, which equals the mean of the 3-channel broadcast
func (m Mask) Mean() float64 {
	if len(m.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.Values {
		sum += float64(v)
	}
	return sum / float64(len(m.Values))
}

// Max returns the largest value
func (m Mask) Max() float32 {
	if len(m.Values) == 0 {
		return 0
	}
	best := m.Values[0]
	for _, v := range m.Values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// Clamp returns a copy with every value limited to [lo, hi]
func (m Mask) Clamp(lo, hi float32) Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Values {
		out.Values[i] = clamp32(v, lo, hi)
	}
	return out
}

// Scale returns a copy with every value multiplied by s
func (m Mask) Scale(s float32) Mask {
	out := NewMask(m.Width, m.Height)
	for i, v := range m.Values {
		out.Values[i] = v * s
	}
	return out
}

// Resize resamples the mask with bilinear interpolation on half-pixel
// centres and replicated borders
func (m Mask) Resize(width, height int) Mask {
	out := NewMask(width, height)
	if m.Width == width && m.Height == height {
		copy(out.Values, m.Values)
		return out
	}
	xs := LinearTaps(m.Width, width)
	ys := LinearTaps(m.Height, height)
	for y, ty := range ys {
		for x, tx := range xs {
			v00 := m.Values[ty.I0*m.Width+tx.I0]
			v01 := m.Values[ty.I0*m.Width+tx.I1]
			v10 := m.Values[ty.I1*m.Width+tx.I0]
			v11 := m.Values[ty.I1*m.Width+tx.I1]
			top := v00 + (v01-v00)*tx.W
			bottom := v10 + (v11-v10)*tx.W
			out.Values[y*width+x] = top + (bottom-top)*ty.W
		}
	}
	return out
}

// Tap is one output sample of a 1-D linear resampling: the two source
// indices and the weight of the second one
type Tap struct {
	I0, I1 int
	W      float32
}

// LinearTaps computes bilinear resampling taps from src to dst samples
// using half-pixel centres and replicated borders
func LinearTaps(src, dst int) []Tap {
	taps := make([]Tap, dst)
	scale := float64(src) / float64(dst)
	for i := range taps {
		s := (float64(i)+0.5)*scale - 0.5
		i0 := int(math.Floor(s))
		w := float32(s - float64(i0))
		if i0 < 0 {
			i0, w = 0, 0
		}
		if i0 >= src-1 {
			i0, w = src-1, 0
		}
		i1 := min(i0+1, src-1)
		taps[i] = Tap{I0: i0, I1: i1, W: w}
	}
	return taps
}

// ToFrame renders the mask as a gray RGB frame using clip(v*255)
func (m Mask) ToFrame() Frame {
	f := New(m.Width, m.Height)
	for i, v := range m.Values {
		g := uint8(clamp32(v*255, 0, 255))
		f.Pix[i*3] = g
		f.Pix[i*3+1] = g
		f.Pix[i*3+2] = g
	}
	return f
}

// GaussianBlur smooths the mask with a separable kernel of the given odd
// size. A non-positive sigma is derived from the kernel size. Borders are
// reflected without repeating the edge sample twice (fedcba|abcdef).
func (m Mask) GaussianBlur(kernelSize int, sigma float64) Mask {
	if kernelSize < 1 {
		kernelSize = 1
	}
	if kernelSize%2 == 0 {
		kernelSize++
	}
	kernel := GaussianKernel(kernelSize, sigma)
	radius := kernelSize / 2

	tmp := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		row := m.Values[y*m.Width : (y+1)*m.Width]
		for x := 0; x < m.Width; x++ {
			var acc float64
			for k, w := range kernel {
				acc += w * float64(row[reflectIndex(x+k-radius, m.Width)])
			}
			tmp.Values[y*m.Width+x] = float32(acc)
		}
	}

	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			var acc float64
			for k, w := range kernel {
				acc += w * float64(tmp.Values[reflectIndex(y+k-radius, m.Height)*m.Width+x])
			}
			out.Values[y*m.Width+x] = float32(acc)
		}
	}
	return out
}

// GaussianKernel returns normalized 1-D Gaussian weights
func GaussianKernel(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*((float64(size)-1)*0.5-1) + 0.8
	}
	kernel := make([]float64, size)
	center := float64(size-1) / 2
	var sum float64
	for i := range kernel {
		d := float64(i) - center
		kernel[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		} else {
			i = 2*n - i - 1
		}
	}
	return i
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
