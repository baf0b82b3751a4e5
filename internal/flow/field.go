// internal/flow/field.go
package flow

import (
	"fmt"
	"math"

	"prismflow/internal/frame"
)

// Field is a dense optical flow field. Data is interleaved (dx, dy) per
// pixel in row-major order, in pixel units unless it has been normalized.
type Field struct {
	Width  int
	Height int
	Data   []float32
}

// NewField allocates a zero flow field
func NewField(width, height int) Field {
	return Field{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*2),
	}
}

// At returns the displacement at (x, y)
func (f Field) At(x, y int) (dx, dy float32) {
	i := (y*f.Width + x) * 2
	return f.Data[i], f.Data[i+1]
}

// Set stores the displacement at (x, y)
func (f Field) Set(x, y int, dx, dy float32) {
	i := (y*f.Width + x) * 2
	f.Data[i] = dx
	f.Data[i+1] = dy
}

// Validate checks that the buffer matches the declared size
func (f Field) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid flow size %dx%d", f.Width, f.Height)
	}
	if len(f.Data) != f.Width*f.Height*2 {
		return fmt.Errorf("flow buffer has %d values, want %d", len(f.Data), f.Width*f.Height*2)
	}
	return nil
}

// Clone returns a deep copy
func (f Field) Clone() Field {
	data := make([]float32, len(f.Data))
	copy(data, f.Data)
	return Field{Width: f.Width, Height: f.Height, Data: data}
}

// Add returns the element-wise sum of two fields of the same size
func (f Field) Add(o Field) (Field, error) {
	if f.Width != o.Width || f.Height != o.Height {
		return Field{}, fmt.Errorf("flow size mismatch: %dx%d vs %dx%d", f.Width, f.Height, o.Width, o.Height)
	}
	out := NewField(f.Width, f.Height)
	for i := range f.Data {
		out.Data[i] = f.Data[i] + o.Data[i]
	}
	return out, nil
}

// Norm returns the per-pixel L2 magnitude of the displacement
func (f Field) Norm() frame.Mask {
	m := frame.NewMask(f.Width, f.Height)
	for i := range m.Values {
		dx := float64(f.Data[i*2])
		dy := float64(f.Data[i*2+1])
		m.Values[i] = float32(math.Sqrt(dx*dx + dy*dy))
	}
	return m
}

// Scale multiplies the x and y components independently
func (f Field) Scale(sx, sy float32) Field {
	out := NewField(f.Width, f.Height)
	for i := 0; i < len(f.Data); i += 2 {
		out.Data[i] = f.Data[i] * sx
		out.Data[i+1] = f.Data[i+1] * sy
	}
	return out
}

// Normalize divides displacements by the given resolution, putting
// magnitudes on a unit-square scale (x by width, y by height).
func (f Field) Normalize(width, height int) Field {
	return f.Scale(1/float32(width), 1/float32(height))
}

// Denormalize is the inverse of Normalize for the same resolution
func (f Field) Denormalize(width, height int) Field {
	return f.Scale(float32(width), float32(height))
}

// Resize resamples the field to width x height with bilinear interpolation
// on half-pixel centres and replicated borders. Vector magnitudes are not
// changed; use Scale for that.
func (f Field) Resize(width, height int) Field {
	if f.Width == width && f.Height == height {
		return f.Clone()
	}
	out := NewField(width, height)
	xs := frame.LinearTaps(f.Width, width)
	ys := frame.LinearTaps(f.Height, height)

	for y, ty := range ys {
		row0 := ty.I0 * f.Width
		row1 := ty.I1 * f.Width
		for x, tx := range xs {
			for c := 0; c < 2; c++ {
				v00 := f.Data[(row0+tx.I0)*2+c]
				v01 := f.Data[(row0+tx.I1)*2+c]
				v10 := f.Data[(row1+tx.I0)*2+c]
				v11 := f.Data[(row1+tx.I1)*2+c]
				top := v00 + (v01-v00)*tx.W
				bottom := v10 + (v11-v10)*tx.W
				out.Data[(y*width+x)*2+c] = top + (bottom-top)*ty.W
			}
		}
	}
	return out
}
