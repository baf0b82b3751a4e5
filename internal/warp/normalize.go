// internal/warp/normalize.go
package warp

import (
	"math"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
)

// Conversions between [0,255] pixel space and the value ranges networks
// expect: frames and occlusion maps in [-1,1], flow divided by 255.

// NormalizeFrame maps pixels to [-1, 1] (v/127.5 - 1)
func NormalizeFrame(f frame.Frame) []float32 {
	out := make([]float32, len(f.Pix))
	for i, v := range f.Pix {
		out[i] = float32(v)/127.5 - 1
	}
	return out
}

// DenormalizeFrame maps [-1, 1] samples back to pixels, clipping to [0, 255]
func DenormalizeFrame(width, height int, values []float32) frame.Frame {
	f := frame.New(width, height)
	for i := range f.Pix {
		v := (float64(values[i]) + 1) * 127.5
		f.Pix[i] = uint8(clampFloat(math.Round(v), 0, 255))
	}
	return f
}

// NormalizeFlow divides displacements by 255
func NormalizeFlow(f flow.Field) flow.Field {
	return f.Scale(1.0/255, 1.0/255)
}

// DenormalizeFlow multiplies displacements by 255
func DenormalizeFlow(f flow.Field) flow.Field {
	return f.Scale(255, 255)
}

// NormalizeOcclusion maps a [0, 255] occlusion map to [-1, 1]
func NormalizeOcclusion(m frame.Mask) frame.Mask {
	out := frame.NewMask(m.Width, m.Height)
	for i, v := range m.Values {
		out.Values[i] = v/127.5 - 1
	}
	return out
}

// DenormalizeOcclusion maps a [-1, 1] occlusion map back to [0, 255]
func DenormalizeOcclusion(m frame.Mask) frame.Mask {
	out := frame.NewMask(m.Width, m.Height)
	for i, v := range m.Values {
		out.Values[i] = (v + 1) * 127.5
	}
	return out
}
