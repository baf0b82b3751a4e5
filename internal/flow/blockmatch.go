// internal/flow/blockmatch.go
package flow

import (
	"context"

	"prismflow/internal/frame"
)

// BlockMatcher is a CPU flow model based on exhaustive block matching.
// It is far less accurate than a learned model but needs no weights, so it
// serves as a fallback backend and as a deterministic model in tests.
type BlockMatcher struct {
	BlockSize    int
	SearchRadius int
}

// NewBlockMatcher returns a matcher with sane defaults for zero values
func NewBlockMatcher(blockSize, searchRadius int) *BlockMatcher {
	if blockSize <= 0 {
		blockSize = 8
	}
	if searchRadius < 0 {
		searchRadius = 0
	}
	return &BlockMatcher{BlockSize: blockSize, SearchRadius: searchRadius}
}

// BlockMatchLoader returns a Loader for a block matcher
func BlockMatchLoader(blockSize, searchRadius int) Loader {
	return func(ctx context.Context) (Model, error) {
		return NewBlockMatcher(blockSize, searchRadius), nil
	}
}

// Infer finds, for each block of a, the displacement into b with the
// lowest sum of absolute luma differences. Ties prefer shorter vectors,
// so identical frames always yield zero flow.
func (m *BlockMatcher) Infer(ctx context.Context, a, b frame.Frame) (Field, error) {
	la := luma(a)
	lb := luma(b)
	w, h := a.Width, a.Height
	out := NewField(w, h)
	r := m.SearchRadius

	for by := 0; by < h; by += m.BlockSize {
		if err := ctx.Err(); err != nil {
			return Field{}, err
		}
		bh := min(m.BlockSize, h-by)
		for bx := 0; bx < w; bx += m.BlockSize {
			bw := min(m.BlockSize, w-bx)

			bestDX, bestDY := 0, 0
			best := sad(la, lb, w, h, bx, by, bw, bh, 0, 0)
			bestLen := 0
			for dy := -r; dy <= r && best > 0; dy++ {
				for dx := -r; dx <= r; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					cost := sad(la, lb, w, h, bx, by, bw, bh, dx, dy)
					length := dx*dx + dy*dy
					if cost < best || (cost == best && length < bestLen) {
						best, bestDX, bestDY, bestLen = cost, dx, dy, length
					}
				}
			}

			for y := by; y < by+bh; y++ {
				for x := bx; x < bx+bw; x++ {
					out.Set(x, y, float32(bestDX), float32(bestDY))
				}
			}
		}
	}
	return out, nil
}

// Close is a no-op; the matcher holds no resources
func (m *BlockMatcher) Close() error { return nil }

func sad(a, b []int32, w, h, bx, by, bw, bh, dx, dy int) int64 {
	var total int64
	for y := by; y < by+bh; y++ {
		sy := clampInt(y+dy, 0, h-1)
		for x := bx; x < bx+bw; x++ {
			sx := clampInt(x+dx, 0, w-1)
			d := a[y*w+x] - b[sy*w+sx]
			if d < 0 {
				d = -d
			}
			total += int64(d)
		}
	}
	return total
}

// luma converts RGB to integer Rec.601 luma scaled by 1000
func luma(f frame.Frame) []int32 {
	out := make([]int32, f.Width*f.Height)
	for i := range out {
		p := f.Pix[i*3:]
		out[i] = 299*int32(p[0]) + 587*int32(p[1]) + 114*int32(p[2])
	}
	return out
}
