// internal/ffmpeg/pngdir.go
package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"

	"prismflow/internal/frame"
)

// PNGDirSink writes each frame as a numbered PNG in a directory
type PNGDirSink struct {
	Dir     string
	Pattern string // printf pattern for the zero-based index
	count   int
}

// NewPNGDirSink creates dir if needed and names frames %05d.png
func NewPNGDirSink(dir string) (*PNGDirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %v", err)
	}
	return &PNGDirSink{Dir: dir, Pattern: "%05d.png"}, nil
}

// WriteFrame writes the next frame file
func (s *PNGDirSink) WriteFrame(f frame.Frame) error {
	path := filepath.Join(s.Dir, fmt.Sprintf(s.Pattern, s.count))
	if err := f.WritePNG(path); err != nil {
		return err
	}
	s.count++
	return nil
}

// Count is the number of frames written
func (s *PNGDirSink) Count() int {
	return s.count
}

// Close is a no-op; every frame is flushed on write
func (s *PNGDirSink) Close() error {
	return nil
}
