// internal/ffmpeg/ffmpeg.go
package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"prismflow/internal/frame"
)

func IsFFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// FrameSource yields decoded frames in presentation order. Next returns
// io.EOF after the last frame.
type FrameSource interface {
	Next() (frame.Frame, error)
	Close() error
}

// VideoSink accepts frames in order and finalizes the container on Close
type VideoSink interface {
	WriteFrame(f frame.Frame) error
	Close() error
}

// RawReader reads packed rgb24 frames of a fixed size
type RawReader struct {
	r      io.Reader
	width  int
	height int
}

// NewRawReader wraps r, which must produce width*height*3 bytes per frame
func NewRawReader(r io.Reader, width, height int) *RawReader {
	return &RawReader{r: r, width: width, height: height}
}

// Next reads one frame. A clean end of stream yields io.EOF; a stream that
// ends mid-frame is an error.
func (rr *RawReader) Next() (frame.Frame, error) {
	f := frame.New(rr.width, rr.height)
	_, err := io.ReadFull(rr.r, f.Pix)
	if errors.Is(err, io.EOF) {
		return frame.Frame{}, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return frame.Frame{}, fmt.Errorf("truncated frame: stream ended mid-frame")
	}
	if err != nil {
		return frame.Frame{}, err
	}
	return f, nil
}

// RawWriter writes packed rgb24 frames of a fixed size
type RawWriter struct {
	w      io.Writer
	width  int
	height int
}

// NewRawWriter wraps w
func NewRawWriter(w io.Writer, width, height int) *RawWriter {
	return &RawWriter{w: w, width: width, height: height}
}

// WriteFrame writes f, which must match the writer's size
func (rw *RawWriter) WriteFrame(f frame.Frame) error {
	if f.Width != rw.width || f.Height != rw.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", f.Width, f.Height, rw.width, rw.height)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	_, err := rw.w.Write(f.Pix)
	return err
}

// Tee fans every frame out to several sinks. Close closes all of them and
// reports the first error.
func Tee(sinks ...VideoSink) VideoSink {
	return teeSink(sinks)
}

type teeSink []VideoSink

func (t teeSink) WriteFrame(f frame.Frame) error {
	for _, s := range t {
		if err := s.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) Close() error {
	var first error
	for _, s := range t {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
