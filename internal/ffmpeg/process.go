// internal/ffmpeg/process.go
package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"prismflow/internal/frame"
)

// EncodeOptions holds the H.264 settings for the output video
type EncodeOptions struct {
	Codec  string
	PixFmt string
	Preset string
	CRF    int
}

// DefaultEncodeOptions returns widely playable settings
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Codec:  "libx264",
		PixFmt: "yuv420p",
		Preset: "medium",
		CRF:    18,
	}
}

func sizeArg(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// DecodeStream builds the ffmpeg graph that decodes the first video stream
// of inputPath to rgb24 at width x height on stdout
func DecodeStream(inputPath string, width, height int) *ffmpeg.Stream {
	return ffmpeg.
		Input(inputPath).
		Output("pipe:", ffmpeg.KwArgs{
			"map":     "0:v:0",
			"f":       "rawvideo",
			"pix_fmt": "rgb24",
			"s":       sizeArg(width, height),
		})
}

// EncodeStream builds the ffmpeg graph that encodes rgb24 frames from
// stdin into outputPath
func EncodeStream(outputPath string, width, height int, fps float64, opts EncodeOptions) *ffmpeg.Stream {
	return ffmpeg.
		Input("pipe:", ffmpeg.KwArgs{
			"f":         "rawvideo",
			"pix_fmt":   "rgb24",
			"s":         sizeArg(width, height),
			"framerate": strconv.FormatFloat(fps, 'f', -1, 64),
		}).
		Output(outputPath, ffmpeg.KwArgs{
			"c:v":      opts.Codec,
			"pix_fmt":  opts.PixFmt,
			"preset":   opts.Preset,
			"crf":      opts.CRF,
			"movflags": "+faststart",
		}).
		OverWriteOutput()
}

// ProcessSource decodes a video through an ffmpeg child process
type ProcessSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *logBuffer
	reader *RawReader
	done   bool
}

// OpenSource starts decoding inputPath at the given processing size
func OpenSource(inputPath string, width, height int) (*ProcessSource, error) {
	cmd := DecodeStream(inputPath, width, height).Compile()
	stderr := &logBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg output: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %v", err)
	}
	return &ProcessSource{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		reader: NewRawReader(stdout, width, height),
	}, nil
}

// Next returns the next decoded frame or io.EOF once ffmpeg exits cleanly
func (s *ProcessSource) Next() (frame.Frame, error) {
	if s.done {
		return frame.Frame{}, io.EOF
	}
	f, err := s.reader.Next()
	if errors.Is(err, io.EOF) {
		s.done = true
		if waitErr := s.cmd.Wait(); waitErr != nil {
			return frame.Frame{}, fmt.Errorf("ffmpeg decode failed: %v\nOutput: %s", waitErr, tail(s.stderr.String()))
		}
		return frame.Frame{}, io.EOF
	}
	if err != nil {
		return frame.Frame{}, fmt.Errorf("ffmpeg decode failed: %v\nOutput: %s", err, tail(s.stderr.String()))
	}
	return f, nil
}

// Close stops ffmpeg if it is still running
func (s *ProcessSource) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// ProcessSink encodes frames through an ffmpeg child process
type ProcessSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *logBuffer
	writer *RawWriter
	closed bool
}

// OpenSink starts an encoder writing outputPath
func OpenSink(outputPath string, width, height int, fps float64, opts EncodeOptions) (*ProcessSink, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %v", fps)
	}
	cmd := EncodeStream(outputPath, width, height, fps, opts).Compile()
	stderr := &logBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg input: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %v", err)
	}
	return &ProcessSink{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		writer: NewRawWriter(stdin, width, height),
	}, nil
}

// WriteFrame sends one frame to the encoder
func (s *ProcessSink) WriteFrame(f frame.Frame) error {
	if s.closed {
		return fmt.Errorf("write to closed encoder")
	}
	if err := s.writer.WriteFrame(f); err != nil {
		return fmt.Errorf("ffmpeg encode failed: %v\nOutput: %s", err, tail(s.stderr.String()))
	}
	return nil
}

// Close flushes the encoder and waits for the container to be finalized
func (s *ProcessSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode failed: %v\nOutput: %s", err, tail(s.stderr.String()))
	}
	return nil
}

// logBuffer collects ffmpeg's stderr. os/exec copies into it from its own
// goroutine while the process runs, so reads and writes share a lock.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// tail keeps the last lines of ffmpeg's log, where the error usually is
func tail(log string) string {
	lines := strings.Split(strings.TrimSpace(log), "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return strings.Join(lines, "\n")
}
