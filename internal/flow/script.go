// internal/flow/script.go
package flow

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"prismflow/internal/frame"
)

// ScriptConfig describes a Python RAFT worker process
type ScriptConfig struct {
	PythonPath  string
	ScriptPath  string
	WeightsPath string
	Device      string // cuda, mps or cpu
	Iterations  int    // RAFT refinement iterations (20)
}

// request is the JSON header written before each frame pair
type request struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Iters  int `json:"iters"`
}

// response is the JSON header read before each flow payload
type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ScriptModel keeps one Python worker alive and exchanges frames with it
// over stdin/stdout. The worker is started by ScriptLoader and stopped by
// Close, which also frees its device memory.
type ScriptModel struct {
	config ScriptConfig
	logger *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

// ScriptLoader returns a Loader that starts the worker process
func ScriptLoader(config ScriptConfig, logger *zap.Logger) Loader {
	return func(ctx context.Context) (Model, error) {
		return StartScriptModel(config, logger)
	}
}

// StartScriptModel launches the worker
func StartScriptModel(config ScriptConfig, logger *zap.Logger) (*ScriptModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PythonPath == "" || config.ScriptPath == "" {
		return nil, fmt.Errorf("python and script paths are required for the flow worker")
	}
	if config.Iterations <= 0 {
		config.Iterations = 20
	}

	args := []string{config.ScriptPath, "--serve", "--model", config.WeightsPath}
	if config.Device != "" {
		args = append(args, "--device", config.Device)
	}
	cmd := exec.Command(config.PythonPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start flow worker: %v", err)
	}

	logger.Info("flow worker started",
		zap.String("script", config.ScriptPath),
		zap.String("device", config.Device),
		zap.Int("pid", cmd.Process.Pid))

	return &ScriptModel{
		config: config,
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// Infer sends one frame pair and reads back the a->b flow
func (m *ScriptModel) Infer(ctx context.Context, a, b frame.Frame) (Field, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return Field{}, fmt.Errorf("flow worker is closed")
	}
	if err := ctx.Err(); err != nil {
		return Field{}, err
	}

	return exchange(m.stdin, m.stdout, a, b, m.config.Iterations)
}

// exchange runs one request/response round of the worker protocol
func exchange(w io.Writer, r *bufio.Reader, a, b frame.Frame, iters int) (Field, error) {
	header, err := json.Marshal(request{Width: a.Width, Height: a.Height, Iters: iters})
	if err != nil {
		return Field{}, err
	}
	header = append(header, '\n')
	if _, err := w.Write(header); err != nil {
		return Field{}, fmt.Errorf("failed to send request: %v", err)
	}
	if _, err := w.Write(a.Pix); err != nil {
		return Field{}, fmt.Errorf("failed to send first frame: %v", err)
	}
	if _, err := w.Write(b.Pix); err != nil {
		return Field{}, fmt.Errorf("failed to send second frame: %v", err)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return Field{}, fmt.Errorf("failed to read response: %v", err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Field{}, fmt.Errorf("invalid worker response %q: %v", string(line), err)
	}
	if !resp.OK {
		return Field{}, fmt.Errorf("worker error: %s", resp.Error)
	}

	return readField(r, a.Width, a.Height)
}

func readField(r io.Reader, width, height int) (Field, error) {
	buf := make([]byte, width*height*2*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Field{}, fmt.Errorf("failed to read flow payload: %v", err)
	}
	f := NewField(width, height)
	for i := range f.Data {
		f.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return f, nil
}

// Close stops the worker process
func (m *ScriptModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd == nil {
		return nil
	}
	m.stdin.Close()

	var err error
	if m.cmd.Process != nil {
		if killErr := m.cmd.Process.Kill(); killErr != nil {
			err = fmt.Errorf("failed to stop flow worker %d: %v", m.cmd.Process.Pid, killErr)
		}
	}
	m.cmd.Wait()
	m.cmd = nil
	m.logger.Info("flow worker stopped")
	return err
}
