// Package mocks provides mock implementations for testing
package mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
	"prismflow/internal/style"
)

// MockCommandExecutor provides a mock command executor for testing
type MockCommandExecutor struct {
	Responses map[string][]byte
	Errors    map[string]error
	CallLog   []string
}

func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses: make(map[string][]byte),
		Errors:    make(map[string]error),
		CallLog:   make([]string, 0),
	}
}

func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := fmt.Sprintf("%s %s", name, strings.Join(args, " "))
	m.CallLog = append(m.CallLog, cmd)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Check for command-specific errors first
	if err, exists := m.Errors[cmd]; exists {
		return nil, err
	}

	// Check for general command errors (e.g., "ffmpeg")
	if err, exists := m.Errors[name]; exists {
		return nil, err
	}

	if response, exists := m.Responses[cmd]; exists {
		return response, nil
	}

	return []byte("mock response"), nil
}

// MockUserInteraction provides a mock user interaction for testing
type MockUserInteraction struct {
	StringResponses  map[string]string
	SelectResponses  map[string]string
	ConfirmResponses map[string]bool
	Errors           map[string]error
	CallLog          []string
}

func NewMockUserInteraction() *MockUserInteraction {
	return &MockUserInteraction{
		StringResponses:  make(map[string]string),
		SelectResponses:  make(map[string]string),
		ConfirmResponses: make(map[string]bool),
		Errors:           make(map[string]error),
		CallLog:          make([]string, 0),
	}
}

func (m *MockUserInteraction) PromptForString(label string, defaultValue string, validator func(string) error) (string, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("PromptForString: %s (default: %s)", label, defaultValue))

	if err, exists := m.Errors[label]; exists {
		return "", err
	}

	if response, exists := m.StringResponses[label]; exists {
		if validator != nil {
			if err := validator(response); err != nil {
				return "", err
			}
		}
		return response, nil
	}

	return defaultValue, nil
}

func (m *MockUserInteraction) PromptForSelect(label string, items []string) (string, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("PromptForSelect: %s", label))

	if err, exists := m.Errors[label]; exists {
		return "", err
	}

	if response, exists := m.SelectResponses[label]; exists {
		return response, nil
	}

	if len(items) > 0 {
		return items[0], nil
	}

	return "", errors.New("no items provided")
}

func (m *MockUserInteraction) PromptForConfirm(label string) (bool, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("PromptForConfirm: %s", label))

	if err, exists := m.Errors[label]; exists {
		return false, err
	}

	if response, exists := m.ConfirmResponses[label]; exists {
		return response, nil
	}

	return false, nil
}

// MockTransformer records every request. By default it returns the request
// image with Offset added to each sample (saturating), so tests can tell
// styled frames from raw ones.
type MockTransformer struct {
	mu       sync.Mutex
	Requests []style.Request
	Offset   uint8
	// FailAt makes the call with this zero-based index return Err
	FailAt int
	Err    error
	// Fn overrides the default behaviour when set
	Fn func(req style.Request) (frame.Frame, error)
}

func NewMockTransformer(offset uint8) *MockTransformer {
	return &MockTransformer{Offset: offset, FailAt: -1}
}

func (m *MockTransformer) Transform(ctx context.Context, req style.Request) (frame.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.Requests)
	m.Requests = append(m.Requests, req)

	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if call == m.FailAt {
		if m.Err != nil {
			return frame.Frame{}, m.Err
		}
		return frame.Frame{}, errors.New("mock transformer failure")
	}
	if m.Fn != nil {
		return m.Fn(req)
	}

	out := req.Image.Clone()
	for i, v := range out.Pix {
		if int(v)+int(m.Offset) > 255 {
			out.Pix[i] = 255
		} else {
			out.Pix[i] = v + m.Offset
		}
	}
	return out, nil
}

// Modes returns the mode of every recorded request in call order
func (m *MockTransformer) Modes() []style.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	modes := make([]style.Mode, len(m.Requests))
	for i, r := range m.Requests {
		modes[i] = r.Mode
	}
	return modes
}

// MockFlowEstimator returns zero flow unless configured otherwise
type MockFlowEstimator struct {
	mu    sync.Mutex
	Calls int
	// Errors maps a zero-based call index to the error it returns
	Errors map[int]error
	// PanicAt makes the call with this index panic
	PanicAt int
	// Result overrides the zero-flow result when set
	Result func(a, b frame.Frame) *flow.Result
	// Released counts Release calls
	Released   int
	ReleaseErr error
}

func NewMockFlowEstimator() *MockFlowEstimator {
	return &MockFlowEstimator{Errors: make(map[int]error), PanicAt: -1}
}

func (m *MockFlowEstimator) Estimate(ctx context.Context, a, b frame.Frame) (*flow.Result, error) {
	m.mu.Lock()
	call := m.Calls
	m.Calls++
	m.mu.Unlock()

	if call == m.PanicAt {
		panic("mock flow estimator panic")
	}
	if err, exists := m.Errors[call]; exists {
		return nil, err
	}
	if m.Result != nil {
		return m.Result(a, b), nil
	}
	zero := flow.NewField(a.Width, a.Height)
	return &flow.Result{
		Forward:     zero,
		Backward:    zero.Clone(),
		Consistency: frame.NewMask(a.Width, a.Height),
	}, nil
}

func (m *MockFlowEstimator) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released++
	return m.ReleaseErr
}

// MemorySource yields a fixed list of frames then io.EOF
type MemorySource struct {
	Frames []frame.Frame
	pos    int
	// ErrAt makes Next return Err at this index instead of a frame
	ErrAt  int
	Err    error
	Closed bool
}

func NewMemorySource(frames ...frame.Frame) *MemorySource {
	return &MemorySource{Frames: frames, ErrAt: -1}
}

func (m *MemorySource) Next() (frame.Frame, error) {
	if m.pos == m.ErrAt {
		m.pos++
		return frame.Frame{}, m.Err
	}
	if m.pos >= len(m.Frames) {
		return frame.Frame{}, io.EOF
	}
	f := m.Frames[m.pos]
	m.pos++
	return f, nil
}

func (m *MemorySource) Close() error {
	m.Closed = true
	return nil
}

// MemorySink collects written frames
type MemorySink struct {
	Frames   []frame.Frame
	Closed   bool
	WriteErr error
	CloseErr error
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) WriteFrame(f frame.Frame) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Frames = append(m.Frames, f.Clone())
	return nil
}

func (m *MemorySink) Close() error {
	m.Closed = true
	return m.CloseErr
}
