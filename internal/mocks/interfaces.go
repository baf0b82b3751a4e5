// Package mocks provides interfaces and mock implementations for testing
package mocks

import (
	"context"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
	"prismflow/internal/style"
)

// CommandExecutorInterface abstracts command execution for testing
type CommandExecutorInterface interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// UserInteractionInterface abstracts user prompts for testing
type UserInteractionInterface interface {
	PromptForString(label string, defaultValue string, validator func(string) error) (string, error)
	PromptForSelect(label string, items []string) (string, error)
	PromptForConfirm(label string) (bool, error)
}

// FlowEstimatorInterface abstracts bidirectional optical flow
type FlowEstimatorInterface interface {
	Estimate(ctx context.Context, a, b frame.Frame) (*flow.Result, error)
	Release() error
}

// FrameSourceInterface abstracts an ordered stream of decoded frames
type FrameSourceInterface interface {
	Next() (frame.Frame, error)
	Close() error
}

// VideoSinkInterface abstracts an encoder accepting frames in order
type VideoSinkInterface interface {
	WriteFrame(f frame.Frame) error
	Close() error
}

var (
	_ CommandExecutorInterface = (*MockCommandExecutor)(nil)
	_ UserInteractionInterface = (*MockUserInteraction)(nil)
	_ FlowEstimatorInterface   = (*MockFlowEstimator)(nil)
	_ FrameSourceInterface     = (*MemorySource)(nil)
	_ VideoSinkInterface       = (*MemorySink)(nil)
	_ style.Transformer        = (*MockTransformer)(nil)
)
