// internal/flow/estimator.go
package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"prismflow/internal/frame"
)

var (
	// ErrModelUnavailable means the flow model could not be constructed
	// (missing weights, loader failure). It stays set until Release.
	ErrModelUnavailable = errors.New("optical flow model unavailable")

	// ErrEstimationFailed wraps runtime failures of a single estimate call
	ErrEstimationFailed = errors.New("optical flow estimation failed")
)

// Model is a dense optical flow network treated as a black box. Infer
// returns the flow from a to b at the resolution of its inputs.
type Model interface {
	Infer(ctx context.Context, a, b frame.Frame) (Field, error)
	Close() error
}

// Loader constructs a Model. It is called at most once per open cycle.
type Loader func(ctx context.Context) (Model, error)

// Result is the bidirectional flow between two frames
type Result struct {
	Forward     Field
	Backward    Field
	Consistency frame.Mask
}

// EstimatorConfig holds the preprocessing constraints of the model
type EstimatorConfig struct {
	WeightsPath  string // checked before loading when set
	SizeMultiple int    // input dimensions are rounded down to this (16)
	PadDivisor   int    // inputs are padded up to a multiple of this (8)
}

// DefaultEstimatorConfig returns the RAFT-compatible defaults
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		SizeMultiple: 16,
		PadDivisor:   8,
	}
}

// Estimator adapts a flow Model to the forward/backward contract and owns
// its lifecycle. The model is loaded lazily, reused for every frame pair,
// and freed by Release.
type Estimator struct {
	config EstimatorConfig
	loader Loader
	logger *zap.Logger

	mu      sync.Mutex
	model   Model
	loadErr error
}

// NewEstimator creates an estimator; nothing is loaded until first use
func NewEstimator(config EstimatorConfig, loader Loader, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SizeMultiple <= 0 {
		config.SizeMultiple = 1
	}
	return &Estimator{config: config, loader: loader, logger: logger}
}

// Open loads the model if it is not loaded yet
func (e *Estimator) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.openLocked(ctx)
	return err
}

func (e *Estimator) openLocked(ctx context.Context) (Model, error) {
	if e.model != nil {
		return e.model, nil
	}
	if e.loadErr != nil {
		return nil, e.loadErr
	}

	if e.config.WeightsPath != "" {
		if _, err := os.Stat(e.config.WeightsPath); err != nil {
			e.loadErr = fmt.Errorf("%w: weights not found at %s", ErrModelUnavailable, e.config.WeightsPath)
			e.logger.Warn("flow weights missing", zap.String("path", e.config.WeightsPath))
			return nil, e.loadErr
		}
	}
	if e.loader == nil {
		e.loadErr = fmt.Errorf("%w: no loader configured", ErrModelUnavailable)
		return nil, e.loadErr
	}

	model, err := e.loader(ctx)
	if err != nil {
		e.loadErr = fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		e.logger.Warn("flow model failed to load", zap.Error(err))
		return nil, e.loadErr
	}
	e.logger.Info("flow model loaded")
	e.model = model
	return model, nil
}

// Estimate computes forward (a->b) and backward (b->a) flow at the
// resolution of a, plus the forward-backward consistency norm. A nil
// result is always accompanied by an error wrapping ErrModelUnavailable or
// ErrEstimationFailed.
func (e *Estimator) Estimate(ctx context.Context, a, b frame.Frame) (*Result, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
	}
	if !a.SameSize(b) {
		return nil, fmt.Errorf("%w: frame size mismatch %dx%d vs %dx%d",
			ErrEstimationFailed, a.Width, a.Height, b.Width, b.Height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	model, err := e.openLocked(ctx)
	if err != nil {
		return nil, err
	}

	m := e.config.SizeMultiple
	w := a.Width / m * m
	h := a.Height / m * m
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: frame %dx%d smaller than %d pixels", ErrEstimationFailed, a.Width, a.Height, m)
	}

	ra := a.Resize(w, h)
	rb := b.Resize(w, h)
	padder := NewPadder(w, h, e.config.PadDivisor)
	pa := padder.Pad(ra)
	pb := padder.Pad(rb)

	forward, err := e.infer(ctx, model, pa, pb, padder)
	if err != nil {
		return nil, err
	}
	backward, err := e.infer(ctx, model, pb, pa, padder)
	if err != nil {
		return nil, err
	}

	sx := float32(a.Width) / float32(w)
	sy := float32(a.Height) / float32(h)
	forward = forward.Resize(a.Width, a.Height).Scale(sx, sy)
	backward = backward.Resize(a.Width, a.Height).Scale(sx, sy)

	sum, err := forward.Add(backward)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
	}

	return &Result{
		Forward:     forward,
		Backward:    backward,
		Consistency: sum.Norm(),
	}, nil
}

func (e *Estimator) infer(ctx context.Context, model Model, a, b frame.Frame, padder Padder) (Field, error) {
	out, err := model.Infer(ctx, a, b)
	if err != nil {
		return Field{}, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
	}
	if out.Width != a.Width || out.Height != a.Height || out.Validate() != nil {
		return Field{}, fmt.Errorf("%w: model returned %dx%d flow for %dx%d input",
			ErrEstimationFailed, out.Width, out.Height, a.Width, a.Height)
	}
	return padder.Unpad(out), nil
}

// Loaded reports whether a model handle is currently held
func (e *Estimator) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// Release frees the model and clears any sticky load failure. It is safe
// to call more than once.
func (e *Estimator) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loadErr = nil
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	if err != nil {
		return fmt.Errorf("failed to release flow model: %w", err)
	}
	e.logger.Info("flow model released")
	return nil
}
