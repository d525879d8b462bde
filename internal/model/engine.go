package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrModelUnavailable = errors.New("model is not loaded")
	ErrShapeMismatch    = errors.New("input shape does not match model")
	ErrOutputSize       = errors.New("unexpected model output size")
	ErrInferenceTimeout = errors.New("inference timed out")
)

// Status is the availability of the model, fixed once Load returns.
type Status int

const (
	StatusUnloaded Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Classifier runs a single forward pass. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Run(input Tensor) ([]float32, error)
	Close()
}

type Loader func(metadata Metadata) (Classifier, error)

// Engine owns the loaded classifier. Load must complete before the engine is
// shared between goroutines; afterwards it is read-only.
type Engine struct {
	Metadata Metadata

	status     Status
	loadErr    error
	classifier Classifier
	timeout    time.Duration
}

// NewEngine creates an unloaded engine. A zero timeout disables the inference
// deadline.
func NewEngine(metadata Metadata, timeout time.Duration) *Engine {
	return &Engine{
		Metadata: metadata,
		timeout:  timeout,
	}
}

// Load runs the loader once. A failure leaves the engine in StatusFailed
// instead of aborting, so callers can keep serving and report the model as
// unavailable.
func (e *Engine) Load(loader Loader) error {
	if e.status != StatusUnloaded {
		return fmt.Errorf("model already loaded with status %s", e.status)
	}

	classifier, err := loader(e.Metadata)
	if err != nil {
		e.status = StatusFailed
		e.loadErr = err
		return err
	}

	e.classifier = classifier
	e.status = StatusReady
	return nil
}

func (e *Engine) Status() Status {
	return e.status
}

// Available returns nil when the model can serve predictions.
func (e *Engine) Available() error {
	switch e.status {
	case StatusReady:
		return nil
	case StatusFailed:
		return fmt.Errorf("%w: %v", ErrModelUnavailable, e.loadErr)
	default:
		return ErrModelUnavailable
	}
}

// Predict returns one score per class in Metadata.Classes order. The scores
// are whatever the model emits; normalization is not enforced here.
func (e *Engine) Predict(ctx context.Context, input Tensor) ([]float32, error) {
	if err := e.Available(); err != nil {
		return nil, err
	}

	if !shapesEqual(input.Shape, e.Metadata.InputShape) {
		return nil, fmt.Errorf("%w: expected %v, got %v", ErrShapeMismatch, e.Metadata.InputShape, input.Shape)
	}
	if int64(len(input.Data)) != input.Elements() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, input.Elements(), len(input.Data))
	}

	output, err := e.run(ctx, input)
	if err != nil {
		return nil, err
	}

	if len(output) != len(e.Metadata.Classes) {
		return nil, fmt.Errorf("%w: got %d values for %d classes", ErrOutputSize, len(output), len(e.Metadata.Classes))
	}
	return output, nil
}

type runResult struct {
	output []float32
	err    error
}

// run abandons a forward pass that outlives the deadline. The pass itself
// cannot be interrupted and finishes in the background.
func (e *Engine) run(ctx context.Context, input Tensor) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan runResult, 1)
	go func() {
		output, err := e.classifier.Run(input)
		done <- runResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("inference failed: %w", res.err)
		}
		return res.output, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrInferenceTimeout, e.timeout)
		}
		return nil, ctx.Err()
	}
}

func (e *Engine) Close() {
	if e.classifier != nil {
		e.classifier.Close()
	}
}
