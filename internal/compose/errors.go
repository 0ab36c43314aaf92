package compose

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Compose after Close.
var ErrClosed = errors.New("compositor closed")

// LayerError reports a layer whose job failed, panicked or ran out of time.
// The layer contributes nothing to the composite; the other layers are kept.
type LayerError struct {
	Layer string
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %q: %v", e.Layer, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// CanvasError reports a failure while drawing onto the shared canvas. It
// aborts the whole composite.
type CanvasError struct {
	Layer string
	Err   error
}

func (e *CanvasError) Error() string {
	return fmt.Sprintf("drawing layer %q onto canvas: %v", e.Layer, e.Err)
}

func (e *CanvasError) Unwrap() error { return e.Err }

// panicError wraps a recovered panic value.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (p *panicError) Unwrap() error {
	err, _ := p.value.(error)
	return err
}
