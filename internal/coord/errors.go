package coord

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroExtent reports bounds with no area (or inverted Y) or non-finite values.
	ErrZeroExtent = errors.New("bounds have zero extent")
	// ErrInvalidTarget reports a non-positive pixel width or height.
	ErrInvalidTarget = errors.New("target size must be positive")
	// ErrUnsupportedCRS reports a CRS identifier with no known transform.
	ErrUnsupportedCRS = errors.New("unsupported CRS")
	// ErrTransform reports a transform that produced non-finite coordinates.
	ErrTransform = errors.New("CRS transform failed")
)

// ConfigurationError is returned when a projection cannot be built for a
// request. It is fatal for that request and raised before any rendering.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}
