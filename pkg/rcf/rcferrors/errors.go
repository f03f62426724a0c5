// Package rcferrors defines the error kinds shared across the rcf packages.
package rcferrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Use errors.Is against these to classify a failure.
var (
	// ErrInvalidArgument indicates malformed caller input: wrong length,
	// non-finite values, a bad index, a negative weight, or a decay rate
	// outside [0, 1].
	ErrInvalidArgument = errors.New("rcf: invalid argument")

	// ErrInvalidState indicates an operation attempted on a tree or forest
	// that is not in a state that supports it, such as deleting from an
	// empty tree.
	ErrInvalidState = errors.New("rcf: invalid state")

	// ErrOutOfCapacity indicates the node interval manager could not
	// allocate a new slot. This should be unreachable as long as the
	// sampler's size never exceeds the tree's capacity.
	ErrOutOfCapacity = errors.New("rcf: out of capacity")
)

// InvalidArgumentf builds an ErrInvalidArgument wrapping a formatted detail.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// InvalidStatef builds an ErrInvalidState wrapping a formatted detail.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// OutOfCapacityf builds an ErrOutOfCapacity wrapping a formatted detail.
func OutOfCapacityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOutOfCapacity, fmt.Sprintf(format, args...))
}
