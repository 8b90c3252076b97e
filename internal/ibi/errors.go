package ibi

import (
	"errors"
	"fmt"
)

// Domain errors for optimization operations.
var (
	// ErrConfig indicates an invalid value: a bad alpha, bin count,
	// smoothing setting or an ambiguous interaction definition.
	ErrConfig = errors.New("msibi: invalid configuration")

	// ErrUsage indicates an operation that is not valid for the receiver's
	// current mode, such as smoothing a static interaction.
	ErrUsage = errors.New("msibi: invalid operation for interaction mode")

	// ErrUnattached indicates a state-dependent operation on a state that was
	// never attached to the interaction.
	ErrUnattached = errors.New("msibi: state not attached")

	// ErrEngine indicates the external simulation engine failed.
	ErrEngine = errors.New("msibi: simulation engine failed")

	// ErrDimensionMismatch indicates distributions or potentials of different lengths.
	ErrDimensionMismatch = errors.New("msibi: dimension mismatch")

	// ErrZeroDistribution indicates both compared distributions are identically zero.
	ErrZeroDistribution = errors.New("msibi: both distributions are zero")
)

// Configf returns an ErrConfig wrapped with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Usagef returns an ErrUsage wrapped with a formatted message.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// IterationError wraps an error with optimization context.
type IterationError struct {
	Iteration int
	State     string
	Wrapped   error
}

func (e *IterationError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("iteration %d: %v", e.Iteration, e.Wrapped)
	}
	return fmt.Sprintf("iteration %d (state %s): %v", e.Iteration, e.State, e.Wrapped)
}

func (e *IterationError) Unwrap() error {
	return e.Wrapped
}
