package gifmaker

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDecode       = errors.New("frame decode failed")
	ErrSegmentation = errors.New("background removal failed")
	ErrCrop         = errors.New("aspect crop failed")
	ErrEncoding     = errors.New("gif encoding failed")
	ErrCancelled    = errors.New("run cancelled")
)

// InputError rejects a request before any stage runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx)
	default:
		return nil
	}
}
