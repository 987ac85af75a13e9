package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("entity not found")
	ErrValidation      = errors.New("validation failed")
	ErrTransientEffect = errors.New("transient effect failure")
	ErrVerification    = errors.New("verification failed")
	ErrConflict        = errors.New("version conflict")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
