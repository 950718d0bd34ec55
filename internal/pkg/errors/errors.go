package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")
	ErrConflict = errors.New("conflict")
	ErrNotReady = errors.New("document not ready")
	ErrEngine   = errors.New("external engine error")
	ErrStore    = errors.New("store error")
	ErrInternal = errors.New("internal")
)

// EngineError describes a failed external job. It matches ErrEngine under errors.Is.
type EngineError struct {
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("external engine error: exit code %d", e.ExitCode)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Store wraps a persistence failure unless it already carries a domain meaning.
func Store(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

func IsEngine(err error) bool {
	return errors.Is(err, ErrEngine)
}
