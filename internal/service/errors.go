package service

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrMissingStage           = errors.New("submission type has no active stage")
	ErrStageInUse             = errors.New("stage in use")
	ErrInvalidStage           = errors.New("invalid stage")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrConflict               = errors.New("conflict")
)

// ReasonError carries display text for a business error while still matching
// its sentinel with errors.Is.
type ReasonError struct {
	Kind   error
	Reason string
}

func (e *ReasonError) Error() string {
	return e.Reason
}

func (e *ReasonError) Unwrap() error {
	return e.Kind
}

func reason(kind error, format string, args ...interface{}) error {
	return &ReasonError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func illegal(format string, args ...interface{}) error {
	return reason(ErrIllegalTransition, format, args...)
}

func invalid(format string, args ...interface{}) error {
	return reason(ErrValidation, format, args...)
}
