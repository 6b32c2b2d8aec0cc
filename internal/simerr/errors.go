package simerr

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the simulation. Every failure is fatal to the run.
var (
	ErrConnectivity     = errors.New("connectivity error")
	ErrForkStartup      = errors.New("fork startup error")
	ErrSigning          = errors.New("signing error")
	ErrEncoding         = errors.New("encoding error")
	ErrCallReverted     = errors.New("call reverted")
	ErrSubmission       = errors.New("submission error")
	ErrTraceUnavailable = errors.New("trace unavailable")
)

// Wrap tags err with a kind and the step that produced it. An err that already
// carries a kind keeps it and only gains the step prefix. A nil err stays nil.
func Wrap(step string, kind error, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %w", step, kind, err)
}

// Tag always adds kind, even when err already carries another one.
func Tag(step string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", step, kind, err)
}

// New builds a tagged error from a message.
func New(step string, kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", step, kind, fmt.Sprintf(format, args...))
}

// RevertError is returned when a read-only call is rejected by contract logic.
type RevertError struct {
	Method string
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Method, ErrCallReverted)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, ErrCallReverted, e.Reason)
}

// Is reports ErrCallReverted as a match.
func (e *RevertError) Is(target error) bool {
	return target == ErrCallReverted
}

// Kind returns the kind err matches, or nil. Connectivity is the most generic kind
// and only wins when nothing else matches.
func Kind(err error) error {
	for _, kind := range []error{
		ErrForkStartup,
		ErrSigning,
		ErrEncoding,
		ErrCallReverted,
		ErrSubmission,
		ErrTraceUnavailable,
		ErrConnectivity,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
