package vision

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed failures below.
var (
	ErrDecode       = errors.New("image could not be decoded")
	ErrInvalidInput = errors.New("invalid image input")
	ErrInternal     = errors.New("internal analysis failure")
)

// DecodeError reports unreadable or corrupt image bytes. It is a client fault.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return ErrDecode.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for every DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// InvalidInputError reports empty input or an image without pixels. It is a client fault.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// InternalError reports a failure that well-formed input should never trigger.
type InternalError struct {
	Stage string
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrInternal, e.Stage, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

// IsClientError reports whether err was caused by the submitted image rather than the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrInvalidInput)
}
