package api

import "errors"

var (
	// ErrInvalidRequest marks client errors reported as HTTP 400.
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrModelNotFound is reported as HTTP 404.
	ErrModelNotFound = errors.New("model not found")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}
