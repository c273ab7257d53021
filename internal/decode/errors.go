package decode

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks caller bugs: invalid options or a Stepper whose
// output does not match the candidate layout.
var ErrInvalidConfig = errors.New("decode: invalid configuration")

// ConfigError reports which setting was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("decode: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
