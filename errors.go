package plsago

import (
	"errors"
	"fmt"

	"github.com/hupe1980/plsago/internal/exchange"
	"github.com/hupe1980/plsago/internal/fpe"
)

var (
	// ErrInvalidConfig is wrapped by every configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTooManyClusters is returned when the cluster count exceeds the
	// message tag capacity.
	ErrTooManyClusters = errors.New("too many clusters")

	// ErrDiverged is returned together with the Result when the
	// log-likelihood decreased.
	ErrDiverged = errors.New("log-likelihood diverged")

	// ErrNumericFault is returned when floating-point faults occur under the
	// abort policy.
	ErrNumericFault = fpe.ErrNumericFault

	// ErrShapeMismatch is returned when the co-occurrence matrix does not fit
	// the trainer's tables.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ConfigError describes an invalid configuration field.
//
// It matches ErrInvalidConfig with errors.Is; the original underlying error
// (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Field  string
	Reason string
	cause  error
}

// NewConfigError returns a ConfigError for field.
func NewConfigError(field, reason string, cause error) *ConfigError {
	return &ConfigError{Field: field, Reason: reason, cause: cause}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func (e *ConfigError) Unwrap() error { return e.cause }

// ExchangeError is the error type of failed worker communication.
type ExchangeError = exchange.Error
