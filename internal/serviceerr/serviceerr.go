// Package serviceerr carries the coded error shared by the domain services.
package serviceerr

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error wraps an internal failure with a stable "<package>.<operation>.<reason>" code.
type Error struct {
	code string
	err  error
}

func New(operation, reason string, cause error) *Error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

// CodeOf returns the code of the first Error in err's chain.
func CodeOf(err error) (string, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code, true
	}
	return "", false
}

// Fail logs the failure at error level and returns it as an Error.
func Fail(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("service error", attrs...)
	return New(operation, reason, err)
}
