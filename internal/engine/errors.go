package engine

import (
	"errors"
	"fmt"
)

// Error represents a failure detected by the engine or by a codec built on it.
//
// Error kinds:
//   - ENCODING: malformed or truncated snapshot stream
//   - SCHEMA: rule base incompatible with persisted facts or definitions
//   - CONFIG: missing or malformed session configuration / clock state
//   - CONTRACT: caller misuse (disposed session, nil fact, negative advance)
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the operation that failed ("insert", "unmarshal", ...).
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeEncoding indicates a malformed or truncated snapshot stream.
	ErrCodeEncoding ErrorCode = "ENCODING"

	// ErrCodeSchema indicates a rule base that does not fit the data.
	ErrCodeSchema ErrorCode = "SCHEMA"

	// ErrCodeConfig indicates missing or malformed session configuration.
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeContract indicates caller misuse.
	ErrCodeContract ErrorCode = "CONTRACT"
)

// ErrDisposed is wrapped by every contract error raised on a disposed session.
var ErrDisposed = errors.New("session disposed")

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error around an underlying cause.
func WrapError(code ErrorCode, op string, err error, message string) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// IsEncodingError reports whether err is (or wraps) an ENCODING error.
func IsEncodingError(err error) bool { return hasCode(err, ErrCodeEncoding) }

// IsSchemaError reports whether err is (or wraps) a SCHEMA error.
func IsSchemaError(err error) bool { return hasCode(err, ErrCodeSchema) }

// IsConfigError reports whether err is (or wraps) a CONFIG error.
func IsConfigError(err error) bool { return hasCode(err, ErrCodeConfig) }

// IsContractError reports whether err is (or wraps) a CONTRACT error.
func IsContractError(err error) bool { return hasCode(err, ErrCodeContract) }

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func disposedError(op string) *Error {
	return WrapError(ErrCodeContract, op, ErrDisposed, "operation on disposed session")
}
