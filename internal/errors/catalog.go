package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a standardized error code for celldock
type ErrorCode string

// Error codes for celldock
const (
	// Command dispatch errors (recovered locally, never end the session)
	ErrorCodeUnknownCommand     ErrorCode = "UNKNOWN_COMMAND"
	ErrorCodeArgumentCount      ErrorCode = "ARGUMENT_COUNT"
	ErrorCodeArgumentValidation ErrorCode = "ARGUMENT_VALIDATION"
	ErrorCodeUnknownFlag        ErrorCode = "UNKNOWN_FLAG"
	ErrorCodeUnsupportedOption  ErrorCode = "UNSUPPORTED_OPTION"
	ErrorCodeNoCheckpoint       ErrorCode = "NO_CHECKPOINT"

	// Build execution errors
	ErrorCodeBuildEngineFailure ErrorCode = "BUILD_ENGINE_FAILURE"
	ErrorCodeMalformedBuildLog  ErrorCode = "MALFORMED_BUILD_LOG"
	ErrorCodeNoImageProduced    ErrorCode = "NO_IMAGE_PRODUCED"

	// Session & replay errors
	ErrorCodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeInvalidDockerfile ErrorCode = "INVALID_DOCKERFILE"
	ErrorCodeReplayMismatch    ErrorCode = "REPLAY_MISMATCH"

	// Platform errors
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error messages map
var errorMessages = map[ErrorCode]string{
	ErrorCodeUnknownCommand:     "Unknown command.",
	ErrorCodeArgumentCount:      "Not enough arguments.",
	ErrorCodeArgumentValidation: "Invalid argument.",
	ErrorCodeUnknownFlag:        "Unknown flag.",
	ErrorCodeUnsupportedOption:  "Option not supported.",
	ErrorCodeNoCheckpoint:       "No image has been built yet.",

	ErrorCodeBuildEngineFailure: "The build engine failed.",
	ErrorCodeMalformedBuildLog:  "The build log could not be decoded.",
	ErrorCodeNoImageProduced:    "The build finished without producing an image.",

	ErrorCodeSessionNotFound:   "Session not found.",
	ErrorCodeInvalidDockerfile: "The Dockerfile could not be split into cells.",
	ErrorCodeReplayMismatch:    "Cell-wise build and whole-file build produced different images.",

	ErrorCodeInternal: "Something went wrong inside celldock.",
}

// CelldockError represents a structured error with code and message
type CelldockError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"` // what the user typed wrong, or the engine's text
	Err     error     `json:"-"`
}

// Error implements the error interface
func (e *CelldockError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CelldockError) Unwrap() error {
	return e.Err
}

// Display renders the error the way a session shows it to the user: the
// details when present, otherwise the catalog message.
func (e *CelldockError) Display() string {
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// New creates a new CelldockError with the given code
func New(code ErrorCode, details ...string) *CelldockError {
	err := &CelldockError{
		Code:    code,
		Message: GetMessage(code),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// Newf creates a CelldockError whose details are formatted
func Newf(code ErrorCode, format string, args ...any) *CelldockError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a CelldockError code
func Wrap(code ErrorCode, err error, details ...string) *CelldockError {
	celldockErr := New(code, details...)
	if err == nil {
		return celldockErr
	}
	celldockErr.Err = err
	if celldockErr.Details == "" {
		celldockErr.Details = err.Error()
	} else {
		celldockErr.Details = fmt.Sprintf("%s: %s", celldockErr.Details, err.Error())
	}
	return celldockErr
}

// GetMessage returns the user-friendly message for an error code
func GetMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "An unknown error occurred."
}

// AsCelldockError finds the first CelldockError in err's chain
func AsCelldockError(err error) (*CelldockError, bool) {
	if err == nil {
		return nil, false
	}
	var celldockErr *CelldockError
	if stderrors.As(err, &celldockErr) {
		return celldockErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	celldockErr, ok := AsCelldockError(err)
	return ok && celldockErr.Code == code
}

// IsDispatchError reports whether err is one of the command-dispatch errors
// that a session recovers from locally.
func IsDispatchError(err error) bool {
	celldockErr, ok := AsCelldockError(err)
	if !ok {
		return false
	}
	switch celldockErr.Code {
	case ErrorCodeUnknownCommand, ErrorCodeArgumentCount, ErrorCodeArgumentValidation,
		ErrorCodeUnknownFlag, ErrorCodeUnsupportedOption, ErrorCodeNoCheckpoint:
		return true
	}
	return false
}
