package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrToolNotFound  = fmt.Errorf("tool not found")
	ErrUnauthorized  = fmt.Errorf("not authenticated")
	ErrEncryption    = fmt.Errorf("encryption operation failed")
	ErrDecryption    = fmt.Errorf("decryption failed")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrNoCredentials = fmt.Errorf("no credentials configured")

	// Provider errors surfaced by the LLM adapter. Rate limits and
	// server errors are retryable; auth failures abort the turn.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrProviderError   = fmt.Errorf("provider error")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Vault.Decrypt")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient provider error
// that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderError)
}

// IsFatalProviderError reports whether err should abort the current turn
// instead of being retried or fed back to the model.
func IsFatalProviderError(err error) bool {
	return errors.Is(err, ErrAuthInvalid)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeEncryption      ErrorCode = "ENCRYPTION"
	CodeDecryption      ErrorCode = "DECRYPTION"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeNoCredentials   ErrorCode = "NO_CREDENTIALS"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
	CodeProviderError   ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:        CodeNotFound,
	ErrInvalidInput:    CodeInvalidInput,
	ErrToolNotFound:    CodeToolNotFound,
	ErrUnauthorized:    CodeUnauthorized,
	ErrEncryption:      CodeEncryption,
	ErrDecryption:      CodeDecryption,
	ErrConfigLoad:      CodeConfigLoad,
	ErrNoCredentials:   CodeNoCredentials,
	ErrRateLimit:       CodeRateLimit,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrContextOverflow: CodeContextOverflow,
	ErrProviderError:   CodeProviderError,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
