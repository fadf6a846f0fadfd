package dirseal

import (
	"errors"
	"fmt"
)

// Error types represent the failure categories of a run

// ConfigError represents an invalid run configuration. Config errors are
// always reported before any file is touched.
type ConfigError struct {
	Field   string // The configuration field that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CryptoError represents a failure of a cryptographic operation. Crypto
// errors are always fatal for the run.
type CryptoError struct {
	Operation string // "encrypt", "decrypt", "wrap" or "unwrap"
	Path      string // File path, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *CryptoError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IOError represents a filesystem failure on a specific file.
type IOError struct {
	Operation string // "read", "write", "delete", "open", "rename", etc.
	Path      string // File path
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrInvalidKeyLength = errors.New("symmetric key must be 16, 24 or 32 bytes")
	ErrTruncatedInput   = errors.New("encrypted input is truncated or not block-aligned")
	ErrEmptyPath        = errors.New("relative path cannot be empty")
	ErrSecretTooLarge   = errors.New("secret exceeds the capacity of the public key")
	ErrUnwrapFailure    = errors.New("key unwrap failed")
	ErrNilConfig        = errors.New("config cannot be nil")
	ErrNilFileSystem    = errors.New("filesystem cannot be nil")
)

// Helper functions for creating structured errors

// NewConfigError creates a new configuration error.
func NewConfigError(field, message string, err error) error {
	return &ConfigError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// NewCryptoError creates a new cryptographic error.
func NewCryptoError(operation, path string, err error) error {
	return &CryptoError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error.
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// Error checking helpers

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsCryptoError checks if an error is a cryptographic error.
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}
