package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"passthru/internal/errdefs"
)

// Error types of a ConfigurationError
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`    // Full path to the file that caused the error
	ErrorType   string   `json:"errorType"`   // Type of error (parse, validation, io)
	Message     string   `json:"message"`     // Human-readable error message
	Err         error    `json:"-"`           // Underlying error
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error
}

// NewConfigurationError creates a configuration error for the file at path
func NewConfigurationError(path, errorType, message string, err error, suggestions ...string) *ConfigurationError {
	return &ConfigurationError{
		FilePath:    path,
		ErrorType:   errorType,
		Message:     message,
		Err:         err,
		Suggestions: suggestions,
	}
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", ce.ErrorType, filepath.Base(ce.FilePath), ce.Message)
	if ce.Err != nil {
		msg += ": " + ce.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

// Is makes parse and validation errors match errdefs.ErrInvalidData
func (ce *ConfigurationError) Is(target error) bool {
	return target == errdefs.ErrInvalidData && ce.ErrorType != ErrorTypeIO
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Configuration Error in %s", filepath.Base(ce.FilePath)))
	parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))
	parts = append(parts, fmt.Sprintf("  Error: %s", ce.Message))

	if ce.Err != nil {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Err))
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}
