// Package errdefs defines the error taxonomy shared by every passthru
// component. Callers match with errors.Is / errors.As; components wrap with
// fmt.Errorf("...: %w", err) so the category survives context.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an expected control file, configuration file or
	// external tool is absent. Whether it is fatal depends on the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidData indicates a change log or configuration payload could
	// not be parsed.
	ErrInvalidData = errors.New("invalid data")

	// ErrNotSupported indicates the requested operation has no implementation
	// for the selected backend or host.
	ErrNotSupported = errors.New("not supported")

	// ErrCommandFailed is matched by every *CommandError.
	ErrCommandFailed = errors.New("command failed")

	// ErrPartialFailure is matched by every *PartialFailure.
	ErrPartialFailure = errors.New("partial failure")
)

// CommandError reports an external tool that exited with a non-zero status.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Output   string
}

// Error implements the error interface
func (e *CommandError) Error() string {
	cmdline := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	msg := fmt.Sprintf("%s exited with status %d", cmdline, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Is makes errors.Is(err, ErrCommandFailed) true for command errors.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

// Failure is one step that could not be completed during a multi-step
// operation such as rollback.
type Failure struct {
	Step string
	Err  error
}

// Error implements the error interface
func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Step, f.Err)
}

// Unwrap returns the underlying error
func (f Failure) Unwrap() error {
	return f.Err
}

// PartialFailure aggregates the failed steps of an operation that kept going
// after individual errors.
type PartialFailure struct {
	Operation string
	Failures  []Failure
}

// Add appends a failed step
func (p *PartialFailure) Add(step string, err error) {
	p.Failures = append(p.Failures, Failure{Step: step, Err: err})
}

// HasFailures returns true if at least one step failed
func (p *PartialFailure) HasFailures() bool {
	return len(p.Failures) > 0
}

// Error implements the error interface
func (p *PartialFailure) Error() string {
	if len(p.Failures) == 0 {
		return p.Operation + ": no failures"
	}
	if len(p.Failures) == 1 {
		return fmt.Sprintf("%s completed with 1 error: %s", p.Operation, p.Failures[0].Error())
	}

	parts := make([]string, 0, len(p.Failures))
	for _, f := range p.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s completed with %d errors:\n  %s",
		p.Operation, len(p.Failures), strings.Join(parts, "\n  "))
}

// Is makes errors.Is(err, ErrPartialFailure) true for aggregated failures.
func (p *PartialFailure) Is(target error) bool {
	return target == ErrPartialFailure
}

// Unwrap exposes every step error to errors.Is / errors.As.
func (p *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(p.Failures))
	for _, f := range p.Failures {
		errs = append(errs, f)
	}
	return errs
}

// ErrOrNil returns p when it holds failures and nil otherwise, so callers can
// return the collection unconditionally.
func (p *PartialFailure) ErrOrNil() error {
	if p == nil || !p.HasFailures() {
		return nil
	}
	return p
}
