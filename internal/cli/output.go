package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Maryclair03/Latest-LittleWatch/internal/api"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // request failed
	ExitCommandError = 2 // bad usage or not logged in
)

// ExitError is an error carrying a process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// requestError turns an API error into a user-facing message.
func requestError(action string, err error) error {
	if api.IsUnauthorized(err) {
		return WrapExitError(ExitCommandError, "session expired, please log in again", err)
	}
	return WrapExitError(ExitFailure, "failed to "+action, err)
}

// Printer writes command output in the --format selected.
type Printer struct {
	Format string
	Writer io.Writer
}

// JSON reports whether output is json.
func (p *Printer) JSON() bool {
	return p.Format == "json"
}

// Emit writes v as JSON in json mode and calls text otherwise.
func (p *Printer) Emit(v any, text func(w io.Writer)) error {
	if p.JSON() {
		enc := json.NewEncoder(p.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.Writer)
	return nil
}

// EmitLine writes one streamed entry, one JSON object per line in json mode.
func (p *Printer) EmitLine(v any, text func(w io.Writer)) error {
	if p.JSON() {
		return json.NewEncoder(p.Writer).Encode(v)
	}
	text(p.Writer)
	return nil
}

// Status writes a short status result.
func (p *Printer) Status(status, message string) error {
	return p.Emit(map[string]string{"status": status, "message": message}, func(w io.Writer) {
		fmt.Fprintln(w, message)
	})
}
