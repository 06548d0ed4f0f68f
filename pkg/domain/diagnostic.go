package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Severity of a compile-time diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies the class of a diagnostic.
type Code string

const (
	CodeBadArity           Code = "bad_arity"
	CodeBadToken           Code = "bad_token"
	CodeBadTimeout         Code = "bad_timeout"
	CodeUnknownInstruction Code = "unknown_instruction"
	CodeOrphanInstruction  Code = "orphan_instruction"
	CodeDuplicateStep      Code = "duplicate_step"
	CodeEmptyKeyword       Code = "empty_keyword"

	// Codes below are produced by graph validation, not by the builder.
	CodeDanglingTarget Code = "dangling_target"
	CodeUnreachable    Code = "unreachable_step"
	CodeNoExit         Code = "no_exit"
	CodeNoSteps        Code = "no_steps"
)

// Diagnostic describes a problem found while compiling or validating a script.
type Diagnostic struct {
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Tokens   []string `json:"tokens,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", d.Line, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// Diagnostics is the list returned alongside a compiled graph.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns only the warning-severity diagnostics.
func (ds Diagnostics) Warnings() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Err folds the error diagnostics into a single error, or nil.
func (ds Diagnostics) Err() error {
	errs := ds.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &CompileError{Diagnostics: errs}
}

// CompileError wraps the error diagnostics of a failed strict compilation.
type CompileError struct {
	Diagnostics Diagnostics
}

func (e *CompileError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return fmt.Sprintf("found %d errors:\n- %s", len(lines), strings.Join(lines, "\n- "))
}

// IsCompileError reports whether err carries compile diagnostics.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
