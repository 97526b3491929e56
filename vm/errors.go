package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error values
// ---------------------------------------------------------------------------

// Sentinel conditions usable with errors.Is.
var (
	// ErrNotFinalized is returned when compilation is requested for a
	// function whose owning class has not been finalized.
	ErrNotFinalized = errors.New("owning class is not finalized")

	// ErrNoBody is returned when a function has no retrievable body.
	ErrNoBody = errors.New("function body is not available")

	// ErrUnresolvedName is wrapped by compile errors caused by a name that
	// resolves in no enclosing scope.
	ErrUnresolvedName = errors.New("unresolved identifier")

	// ErrPoolStopped is returned when a task is submitted to a stopped pool.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// CompileError reports a syntax or semantic error in a function body.
// No code is installed when a CompileError is returned; the function stays
// eligible for a later retry.
type CompileError struct {
	Function string // qualified function name, may be empty for scripts
	Message  string
	Err      error // optional sentinel cause (e.g. ErrUnresolvedName)
}

func (e *CompileError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("compile error: %s", e.Message)
	}
	return fmt.Sprintf("compile error in %s: %s", e.Function, e.Message)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a failure raised while executing compiled code.
type RuntimeError struct {
	Message  string
	Function string // qualified name of the function that raised it
}

func (e *RuntimeError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("runtime error: %s", e.Message)
	}
	return fmt.Sprintf("runtime error in %s: %s", e.Function, e.Message)
}

// EvalErrorKind distinguishes the failure modes of expression evaluation.
type EvalErrorKind int

const (
	// EvalParse: the expression text did not parse.
	EvalParse EvalErrorKind = iota
	// EvalCompile: the expression parsed but did not compile
	// (including unresolved identifiers).
	EvalCompile
	// EvalRuntime: the expression raised an error while executing.
	EvalRuntime
)

func (k EvalErrorKind) String() string {
	switch k {
	case EvalParse:
		return "parse"
	case EvalCompile:
		return "compile"
	case EvalRuntime:
		return "runtime"
	}
	return "unknown"
}

// EvalError reports a failure of Evaluate. The kinds are distinguishable so
// callers can tell an unresolved identifier from an exception raised by the
// evaluated expression.
type EvalError struct {
	Kind EvalErrorKind
	Expr string // the expression text, possibly truncated
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %s error: %v", e.Kind, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// newEvalError wraps err as an EvalError, truncating long expression text.
func newEvalError(kind EvalErrorKind, expr string, err error) *EvalError {
	if len(expr) > 64 {
		expr = expr[:61] + "..."
	}
	return &EvalError{Kind: kind, Expr: expr, Err: err}
}
