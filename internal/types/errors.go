package types

import (
	"errors"
	"fmt"
	"go/token"
)

// ErrInputNotFound is returned before any work starts when the input path
// does not exist or is not a Go source file.
var ErrInputNotFound = errors.New("input not found")

// ConfigError reports a malformed configuration field.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseError reports a source file the Go parser rejected.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransformError reports a pass that could not produce a well-formed rewrite.
type TransformError struct {
	Pass Pass
	Pos  token.Position
	Err  error
}

func (e *TransformError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s pass: %v", e.Pos, e.Pass, e.Err)
	}
	return fmt.Sprintf("%s pass: %v", e.Pass, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ExternalToolError reports a failed formatter invocation. It is never fatal.
type ExternalToolError struct {
	Tool   string
	Path   string
	Output string
	Err    error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Tool, e.Path, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }
