package bundle

import (
	"fmt"
)

// SourceReadError occurs when a resolved module file cannot be read.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("failed to read module '%s': %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}

// OutputWriteError occurs when the artifact cannot be written. No partial
// artifact is left behind.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("failed to write bundle '%s': %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// MinifyError occurs when the assembled bundle fails minification.
type MinifyError struct {
	Messages []string
}

func (e *MinifyError) Error() string {
	return fmt.Sprintf("failed to minify bundle: %v", e.Messages)
}

// ModuleParseError occurs when transformed module code cannot be parsed
// to locate its require calls.
type ModuleParseError struct {
	Path string
	Err  error
}

func (e *ModuleParseError) Error() string {
	return fmt.Sprintf("failed to parse module '%s': %v", e.Path, e.Err)
}

func (e *ModuleParseError) Unwrap() error {
	return e.Err
}
