package descriptor

import (
	"fmt"
)

// DescriptorNotFoundError occurs when the descriptor file cannot be read.
type DescriptorNotFoundError struct {
	Path string
	Err  error
}

func (e *DescriptorNotFoundError) Error() string {
	return fmt.Sprintf("build descriptor not found at '%s': %v", e.Path, e.Err)
}

func (e *DescriptorNotFoundError) Unwrap() error {
	return e.Err
}

// DescriptorParseError occurs when the descriptor file is not valid YAML.
type DescriptorParseError struct {
	Path string
	Err  error
}

func (e *DescriptorParseError) Error() string {
	return fmt.Sprintf("failed to parse build descriptor at '%s': %v", e.Path, e.Err)
}

func (e *DescriptorParseError) Unwrap() error {
	return e.Err
}

// DescriptorValidationError occurs when a descriptor field is invalid.
type DescriptorValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *DescriptorValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("build descriptor validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("build descriptor validation failed at '%s': %s", e.Path, e.Message)
}

// DefineLoadError occurs when a file-backed defined constant cannot be
// loaded or is not valid JSON.
type DefineLoadError struct {
	Identifier string
	File       string
	Err        error
}

func (e *DefineLoadError) Error() string {
	return fmt.Sprintf("failed to load defined constant '%s' from '%s': %v",
		e.Identifier, e.File, e.Err)
}

func (e *DefineLoadError) Unwrap() error {
	return e.Err
}
