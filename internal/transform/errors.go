package transform

import (
	"fmt"
	"strings"
)

// TransformError occurs when a file fails the transform its rule selected.
type TransformError struct {
	Path     string
	Rule     string
	Messages []string
	Err      error
}

func (e *TransformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform %s failed for '%s': %v", e.Rule, e.Path, e.Err)
	}
	return fmt.Sprintf("transform %s failed for '%s':\n%s",
		e.Rule, e.Path, strings.TrimRight(strings.Join(e.Messages, ""), "\n"))
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// AssetLoadError occurs when a binary asset cannot be loaded or parsed.
type AssetLoadError struct {
	Path string
	Rule string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("failed to load asset '%s' (rule %s): %v", e.Path, e.Rule, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// UnhandledModuleError occurs when no rule accepts a file and its extension
// has no default handling, including files a rule's exclude pattern keeps
// out.
type UnhandledModuleError struct {
	Path string
	// ExcludedBy names the rule whose test matched but whose exclude
	// rejected the file.
	ExcludedBy string
}

func (e *UnhandledModuleError) Error() string {
	if e.ExcludedBy != "" {
		return fmt.Sprintf("no transform for '%s': excluded by %s", e.Path, e.ExcludedBy)
	}
	return fmt.Sprintf("no transform for '%s': no rule matches and the file type has no default handling", e.Path)
}

// TransformerNotFoundError occurs when a rule names an unregistered transform.
type TransformerNotFoundError struct {
	Kind string
}

func (e *TransformerNotFoundError) Error() string {
	return fmt.Sprintf("transformer '%s' not registered", e.Kind)
}

// TransformerAlreadyRegisteredError occurs when registering a duplicate kind.
type TransformerAlreadyRegisteredError struct {
	Kind string
}

func (e *TransformerAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("transformer '%s' is already registered", e.Kind)
}
