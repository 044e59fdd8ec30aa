package loadcheck

import (
	"fmt"
	"strings"
)

// ExternalizationError occurs when an artifact requires an external
// dependency that the loading environment does not provide.
type ExternalizationError struct {
	Name string
	Dir  string
	Err  error
}

func (e *ExternalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("external dependency '%s' cannot be loaded from %s: %v", e.Name, e.Dir, e.Err)
	}
	return fmt.Sprintf("external dependency '%s' not found in %s", e.Name, e.Dir)
}

func (e *ExternalizationError) Unwrap() error {
	return e.Err
}

// LoadError occurs when the artifact throws or does not register the
// library under a convention.
type LoadError struct {
	Convention Convention
	Path       string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading '%s' as %s failed: %v", e.Path, e.Convention, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ConventionMismatchError occurs when two conventions yield libraries with
// different export surfaces.
type ConventionMismatchError struct {
	Convention Convention
	Want       []string
	Got        []string
}

func (e *ConventionMismatchError) Error() string {
	return fmt.Sprintf("library loaded as %s exports [%s], want [%s]",
		e.Convention, strings.Join(e.Got, ", "), strings.Join(e.Want, ", "))
}
