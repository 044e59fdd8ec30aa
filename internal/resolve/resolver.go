// Package resolve maps import specifiers to files or to external packages.
package resolve

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Resolution is the outcome of resolving one import specifier: either a
// file to bundle or an external package name.
type Resolution struct {
	Path     string
	External string
}

// IsExternal reports whether the import stays a runtime dependency.
func (r Resolution) IsExternal() bool {
	return r.External != ""
}

// Resolver resolves import specifiers against the file system.
type Resolver struct {
	extensions []string
	externals  *Externals
	logger     *zap.Logger
}

// NewResolver creates a resolver trying extensions in the given order.
func NewResolver(extensions []string, externals *Externals, logger *zap.Logger) *Resolver {
	return &Resolver{
		extensions: extensions,
		externals:  externals,
		logger:     logger.With(zap.String("component", "resolver")),
	}
}

// ResolveEntry resolves the absolute entry path.
func (r *Resolver) ResolveEntry(entry string) (string, error) {
	path, tried, ok := r.resolvePath(entry)
	if !ok {
		return "", &ResolutionError{Specifier: entry, Tried: tried}
	}
	return path, nil
}

// Resolve resolves specifier as imported from the file importer.
//
// Relative and absolute specifiers are tried as written, then with each
// extension appended, then as a directory holding index plus each
// extension. Bare specifiers resolve only to external packages.
func (r *Resolver) Resolve(specifier, importer string) (Resolution, error) {
	if IsBare(specifier) {
		if r.externals != nil && r.externals.Exclude(specifier) {
			return Resolution{External: specifier}, nil
		}
		return Resolution{}, &ResolutionError{Specifier: specifier, Importer: importer}
	}

	target := filepath.FromSlash(specifier)
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(importer), target)
	}

	path, tried, ok := r.resolvePath(target)
	if !ok {
		return Resolution{}, &ResolutionError{
			Specifier: specifier,
			Importer:  importer,
			Tried:     tried,
		}
	}

	r.logger.Debug("Resolved import",
		zap.String("specifier", specifier),
		zap.String("importer", importer),
		zap.String("path", path),
	)

	return Resolution{Path: path}, nil
}

func (r *Resolver) resolvePath(target string) (string, []string, bool) {
	candidates := make([]string, 0, 2*len(r.extensions)+1)
	candidates = append(candidates, target)
	for _, ext := range r.extensions {
		candidates = append(candidates, target+ext)
	}
	for _, ext := range r.extensions {
		candidates = append(candidates, filepath.Join(target, "index"+ext))
	}

	for i, candidate := range candidates {
		if isFile(candidate) {
			return candidate, candidates[:i], true
		}
	}
	return "", candidates, false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
