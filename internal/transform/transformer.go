// Package transform turns source files into CommonJS module bodies. Each
// file is routed through the first matching rule of the build descriptor,
// and each rule names a transformer registered by kind.
package transform

import (
	"context"

	"github.com/woxQAQ/umdpack/internal/descriptor"
)

// Source is one file handed to a transformer.
type Source struct {
	// Path is the absolute file path.
	Path string
	// Key is the path relative to the context directory, slash-separated.
	Key  string
	Data []byte
	Rule *Rule
}

// Transformer turns a source file into the body of a CommonJS module
// function taking (module, exports, require).
type Transformer interface {
	Kind() descriptor.TransformKind
	Transform(ctx context.Context, src *Source) (string, error)
}
