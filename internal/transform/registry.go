package transform

import (
	"context"
	"sort"
	"sync"

	"github.com/woxQAQ/umdpack/internal/descriptor"
	"go.uber.org/zap"
)

// Registry maps transform kinds to transformers.
type Registry struct {
	sync.RWMutex
	transformers map[descriptor.TransformKind]Transformer
	logger       *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		transformers: make(map[descriptor.TransformKind]Transformer),
		logger:       logger.With(zap.String("component", "transform-registry")),
	}
}

// Register adds a transformer under its kind.
func (r *Registry) Register(t Transformer) error {
	r.Lock()
	defer r.Unlock()

	kind := t.Kind()
	if _, exists := r.transformers[kind]; exists {
		return &TransformerAlreadyRegisteredError{Kind: string(kind)}
	}
	r.transformers[kind] = t

	r.logger.Debug("Transformer registered", zap.String("kind", string(kind)))
	return nil
}

// Get retrieves the transformer for a kind.
func (r *Registry) Get(kind descriptor.TransformKind) (Transformer, bool) {
	r.RLock()
	defer r.RUnlock()

	t, ok := r.transformers[kind]
	return t, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.RLock()
	defer r.RUnlock()

	kinds := make([]string, 0, len(r.transformers))
	for kind := range r.transformers {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	return kinds
}

// Transform runs src through the transformer its rule names.
func (r *Registry) Transform(ctx context.Context, src *Source) (string, error) {
	t, ok := r.Get(src.Rule.Kind)
	if !ok {
		return "", &TransformerNotFoundError{Kind: string(src.Rule.Kind)}
	}
	return t.Transform(ctx, src)
}
