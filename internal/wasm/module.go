package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader handles loading and compiling Wasm modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// LoadModuleFromMemory compiles data under the given cache name, or returns
// the cached compilation for name.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(name); ok {
		l.logger.Debug("Module cache hit", zap.String("module", name))
		return cached, nil
	}

	startTime := time.Now()

	// CompileModule decodes and validates the binary.
	compiled, err := l.runtime.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: name,
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       name,
		SizeBytes:  int64(len(data)),
		CompiledAt: time.Now().Unix(),
	}
	l.runtime.StoreCompiledModule(compiledModule)

	if l.runtime.config.DebugEnabled {
		l.logger.Debug("Module compiled",
			zap.String("module", name),
			zap.Int64("size_bytes", compiledModule.SizeBytes),
			zap.Int("exports", len(compiled.ExportedFunctions())),
			zap.Duration("duration", time.Since(startTime)),
		)
	}

	return compiledModule, nil
}

// LoadModuleFromBytes compiles data keyed by its content digest, so identical
// byte slices share one compilation.
func (l *ModuleLoader) LoadModuleFromBytes(ctx context.Context, data []byte) (*CompiledModule, error) {
	return l.LoadModuleFromMemory(ctx, Digest(data), data)
}

// Digest returns the cache key used for anonymous module bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
