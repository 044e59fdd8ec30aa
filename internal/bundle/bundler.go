// Package bundle builds the UMD artifact described by a build descriptor.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/woxQAQ/umdpack/internal/descriptor"
	"github.com/woxQAQ/umdpack/internal/resolve"
	"github.com/woxQAQ/umdpack/internal/transform"
	"github.com/woxQAQ/umdpack/internal/wasm"
	"go.uber.org/zap"
)

// Options tunes a Bundler beyond what the descriptor states.
type Options struct {
	// ValidateWasm compiles every wasm asset before embedding it.
	ValidateWasm bool
	// WasmMemoryPages bounds the validation runtime.
	WasmMemoryPages uint32
	// WasmDebug logs every compilation of the validation runtime.
	WasmDebug bool
}

// DefaultOptions returns the options the CLI uses when unconfigured.
func DefaultOptions() Options {
	return Options{ValidateWasm: true, WasmMemoryPages: 256}
}

// Result describes a finished build.
type Result struct {
	OutputPath string
	Bytes      int
	SHA256     string
	Modules    []*Module
	// Externals are the external specifiers the artifact requires at load
	// time, sorted.
	Externals []string
	Duration  time.Duration
}

// Bundler builds one descriptor.
type Bundler struct {
	desc       *descriptor.Descriptor
	runtime    *wasm.Runtime
	classifier *transform.Classifier
	registry   *transform.Registry
	logger     *zap.Logger
}

// NewBundler loads the defined constants and sets up the transformers for
// d. Close releases the wasm runtime.
func NewBundler(ctx context.Context, d *descriptor.Descriptor, opts Options, logger *zap.Logger) (*Bundler, error) {
	logger = logger.With(zap.String("component", "bundler"))

	defines, err := d.LoadDefines()
	if err != nil {
		return nil, err
	}

	classifier, err := transform.NewClassifier(d)
	if err != nil {
		return nil, err
	}

	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:  opts.WasmMemoryPages,
		DebugEnabled: opts.WasmDebug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	registry := transform.NewRegistry(logger)
	for _, t := range []transform.Transformer{
		transform.NewTypeScriptTransformer(defines, logger),
		transform.NewJavaScriptTransformer(defines, logger),
		transform.NewJSONTransformer(logger),
		transform.NewWasmTransformer(wasm.NewModuleLoader(runtime, logger), opts.ValidateWasm, logger),
	} {
		if err := registry.Register(t); err != nil {
			runtime.Close(ctx)
			return nil, err
		}
	}

	return &Bundler{
		desc:       d,
		runtime:    runtime,
		classifier: classifier,
		registry:   registry,
		logger:     logger,
	}, nil
}

// Build walks the module graph from the entry and writes the artifact.
// Any error aborts the build and leaves the previous artifact, if any, in
// place.
func (b *Bundler) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	externals, err := resolve.ScanExternals(b.desc.ModulesDir(), b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to scan externals in %s: %w", b.desc.ModulesDir(), err)
	}

	resolver := resolve.NewResolver(b.desc.Resolve.Extensions, externals, b.logger)

	entry, err := resolver.ResolveEntry(b.desc.EntryPath())
	if err != nil {
		return nil, err
	}

	b.logger.Info("Building bundle",
		zap.String("entry", b.classifier.Key(entry)),
		zap.String("mode", string(b.desc.Mode)),
		zap.Int("known_externals", externals.Len()),
	)

	g := newGraph(resolver, b.classifier, b.registry, b.logger)
	if _, err := g.visit(ctx, entry); err != nil {
		return nil, err
	}

	code := renderUMD(umdOptions{
		Library:      b.desc.Output.Library,
		GlobalObject: b.desc.Output.GlobalObject,
		Externals:    g.externalNames(),
		Modules:      g.modules,
		Annotate:     !b.desc.Production(),
	})

	if b.desc.Production() {
		if code, err = minify(code); err != nil {
			return nil, err
		}
	}

	outPath := b.desc.OutputFile()
	if err := writeAtomic(outPath, []byte(code)); err != nil {
		return nil, &OutputWriteError{Path: outPath, Err: err}
	}

	sum := sha256.Sum256([]byte(code))
	result := &Result{
		OutputPath: outPath,
		Bytes:      len(code),
		SHA256:     hex.EncodeToString(sum[:]),
		Modules:    g.modules,
		Externals:  g.externalNames(),
		Duration:   time.Since(start),
	}

	b.logger.Info("Bundle written",
		zap.String("output", outPath),
		zap.Int("bytes", result.Bytes),
		zap.Int("modules", len(result.Modules)),
		zap.Strings("externals", result.Externals),
		zap.String("sha256", result.SHA256),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// Close releases the wasm runtime.
func (b *Bundler) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}

func minify(code string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            transform.Target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Charset:           api.CharsetUTF8,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", &MinifyError{
			Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{
				Kind: api.ErrorMessage,
			}),
		}
	}
	return string(result.Code), nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
