// Package loadcheck loads a UMD artifact in an embedded JavaScript engine
// under each module convention the wrapper supports, the way a browser, a
// CommonJS host or an AMD loader would see it.
package loadcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/woxQAQ/umdpack/internal/wasm"
)

// Convention is a module system the artifact can be loaded through.
type Convention string

const (
	// ConventionGlobal runs the artifact as a plain script; the library
	// lands on the global object and externals are read from it.
	ConventionGlobal Convention = "global"
	// ConventionCommonJS provides module, exports and require.
	ConventionCommonJS Convention = "commonjs"
	// ConventionAMD provides define with define.amd set.
	ConventionAMD Convention = "amd"
)

// Conventions lists every convention in the order CheckAll uses.
func Conventions() []Convention {
	return []Convention{ConventionCommonJS, ConventionAMD, ConventionGlobal}
}

// Options configures a Checker.
type Options struct {
	// Library is the name the artifact registers under the global convention.
	Library string

	// ModulesDir is where external packages are loaded from.
	ModulesDir string

	// Externals are published on the global object before a global load.
	// When empty, CheckAll uses the names requested by the CommonJS load.
	Externals []string

	// WasmMemoryPages bounds memory of WebAssembly instances (64KiB pages).
	WasmMemoryPages uint32

	// WasmDebug logs every module compilation.
	WasmDebug bool
}

// Checker loads artifacts. Every Load uses a fresh VM.
type Checker struct {
	opts   Options
	logger *zap.Logger
}

// NewChecker creates a new checker.
func NewChecker(opts Options, logger *zap.Logger) *Checker {
	return &Checker{
		opts:   opts,
		logger: logger.With(zap.String("component", "loadcheck")),
	}
}

// Session is one loaded library.
type Session struct {
	Convention Convention
	// Requested lists the externals the artifact required, in order.
	Requested []string

	vm      *goja.Runtime
	library goja.Value
	wasm    *webAssembly
}

// Library returns the exported value.
func (s *Session) Library() goja.Value {
	return s.library
}

// Keys returns the sorted own keys of the library.
func (s *Session) Keys() []string {
	if s.library == nil || goja.IsUndefined(s.library) || goja.IsNull(s.library) {
		return nil
	}
	keys := s.library.ToObject(s.vm).Keys()
	sort.Strings(keys)
	return keys
}

// Get exports a property of the library to a Go value.
func (s *Session) Get(name string) any {
	v := s.library.ToObject(s.vm).Get(name)
	if v == nil {
		return nil
	}
	return v.Export()
}

// Call invokes a function exported by the library.
func (s *Session) Call(name string, args ...any) (any, error) {
	lib := s.library.ToObject(s.vm)
	fn, ok := goja.AssertFunction(lib.Get(name))
	if !ok {
		return nil, fmt.Errorf("library export '%s' is not a function", name)
	}

	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = s.vm.ToValue(arg)
	}

	res, err := fn(lib, values...)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

// Close releases the WebAssembly runtimes created by the session.
func (s *Session) Close(ctx context.Context) error {
	return s.wasm.close(ctx)
}

// Load evaluates the artifact under one convention.
func (c *Checker) Load(ctx context.Context, artifact string, convention Convention) (*Session, error) {
	src, err := os.ReadFile(artifact)
	if err != nil {
		return nil, &LoadError{Convention: convention, Path: artifact, Err: err}
	}

	vm := goja.New()
	wa, err := newWebAssembly(ctx, vm, wasm.RuntimeConfig{
		MemoryPages:  c.opts.WasmMemoryPages,
		DebugEnabled: c.opts.WasmDebug,
	}, c.logger)
	if err != nil {
		return nil, &LoadError{Convention: convention, Path: artifact, Err: err}
	}
	if err := wa.install(); err != nil {
		_ = wa.close(ctx)
		return nil, &LoadError{Convention: convention, Path: artifact, Err: err}
	}

	session := &Session{Convention: convention, vm: vm, wasm: wa}
	req := newRequirer(vm, c.opts.ModulesDir, c.logger)

	var library goja.Value
	switch convention {
	case ConventionGlobal:
		library, err = c.loadGlobal(vm, req, artifact, string(src))
	case ConventionCommonJS:
		library, err = c.loadCommonJS(vm, req, artifact, string(src))
	case ConventionAMD:
		library, err = c.loadAMD(vm, req, artifact, string(src))
	default:
		err = fmt.Errorf("unknown convention %q", convention)
	}

	if err == nil && (library == nil || goja.IsUndefined(library) || goja.IsNull(library)) {
		err = errors.New("library was not registered")
	}
	if err != nil {
		_ = wa.close(ctx)
		var extErr *ExternalizationError
		if errors.As(req.failed, &extErr) {
			return nil, extErr
		}
		if errors.As(err, &extErr) {
			return nil, extErr
		}
		return nil, &LoadError{Convention: convention, Path: artifact, Err: err}
	}

	session.library = library
	session.Requested = req.requested

	c.logger.Debug("Artifact loaded",
		zap.String("artifact", artifact),
		zap.String("convention", string(convention)),
		zap.Strings("keys", session.Keys()),
	)

	return session, nil
}

func (c *Checker) loadGlobal(vm *goja.Runtime, req *requirer, artifact, src string) (goja.Value, error) {
	for _, name := range c.opts.Externals {
		v, err := req.require(name)
		if err != nil {
			return nil, err
		}
		if err := vm.GlobalObject().Set(name, v); err != nil {
			return nil, err
		}
	}

	if _, err := vm.RunScript(artifact, src); err != nil {
		return nil, err
	}
	return vm.GlobalObject().Get(c.opts.Library), nil
}

func (c *Checker) loadCommonJS(vm *goja.Runtime, req *requirer, artifact, src string) (goja.Value, error) {
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	for name, value := range map[string]any{
		"module":  module,
		"exports": exports,
		"require": req.jsRequire,
	} {
		if err := vm.Set(name, value); err != nil {
			return nil, err
		}
	}

	if _, err := vm.RunScript(artifact, src); err != nil {
		return nil, err
	}
	return module.Get("exports"), nil
}

func (c *Checker) loadAMD(vm *goja.Runtime, req *requirer, artifact, src string) (goja.Value, error) {
	var (
		deps    []string
		factory goja.Callable
		calls   int
	)

	define := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		calls++
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("define: factory is not a function"))
		}
		if err := vm.ExportTo(call.Argument(0), &deps); err != nil {
			panic(vm.NewTypeError("define: dependencies must be an array of strings"))
		}
		factory = fn
		return goja.Undefined()
	}).ToObject(vm)
	if err := define.Set("amd", vm.NewObject()); err != nil {
		return nil, err
	}
	if err := vm.Set("define", define); err != nil {
		return nil, err
	}

	if _, err := vm.RunScript(artifact, src); err != nil {
		return nil, err
	}
	if calls != 1 {
		return nil, fmt.Errorf("define called %d times, want 1", calls)
	}

	args := make([]goja.Value, len(deps))
	for i, dep := range deps {
		req.requested = append(req.requested, dep)
		v, err := req.require(dep)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return factory(goja.Undefined(), args...)
}

// CheckAll loads the artifact under every convention and verifies they
// expose the same export keys.
func (c *Checker) CheckAll(ctx context.Context, artifact string) ([]string, error) {
	opts := c.opts
	var want []string

	for _, convention := range Conventions() {
		checker := &Checker{opts: opts, logger: c.logger}
		session, err := checker.Load(ctx, artifact, convention)
		if err != nil {
			return nil, err
		}
		keys := session.Keys()
		if convention == ConventionCommonJS && len(opts.Externals) == 0 {
			opts.Externals = slices.Clone(session.Requested)
		}
		if err := session.Close(ctx); err != nil {
			c.logger.Warn("Failed to close load session", zap.Error(err))
		}

		if want == nil {
			want = keys
			continue
		}
		if !slices.Equal(want, keys) {
			return nil, &ConventionMismatchError{Convention: convention, Want: want, Got: keys}
		}
	}

	c.logger.Info("Artifact loads under every convention",
		zap.String("artifact", artifact),
		zap.Strings("exports", want),
	)
	return want, nil
}
