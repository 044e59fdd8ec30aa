package loadcheck

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/woxQAQ/umdpack/internal/resolve"
)

var requireExtensions = []string{".js", ".json"}

// requirer provides external packages to an artifact the way a CommonJS
// host would: from a modules directory, one evaluation per file.
type requirer struct {
	vm     *goja.Runtime
	dir    string
	logger *zap.Logger

	cache map[string]*goja.Object
	// requested records the top-level specifiers the artifact asked for.
	requested []string
	// failed holds the error behind the last thrown require exception.
	failed error
}

func newRequirer(vm *goja.Runtime, dir string, logger *zap.Logger) *requirer {
	return &requirer{
		vm:     vm,
		dir:    dir,
		logger: logger,
		cache:  make(map[string]*goja.Object),
	}
}

// jsRequire is the require function handed to the artifact.
func (r *requirer) jsRequire(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	r.requested = append(r.requested, name)
	return r.throwOnError(r.require(name))
}

func (r *requirer) throwOnError(v goja.Value, err error) goja.Value {
	if err != nil {
		r.failed = err
		panic(r.vm.NewGoError(err))
	}
	return v
}

// require loads a bare specifier from the modules directory.
func (r *requirer) require(name string) (goja.Value, error) {
	pkg := resolve.PackageName(name)
	pkgDir := filepath.Join(r.dir, filepath.FromSlash(pkg))

	info, err := os.Stat(pkgDir)
	if err != nil || !info.IsDir() {
		return nil, &ExternalizationError{Name: name, Dir: r.dir}
	}

	var file string
	if sub := strings.TrimPrefix(strings.TrimPrefix(name, pkg), "/"); sub != "" {
		file, err = resolveFile(filepath.Join(pkgDir, filepath.FromSlash(sub)))
	} else {
		file, err = packageMain(pkgDir)
	}
	if err != nil {
		return nil, &ExternalizationError{Name: name, Dir: r.dir, Err: err}
	}

	exports, err := r.load(file)
	if err != nil {
		return nil, &ExternalizationError{Name: name, Dir: r.dir, Err: err}
	}
	return exports, nil
}

// requireFrom resolves a specifier seen inside a package file.
func (r *requirer) requireFrom(importer, spec string) (goja.Value, error) {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return r.require(spec)
	}
	file, err := resolveFile(filepath.Join(filepath.Dir(importer), filepath.FromSlash(spec)))
	if err != nil {
		return nil, err
	}
	return r.load(file)
}

func (r *requirer) load(file string) (goja.Value, error) {
	if cached, ok := r.cache[file]; ok {
		return cached.Get("exports"), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	r.cache[file] = module

	if filepath.Ext(file) == ".json" {
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if err := module.Set("exports", r.vm.ToValue(value)); err != nil {
			return nil, err
		}
		return module.Get("exports"), nil
	}

	wrapped := "(function (module, exports, require) {\n" + string(data) + "\n})"
	fnValue, err := r.vm.RunScript(file, wrapped)
	if err != nil {
		delete(r.cache, file)
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		delete(r.cache, file)
		return nil, fmt.Errorf("%s: module wrapper is not callable", file)
	}

	localRequire := func(call goja.FunctionCall) goja.Value {
		return r.throwOnError(r.requireFrom(file, call.Argument(0).String()))
	}
	if _, err := fn(exports, module, exports, r.vm.ToValue(localRequire)); err != nil {
		delete(r.cache, file)
		return nil, err
	}

	r.logger.Debug("External module evaluated", zap.String("file", file))
	return module.Get("exports"), nil
}

// packageMain returns the entry file named by package.json, or index.js.
func packageMain(pkgDir string) (string, error) {
	main := "index.js"
	if data, err := os.ReadFile(filepath.Join(pkgDir, "package.json")); err == nil {
		var manifest struct {
			Main string `json:"main"`
		}
		if err := json.Unmarshal(data, &manifest); err != nil {
			return "", fmt.Errorf("package.json: %w", err)
		}
		if manifest.Main != "" {
			main = path.Clean(manifest.Main)
		}
	}
	return resolveFile(filepath.Join(pkgDir, filepath.FromSlash(main)))
}

// resolveFile tries the path as written, with each extension, and as a
// directory index.
func resolveFile(p string) (string, error) {
	candidates := []string{p}
	for _, ext := range requireExtensions {
		candidates = append(candidates, p+ext)
	}
	for _, ext := range requireExtensions {
		candidates = append(candidates, filepath.Join(p, "index"+ext))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("cannot find module file %s", p)
}
