package loadcheck

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/umdpack/internal/wasm"
)

// webAssembly implements the subset of the WebAssembly JS API a bundled
// module factory uses: Module, Instance and validate. Every Instance gets
// its own wazero runtime because host module names are runtime-global.
type webAssembly struct {
	ctx    context.Context
	vm     *goja.Runtime
	logger *zap.Logger
	config wasm.RuntimeConfig

	validator *wasm.Runtime
	loader    *wasm.ModuleLoader

	modules   map[*goja.Object][]byte
	instances []*wasm.Instance
	runtimes  []*wasm.Runtime
}

func newWebAssembly(ctx context.Context, vm *goja.Runtime, config wasm.RuntimeConfig, logger *zap.Logger) (*webAssembly, error) {
	logger = logger.With(zap.String("component", "webassembly"))

	validator, err := wasm.NewRuntime(ctx, logger, &config)
	if err != nil {
		return nil, err
	}

	return &webAssembly{
		ctx:       ctx,
		vm:        vm,
		logger:    logger,
		config:    config,
		validator: validator,
		loader:    wasm.NewModuleLoader(validator, logger),
		modules:   make(map[*goja.Object][]byte),
	}, nil
}

// install defines the WebAssembly global.
func (w *webAssembly) install() error {
	obj := w.vm.NewObject()
	if err := obj.Set("Module", w.newModule); err != nil {
		return err
	}
	if err := obj.Set("Instance", w.newInstance); err != nil {
		return err
	}
	if err := obj.Set("validate", w.validate); err != nil {
		return err
	}
	return w.vm.Set("WebAssembly", obj)
}

// close releases every instance, then the runtimes that hosted them.
func (w *webAssembly) close(ctx context.Context) error {
	var firstErr error
	for _, inst := range w.instances {
		if err := inst.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.instances = nil
	for _, rt := range w.runtimes {
		if err := rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.runtimes = nil
	if err := w.validator.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (w *webAssembly) validate(call goja.FunctionCall) goja.Value {
	data, err := w.bytes(call.Argument(0))
	if err != nil {
		panic(w.vm.NewTypeError("WebAssembly.validate(): %v", err))
	}
	_, err = w.loader.LoadModuleFromBytes(w.ctx, data)
	return w.vm.ToValue(err == nil)
}

func (w *webAssembly) newModule(call goja.ConstructorCall) *goja.Object {
	data, err := w.bytes(call.Argument(0))
	if err != nil {
		panic(w.vm.NewTypeError("WebAssembly.Module(): %v", err))
	}
	if _, err := w.loader.LoadModuleFromBytes(w.ctx, data); err != nil {
		panic(w.vm.NewGoError(err))
	}
	w.modules[call.This] = data
	return call.This
}

func (w *webAssembly) newInstance(call goja.ConstructorCall) *goja.Object {
	moduleObj := call.Argument(0).ToObject(w.vm)
	data, ok := w.modules[moduleObj]
	if !ok {
		panic(w.vm.NewTypeError("WebAssembly.Instance(): argument 0 must be a WebAssembly.Module"))
	}

	var importObj *goja.Object
	if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		importObj = arg.ToObject(w.vm)
	}

	exports, err := w.instantiate(data, importObj)
	if err != nil {
		panic(w.vm.NewGoError(err))
	}
	if err := call.This.Set("exports", exports); err != nil {
		panic(w.vm.NewGoError(err))
	}
	return call.This
}

func (w *webAssembly) instantiate(data []byte, importObj *goja.Object) (*goja.Object, error) {
	config := w.config
	rt, err := wasm.NewRuntime(w.ctx, w.logger, &config)
	if err != nil {
		return nil, err
	}
	w.runtimes = append(w.runtimes, rt)

	compiled, err := wasm.NewModuleLoader(rt, w.logger).LoadModuleFromBytes(w.ctx, data)
	if err != nil {
		return nil, err
	}

	hostModules, err := w.hostModules(compiled, importObj)
	if err != nil {
		return nil, err
	}

	inst, err := wasm.NewInstanceManager(rt, w.logger).Instantiate(w.ctx, &wasm.InstanceConfig{
		ModuleName:  compiled.Name,
		HostModules: hostModules,
	})
	if err != nil {
		return nil, err
	}
	w.instances = append(w.instances, inst)

	exports := w.vm.NewObject()
	for _, name := range compiled.Exports() {
		def, ok := inst.Function(name)
		if !ok {
			continue
		}
		if err := exports.Set(name, w.exportFunc(inst, name, def)); err != nil {
			return nil, err
		}
	}
	return exports, nil
}

// hostModules turns the JS import object into wazero host modules, one
// per import module name.
func (w *webAssembly) hostModules(compiled *wasm.CompiledModule, importObj *goja.Object) ([]wasm.HostModule, error) {
	var (
		order   []string
		modules = make(map[string]wasm.HostModule)
	)

	for _, spec := range wasm.Imports(compiled) {
		if importObj == nil {
			return nil, fmt.Errorf("import %s.%s: no import object", spec.Module, spec.Name)
		}
		nsValue := importObj.Get(spec.Module)
		if nsValue == nil || goja.IsUndefined(nsValue) || goja.IsNull(nsValue) {
			return nil, fmt.Errorf("import %s.%s: module is not an object", spec.Module, spec.Name)
		}
		fn, ok := goja.AssertFunction(nsValue.ToObject(w.vm).Get(spec.Name))
		if !ok {
			return nil, fmt.Errorf("import %s.%s: not a function", spec.Module, spec.Name)
		}

		host, seen := modules[spec.Module]
		if !seen {
			host = wasm.HostModule{Name: spec.Module, Functions: make(map[string]wasm.HostFunction)}
			order = append(order, spec.Module)
		}
		host.Functions[spec.Name] = wasm.HostFunction{
			Params:  spec.Params,
			Results: spec.Results,
			Fn:      w.importFunc(fn, spec),
		}
		modules[spec.Module] = host
	}

	hosts := make([]wasm.HostModule, 0, len(order))
	for _, name := range order {
		hosts = append(hosts, modules[name])
	}
	return hosts, nil
}

func (w *webAssembly) importFunc(fn goja.Callable, spec wasm.ImportSpec) wasm.HostFunc {
	return func(_ context.Context, params []uint64) ([]uint64, error) {
		args := make([]goja.Value, len(params))
		for i, p := range params {
			args[i] = w.decode(p, spec.Params[i])
		}
		res, err := fn(goja.Undefined(), args...)
		if err != nil {
			return nil, err
		}
		results := make([]uint64, len(spec.Results))
		if len(results) > 0 {
			results[0] = encode(res, spec.Results[0])
		}
		return results, nil
	}
}

func (w *webAssembly) exportFunc(inst *wasm.Instance, name string, def api.FunctionDefinition) func(goja.FunctionCall) goja.Value {
	paramTypes := def.ParamTypes()
	resultTypes := def.ResultTypes()

	return func(call goja.FunctionCall) goja.Value {
		params := make([]uint64, len(paramTypes))
		for i, t := range paramTypes {
			params[i] = encode(call.Argument(i), t)
		}
		results, err := inst.Call(w.ctx, name, params...)
		if err != nil {
			panic(w.vm.NewGoError(err))
		}
		if len(results) == 0 || len(resultTypes) == 0 {
			return goja.Undefined()
		}
		return w.decode(results[0], resultTypes[0])
	}
}

// bytes reads a Uint8Array, an ArrayBuffer or an array of numbers.
func (w *webAssembly) bytes(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("expected a buffer source")
	}
	switch exported := v.Export().(type) {
	case goja.ArrayBuffer:
		return append([]byte(nil), exported.Bytes()...), nil
	case []byte:
		return append([]byte(nil), exported...), nil
	}

	obj := v.ToObject(w.vm)
	lengthValue := obj.Get("length")
	if lengthValue == nil || goja.IsUndefined(lengthValue) {
		return nil, fmt.Errorf("expected a buffer source")
	}

	n := lengthValue.ToInteger()
	data := make([]byte, n)
	for i := int64(0); i < n; i++ {
		data[i] = byte(obj.Get(strconv.FormatInt(i, 10)).ToInteger())
	}
	return data, nil
}

func encode(v goja.Value, t api.ValueType) uint64 {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(v.ToInteger()))
	case api.ValueTypeI64:
		return api.EncodeI64(v.ToInteger())
	case api.ValueTypeF32:
		return api.EncodeF32(float32(v.ToFloat()))
	case api.ValueTypeF64:
		return api.EncodeF64(v.ToFloat())
	default:
		return 0
	}
}

func (w *webAssembly) decode(v uint64, t api.ValueType) goja.Value {
	switch t {
	case api.ValueTypeI32:
		return w.vm.ToValue(api.DecodeI32(v))
	case api.ValueTypeI64:
		return w.vm.ToValue(int64(v))
	case api.ValueTypeF32:
		return w.vm.ToValue(api.DecodeF32(v))
	case api.ValueTypeF64:
		return w.vm.ToValue(api.DecodeF64(v))
	default:
		return goja.Undefined()
	}
}
