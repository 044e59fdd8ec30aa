package wasm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime *Runtime
	logger  *zap.Logger
	nextID  atomic.Uint64
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-instance")),
	}
}

// HostFunc implements one imported function. params and results use
// wazero's uint64 encoding (api.EncodeI32, api.EncodeF64, ...).
type HostFunc func(ctx context.Context, params []uint64) ([]uint64, error)

// HostFunction is a function offered to a guest under an import name.
type HostFunction struct {
	Params  []api.ValueType
	Results []api.ValueType
	Fn      HostFunc
}

// HostModule groups host functions under one import module name.
type HostModule struct {
	Name      string
	Functions map[string]HostFunction
}

// ImportSpec describes one function import of a compiled module.
type ImportSpec struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Imports lists the function imports of a compiled module in declaration order.
func Imports(c *CompiledModule) []ImportSpec {
	defs := c.Module.ImportedFunctions()
	specs := make([]ImportSpec, 0, len(defs))
	for _, def := range defs {
		moduleName, name, _ := def.Import()
		specs = append(specs, ImportSpec{
			Module:  moduleName,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	return specs
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate (cache key in the Runtime).
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Host modules instantiated before the guest.
	HostModules []HostModule
}

// Instance represents an instantiated Wasm module.
type Instance struct {
	module  api.Module
	runtime *Runtime

	ID   string
	Name string

	exports map[string]api.Function
}

// Instantiate creates a new instance from a compiled module. Host modules
// are registered first so the guest's imports resolve against them. Host
// module names are global to the Runtime, so a Runtime can only carry one
// set of host modules with a given name.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = fmt.Sprintf("inst-%d", m.nextID.Add(1))
	}

	for _, host := range config.HostModules {
		if err := m.instantiateHostModule(ctx, host); err != nil {
			return nil, &InstantiationError{
				ModuleName: config.ModuleName,
				InstanceID: instanceID,
				Err:        err,
			}
		}
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions() // start section only, no _start

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	exports := make(map[string]api.Function)
	for name := range compiled.Module.ExportedFunctions() {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}

	m.runtime.StoreInstance(instanceID, module)

	m.logger.Debug("Module instantiated",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(exports)),
	)

	return &Instance{
		module:  module,
		runtime: m.runtime,
		ID:      instanceID,
		Name:    config.ModuleName,
		exports: exports,
	}, nil
}

func (m *InstanceManager) instantiateHostModule(ctx context.Context, host HostModule) error {
	builder := m.runtime.runtime.NewHostModuleBuilder(host.Name)

	for name, fn := range host.Functions {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostCall(host.Name, name, fn), fn.Params, fn.Results).
			Export(name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module %q: %w", host.Name, err)
	}
	return nil
}

// hostCall adapts a HostFunc to wazero's stack calling convention. A host
// error aborts the guest call; wazero surfaces the panic value as the error
// of the outer Call.
func hostCall(moduleName, name string, fn HostFunction) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		params := make([]uint64, len(fn.Params))
		copy(params, stack[:len(fn.Params)])

		results, err := fn.Fn(ctx, params)
		if err != nil {
			panic(&HostFunctionError{FunctionName: moduleName + "." + name, Err: err})
		}
		if len(results) != len(fn.Results) {
			panic(&HostFunctionError{
				FunctionName: moduleName + "." + name,
				Err:          fmt.Errorf("returned %d results, want %d", len(results), len(fn.Results)),
			})
		}
		copy(stack, results)
	}
}

// Call invokes an exported function.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, ok := i.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	return fn.Call(ctx, params...)
}

// Function returns the definition of an exported function.
func (i *Instance) Function(name string) (api.FunctionDefinition, bool) {
	fn, ok := i.exports[name]
	if !ok {
		return nil, false
	}
	return fn.Definition(), true
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}
