package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/woxQAQ/umdpack/internal/descriptor"
	"github.com/woxQAQ/umdpack/internal/wasm"
	"go.uber.org/zap"
)

// DecodeBase64Func is the bundle runtime helper that turns an embedded
// payload back into a Uint8Array. The bundle emits it once, in scope of
// every module function.
const DecodeBase64Func = "__umd_decode_base64__"

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// WasmTransformer embeds a WebAssembly binary as a module exporting a
// factory: calling it with an import object instantiates the binary.
type WasmTransformer struct {
	loader   *wasm.ModuleLoader
	validate bool
	logger   *zap.Logger
}

// NewWasmTransformer creates the wasm transformer. With validate set,
// every binary is compiled by the runtime before it is embedded.
func NewWasmTransformer(loader *wasm.ModuleLoader, validate bool, logger *zap.Logger) *WasmTransformer {
	return &WasmTransformer{
		loader:   loader,
		validate: validate,
		logger:   logger.With(zap.String("component", "transform-wasm")),
	}
}

func (t *WasmTransformer) Kind() descriptor.TransformKind {
	return descriptor.TransformWasm
}

func (t *WasmTransformer) Transform(ctx context.Context, src *Source) (string, error) {
	if !bytes.HasPrefix(src.Data, wasmMagic) {
		return "", &AssetLoadError{
			Path: src.Path,
			Rule: src.Rule.Name(),
			Err:  errors.New("missing WebAssembly magic header"),
		}
	}

	if t.validate {
		compiled, err := t.loader.LoadModuleFromMemory(ctx, src.Path, src.Data)
		if err != nil {
			return "", &AssetLoadError{Path: src.Path, Rule: src.Rule.Name(), Err: err}
		}
		t.logger.Debug("Wasm asset validated",
			zap.String("file", src.Key),
			zap.Int64("size_bytes", compiled.SizeBytes),
			zap.Strings("exports", compiled.Exports()),
		)
	}

	return WasmModule(src.Data), nil
}

// WasmModule returns the CommonJS body embedding data.
func WasmModule(data []byte) string {
	return fmt.Sprintf(`var bytes = %s(%q);
module.exports = function (imports) {
  return new WebAssembly.Instance(new WebAssembly.Module(bytes), imports || {});
};
`, DecodeBase64Func, base64.StdEncoding.EncodeToString(data))
}
