package transform

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/woxQAQ/umdpack/internal/descriptor"
	"go.uber.org/zap"
)

// Target is the language level of every emitted module and of the
// minified bundle. Module code is parsed again when the bundle links
// require calls, so newer syntax is lowered to what that parser reads.
const Target = api.ES2017

// ScriptTransformer compiles TypeScript, JavaScript and JSON sources to
// CommonJS with esbuild. Defined constants are substituted during the same
// pass, except in JSON.
type ScriptTransformer struct {
	kind    descriptor.TransformKind
	loader  api.Loader
	defines descriptor.Defines
	logger  *zap.Logger
}

// NewTypeScriptTransformer strips types and converts module syntax.
func NewTypeScriptTransformer(defines descriptor.Defines, logger *zap.Logger) *ScriptTransformer {
	return newScriptTransformer(descriptor.TransformTypeScript, api.LoaderTS, defines, logger)
}

// NewJavaScriptTransformer converts ES module syntax to CommonJS.
func NewJavaScriptTransformer(defines descriptor.Defines, logger *zap.Logger) *ScriptTransformer {
	return newScriptTransformer(descriptor.TransformJavaScript, api.LoaderJS, defines, logger)
}

// NewJSONTransformer validates JSON and exports it as a module.
func NewJSONTransformer(logger *zap.Logger) *ScriptTransformer {
	return newScriptTransformer(descriptor.TransformJSON, api.LoaderJSON, nil, logger)
}

func newScriptTransformer(kind descriptor.TransformKind, loader api.Loader, defines descriptor.Defines, logger *zap.Logger) *ScriptTransformer {
	return &ScriptTransformer{
		kind:    kind,
		loader:  loader,
		defines: defines,
		logger:  logger.With(zap.String("component", "transform-"+string(kind))),
	}
}

func (t *ScriptTransformer) Kind() descriptor.TransformKind {
	return t.kind
}

func (t *ScriptTransformer) Transform(ctx context.Context, src *Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	result := api.Transform(string(src.Data), api.TransformOptions{
		Loader:     t.loader,
		Format:     api.FormatCommonJS,
		Target:     Target,
		Sourcefile: src.Key,
		Define:     esbuildDefine(t.defines),
		Charset:    api.CharsetUTF8,
		LogLevel:   api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return "", &TransformError{
			Path: src.Path,
			Rule: src.Rule.Name(),
			Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{
				Kind: api.ErrorMessage,
			}),
		}
	}

	for _, w := range result.Warnings {
		fields := []zap.Field{zap.String("file", src.Key), zap.String("warning", w.Text)}
		if w.Location != nil {
			fields = append(fields, zap.Int("line", w.Location.Line), zap.Int("column", w.Location.Column))
		}
		t.logger.Warn("Transform warning", fields...)
	}

	return string(result.Code), nil
}

// esbuildDefine builds esbuild's define option from the substitution table.
func esbuildDefine(defines descriptor.Defines) map[string]string {
	if len(defines) == 0 {
		return nil
	}
	out := make(map[string]string, len(defines))
	for _, identifier := range defines.Identifiers() {
		if value, ok := defines.Substitute(identifier); ok {
			out[identifier] = value
		}
	}
	return out
}
