package bundle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/woxQAQ/umdpack/internal/transform"
)

// umdOptions carries what the wrapper needs from the descriptor.
type umdOptions struct {
	Library      string
	GlobalObject string
	// Externals are the external specifiers, in factory parameter order.
	Externals []string
	Modules   []*Module
	// Annotate adds a comment naming each module's file.
	Annotate bool
}

const base64Decoder = `function %s(s) {
  var chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/";
  var lookup = {};
  for (var i = 0; i < chars.length; i++) lookup[chars.charAt(i)] = i;
  var pad = 0;
  if (s.charAt(s.length - 1) === "=") pad++;
  if (s.charAt(s.length - 2) === "=") pad++;
  var out = new Uint8Array(s.length / 4 * 3 - pad);
  var p = 0;
  for (var j = 0; j < s.length; j += 4) {
    var n = (lookup[s.charAt(j)] << 18) | (lookup[s.charAt(j + 1)] << 12) |
      ((lookup[s.charAt(j + 2)] || 0) << 6) | (lookup[s.charAt(j + 3)] || 0);
    if (p < out.length) out[p++] = (n >> 16) & 255;
    if (p < out.length) out[p++] = (n >> 8) & 255;
    if (p < out.length) out[p++] = n & 255;
  }
  return out;
}
`

const moduleRuntime = `var __umd_cache__ = {};
function __umd_require__(id) {
  if (typeof id === "string") {
    if (Object.prototype.hasOwnProperty.call(__umd_externals__, id)) return __umd_externals__[id];
    throw new Error("Cannot find module '" + id + "'");
  }
  var cached = __umd_cache__[id];
  if (cached !== undefined) return cached.exports;
  var module = __umd_cache__[id] = { exports: {} };
  __umd_modules__[id].call(module.exports, module, module.exports, __umd_require__);
  return module.exports;
}
return __umd_require__(0);
`

// renderUMD assembles the artifact. The wrapper supports, in order of
// precedence: CommonJS2 (module.exports), AMD (define), CommonJS
// (exports[library]) and a property on the global object.
func renderUMD(opts umdOptions) string {
	var b strings.Builder

	lib := jsString(opts.Library)
	requires := make([]string, len(opts.Externals))
	roots := make([]string, len(opts.Externals))
	amdDeps := make([]string, len(opts.Externals))
	params := make([]string, len(opts.Externals))
	for i, name := range opts.Externals {
		q := jsString(name)
		requires[i] = "require(" + q + ")"
		roots[i] = "root[" + q + "]"
		amdDeps[i] = q
		params[i] = fmt.Sprintf("__umd_external_%d__", i)
	}

	fmt.Fprintf(&b, `(function webpackUniversalModuleDefinition(root, factory) {
  if (typeof exports === 'object' && typeof module === 'object')
    module.exports = factory(%[1]s);
  else if (typeof define === 'function' && define.amd)
    define([%[2]s], factory);
  else if (typeof exports === 'object')
    exports[%[3]s] = factory(%[1]s);
  else
    root[%[3]s] = factory(%[4]s);
})(%[5]s, function (%[6]s) {
`,
		strings.Join(requires, ", "),
		strings.Join(amdDeps, ", "),
		lib,
		strings.Join(roots, ", "),
		opts.GlobalObject,
		strings.Join(params, ", "),
	)

	b.WriteString("var __umd_externals__ = {")
	for i, name := range opts.Externals {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n  %s: %s", jsString(name), params[i])
	}
	b.WriteString("\n};\n")

	if needsDecoder(opts.Modules) {
		fmt.Fprintf(&b, base64Decoder, transform.DecodeBase64Func)
	}

	b.WriteString("var __umd_modules__ = [\n")
	for i, m := range opts.Modules {
		if opts.Annotate {
			fmt.Fprintf(&b, "/* %d: %s (%s) */\n", m.ID, m.Key, m.Rule)
		}
		b.WriteString("function (module, exports, require) {\n")
		b.WriteString(m.Code)
		if !strings.HasSuffix(m.Code, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("}")
		if i < len(opts.Modules)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("];\n")

	b.WriteString(moduleRuntime)
	b.WriteString("});\n")

	return b.String()
}

func needsDecoder(modules []*Module) bool {
	for _, m := range modules {
		if strings.Contains(m.Code, transform.DecodeBase64Func+"(") {
			return true
		}
	}
	return false
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}
