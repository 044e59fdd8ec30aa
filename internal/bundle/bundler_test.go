package bundle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/woxQAQ/umdpack/internal/descriptor"
	"github.com/woxQAQ/umdpack/internal/resolve"
	"github.com/woxQAQ/umdpack/internal/transform"
	"go.uber.org/zap/zaptest"
)

// addWasm exports add(i32, i32) -> i32.
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func writeProject(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func scenarioFiles() map[string][]byte {
	return map[string][]byte{
		"package.json": []byte(`{"name": "zokrates-js", "version": "1.0.0"}`),
		"index.js": []byte(`import { add } from "./lib";
import instantiate from "./module.wasm";
import foo from "foo";

export const version = pkg.version;
export function sum(a, b) {
  return add(instantiate(), a, b);
}
export function shout() {
  return foo.shout();
}
`),
		"lib.ts": []byte(`export function add(instance: WebAssembly.Instance, a: number, b: number): number {
  const fn = instance.exports.add as (x: number, y: number) => number;
  return fn(a, b);
}
`),
		"module.wasm":               addWasm,
		"node_modules/foo/index.js": []byte(`exports.shout = function () { return "FOO_INTERNAL_MARKER"; };`),
	}
}

func build(t *testing.T, d *descriptor.Descriptor) (*Result, error) {
	t.Helper()
	ctx := context.Background()

	b, err := NewBundler(ctx, d, DefaultOptions(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewBundler() failed: %v", err)
	}
	defer b.Close(ctx)

	return b.Build(ctx)
}

func TestBuildScenario(t *testing.T) {
	dir := writeProject(t, scenarioFiles())
	d := descriptor.Default(dir)

	result, err := build(t, d)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if result.OutputPath != filepath.Join(dir, "dist", "umd", "index.js") {
		t.Errorf("output path = %s", result.OutputPath)
	}

	keys := make([]string, len(result.Modules))
	for i, m := range result.Modules {
		keys[i] = m.Key
	}
	if diff := cmp.Diff([]string{"index.js", "lib.ts", "module.wasm"}, keys); diff != "" {
		t.Errorf("module order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"foo"}, result.Externals); diff != "" {
		t.Errorf("externals mismatch (-want +got):\n%s", diff)
	}

	out, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	code := string(out)

	if !strings.Contains(code, `"1.0.0"`) {
		t.Error("package version was not embedded")
	}
	if strings.Contains(code, "FOO_INTERNAL_MARKER") {
		t.Error("external dependency was inlined")
	}
	if !strings.Contains(code, `require("foo")`) {
		t.Error("external dependency is not required at load time")
	}
	if !strings.Contains(code, `"zokrates-js"`) {
		t.Error("library name missing from wrapper")
	}
}

func TestBuildDeterministic(t *testing.T) {
	dir := writeProject(t, scenarioFiles())
	d := descriptor.Default(dir)

	first, err := build(t, d)
	if err != nil {
		t.Fatalf("first Build() failed: %v", err)
	}
	firstBytes, err := os.ReadFile(first.OutputPath)
	if err != nil {
		t.Fatal(err)
	}

	second, err := build(t, d)
	if err != nil {
		t.Fatalf("second Build() failed: %v", err)
	}
	secondBytes, err := os.ReadFile(second.OutputPath)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Error("builds of identical inputs differ")
	}
	if first.SHA256 != second.SHA256 {
		t.Errorf("digests differ: %s vs %s", first.SHA256, second.SHA256)
	}
}

func TestBuildWasmLoaderPerAsset(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte("module.exports = [require('./a.wasm'), require('./b/b.wasm')];\n"),
		"a.wasm":       addWasm,
		"b/b.wasm":     addWasm,
	})

	result, err := build(t, descriptor.Default(dir))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	out, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}

	if n := bytes.Count(out, []byte("new WebAssembly.Module(")); n != 2 {
		t.Errorf("expected 2 loader invocations, found %d", n)
	}
	if bytes.Contains(out, []byte("\x00asm")) {
		t.Error("raw wasm binary found in output")
	}
}

func TestBuildWasmDebugOptions(t *testing.T) {
	ctx := context.Background()
	dir := writeProject(t, scenarioFiles())

	opts := DefaultOptions()
	opts.WasmDebug = true
	b, err := NewBundler(ctx, descriptor.Default(dir), opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewBundler() failed: %v", err)
	}
	defer b.Close(ctx)

	if _, err := b.Build(ctx); err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
}

func TestBuildMissingImport(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte(`module.exports = require("./missing");`),
	})
	d := descriptor.Default(dir)

	_, err := build(t, d)
	var rerr *resolve.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %T (%v)", err, err)
	}
	if rerr.Specifier != "./missing" {
		t.Errorf("specifier = %s, want ./missing", rerr.Specifier)
	}
	if _, err := os.Stat(d.OutputFile()); !os.IsNotExist(err) {
		t.Error("failed build left an artifact behind")
	}
}

func TestBuildMissingEntry(t *testing.T) {
	dir := writeProject(t, map[string][]byte{"package.json": []byte(`{}`)})

	_, err := build(t, descriptor.Default(dir))
	if _, ok := err.(*resolve.ResolutionError); !ok {
		t.Errorf("expected ResolutionError, got %T", err)
	}
}

func TestBuildExcludedTypeScript(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json":   []byte(`{}`),
		"index.js":       []byte(`module.exports = require("./test/helper");`),
		"test/helper.ts": []byte(`export const x: number = 1;`),
	})

	_, err := build(t, descriptor.Default(dir))
	var uerr *transform.UnhandledModuleError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnhandledModuleError, got %T (%v)", err, err)
	}
	if !strings.HasSuffix(uerr.Path, filepath.Join("test", "helper.ts")) {
		t.Errorf("path = %s", uerr.Path)
	}
}

func TestBuildTransformError(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte(`module.exports = require("./lib");`),
		"lib.ts":       []byte(`export const x: = 1;`),
	})

	_, err := build(t, descriptor.Default(dir))
	var terr *transform.TransformError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransformError, got %T (%v)", err, err)
	}
	if terr.Rule != "rules[0](typescript)" {
		t.Errorf("rule = %s", terr.Rule)
	}
}

func TestBuildInvalidWasm(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte(`module.exports = require("./module.wasm");`),
		"module.wasm":  append(append([]byte{}, addWasm[:8]...), 0x01, 0x07, 0x01),
	})

	_, err := build(t, descriptor.Default(dir))
	var aerr *transform.AssetLoadError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AssetLoadError, got %T (%v)", err, err)
	}
}

func TestBuildCycle(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte(`exports.a = 1; exports.b = require("./b");`),
		"b.js":         []byte(`var index = require("./index"); exports.fromA = function () { return index.a; };`),
	})

	result, err := build(t, descriptor.Default(dir))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(result.Modules) != 2 {
		t.Errorf("expected 2 modules, got %d", len(result.Modules))
	}
	if !strings.Contains(result.Modules[1].Code, "require(0)") {
		t.Errorf("cyclic require not rewritten:\n%s", result.Modules[1].Code)
	}
}

func TestBuildRequireTextInLiterals(t *testing.T) {
	tests := []struct {
		name  string
		index string
	}{
		{"string_literal", `export const help = 'call require("./missing") to load';`},
		{"template_literal", "export const s = `x require(\"./b\") y`;"},
		{"regular_expression", `export const re = /require\("\.\/b"\)/;`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string][]byte{
				"package.json": []byte(`{}`),
				"index.js":     []byte(tt.index),
				"b.js":         []byte(`exports.b = 1;`),
			})

			result, err := build(t, descriptor.Default(dir))
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if len(result.Modules) != 1 {
				t.Fatalf("expected only the entry module, got %d modules", len(result.Modules))
			}
			code := result.Modules[0].Code
			if strings.Contains(code, "require(1)") || strings.Contains(code, "require(0)") {
				t.Errorf("literal text was rewritten:\n%s", code)
			}
			if len(result.Modules[0].Imports) != 0 {
				t.Errorf("unexpected imports: %+v", result.Modules[0].Imports)
			}
		})
	}
}

func TestBuildRequireNextToLiteral(t *testing.T) {
	dir := writeProject(t, map[string][]byte{
		"package.json": []byte(`{}`),
		"index.js":     []byte("exports.s = `see require(\"./b\")`;\nexports.b = require(\"./b\");\n"),
		"b.js":         []byte(`exports.b = 1;`),
	})

	result, err := build(t, descriptor.Default(dir))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	code := result.Modules[0].Code
	if !strings.Contains(code, "exports.b = require(1)") {
		t.Errorf("static require not rewritten:\n%s", code)
	}
	if !strings.Contains(code, `see require(\"./b\")`) && !strings.Contains(code, `see require("./b")`) {
		t.Errorf("template contents changed:\n%s", code)
	}
}

func TestBuildDevelopmentAnnotates(t *testing.T) {
	dir := writeProject(t, scenarioFiles())
	d := descriptor.Default(dir)
	d.Mode = descriptor.ModeDevelopment

	result, err := build(t, d)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	out, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"/* 0: index.js (default(javascript)) */",
		"/* 1: lib.ts (rules[0](typescript)) */",
		"/* 2: module.wasm (rules[1](wasm)) */",
		"var __umd_modules__",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("development output missing %q", want)
		}
	}
}

func TestMetafile(t *testing.T) {
	dir := writeProject(t, scenarioFiles())

	result, err := build(t, descriptor.Default(dir))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	mf := NewMetafile(result, dir)

	out, ok := mf.Outputs["dist/umd/index.js"]
	if !ok {
		t.Fatalf("output missing from metafile: %v", mf.Outputs)
	}
	if out.EntryPoint != "index.js" || out.Bytes != result.Bytes {
		t.Errorf("unexpected output entry: %+v", out)
	}
	if diff := cmp.Diff([]MetafileImport{{Path: "foo", Kind: "require-call", External: true}}, out.Imports); diff != "" {
		t.Errorf("output imports mismatch (-want +got):\n%s", diff)
	}

	index := mf.Inputs["index.js"]
	var external, internal int
	for _, imp := range index.Imports {
		if imp.External {
			external++
		} else {
			internal++
		}
	}
	if external != 1 || internal != 2 {
		t.Errorf("index.js imports: %d external, %d internal", external, internal)
	}

	path := filepath.Join(dir, "dist", "meta.json")
	if err := WriteMetafile(result, dir, path); err != nil {
		t.Fatalf("WriteMetafile() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("metafile not written: %v", err)
	}
}
