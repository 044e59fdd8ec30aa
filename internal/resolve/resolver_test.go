package resolve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveExtensionOrder(t *testing.T) {
	dir := t.TempDir()
	importer := filepath.Join(dir, "index.js")
	touch(t, importer)
	touch(t, filepath.Join(dir, "lib.ts"))
	touch(t, filepath.Join(dir, "lib.json"))

	r := NewResolver([]string{".js", ".ts", ".json"}, nil, zap.NewNop())

	res, err := r.Resolve("./lib", importer)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "lib.ts") {
		t.Errorf("path = %s, want lib.ts (first matching extension)", res.Path)
	}

	// Declared order decides, not file type.
	r = NewResolver([]string{".json", ".ts"}, nil, zap.NewNop())
	res, err = r.Resolve("./lib", importer)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "lib.json") {
		t.Errorf("path = %s, want lib.json", res.Path)
	}
}

func TestResolveExactAndIndex(t *testing.T) {
	dir := t.TempDir()
	importer := filepath.Join(dir, "src", "index.js")
	touch(t, importer)
	touch(t, filepath.Join(dir, "module.wasm"))
	touch(t, filepath.Join(dir, "src", "util", "index.ts"))

	r := NewResolver([]string{".js", ".ts", ".json"}, nil, zap.NewNop())

	res, err := r.Resolve("../module.wasm", importer)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "module.wasm") {
		t.Errorf("path = %s, want module.wasm", res.Path)
	}

	res, err = r.Resolve("./util", importer)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.Path != filepath.Join(dir, "src", "util", "index.ts") {
		t.Errorf("path = %s, want util/index.ts", res.Path)
	}
}

func TestResolveMissing(t *testing.T) {
	dir := t.TempDir()
	importer := filepath.Join(dir, "index.js")
	touch(t, importer)

	r := NewResolver([]string{".js", ".ts", ".json"}, nil, zap.NewNop())

	_, err := r.Resolve("./missing", importer)
	rerr, ok := err.(*ResolutionError)
	if !ok {
		t.Fatalf("expected ResolutionError, got %T", err)
	}
	if rerr.Specifier != "./missing" {
		t.Errorf("specifier = %s, want ./missing", rerr.Specifier)
	}

	want := []string{
		filepath.Join(dir, "missing"),
		filepath.Join(dir, "missing.js"),
		filepath.Join(dir, "missing.ts"),
		filepath.Join(dir, "missing.json"),
		filepath.Join(dir, "missing", "index.js"),
		filepath.Join(dir, "missing", "index.ts"),
		filepath.Join(dir, "missing", "index.json"),
	}
	if diff := cmp.Diff(want, rerr.Tried); diff != "" {
		t.Errorf("tried mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(err.Error(), "./missing") {
		t.Errorf("error should name the specifier: %v", err)
	}
}

func TestResolveEntry(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver([]string{".js"}, nil, zap.NewNop())

	if _, err := r.ResolveEntry(filepath.Join(dir, "index.js")); err == nil {
		t.Fatal("ResolveEntry() should fail for a missing entry")
	}

	touch(t, filepath.Join(dir, "index.js"))
	path, err := r.ResolveEntry(filepath.Join(dir, "index.js"))
	if err != nil {
		t.Fatalf("ResolveEntry() failed: %v", err)
	}
	if path != filepath.Join(dir, "index.js") {
		t.Errorf("path = %s", path)
	}
}

func TestResolveBare(t *testing.T) {
	dir := t.TempDir()
	modules := filepath.Join(dir, "node_modules")
	if err := os.MkdirAll(filepath.Join(modules, "foo"), 0o755); err != nil {
		t.Fatal(err)
	}
	importer := filepath.Join(dir, "index.js")
	touch(t, importer)

	ext, err := ScanExternals(modules, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver([]string{".js"}, ext, zap.NewNop())

	res, err := r.Resolve("foo/lib/sub", importer)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if !res.IsExternal() || res.External != "foo/lib/sub" {
		t.Errorf("expected external foo/lib/sub, got %+v", res)
	}

	if _, err := r.Resolve("bar", importer); err == nil {
		t.Error("Resolve() should fail for a bare specifier that is not external")
	} else if _, ok := err.(*ResolutionError); !ok {
		t.Errorf("expected ResolutionError, got %T", err)
	}
}
