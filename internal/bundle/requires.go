package bundle

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// requireCall is a static require of a module: a call to the free
// identifier require with a single string literal argument.
type requireCall struct {
	Specifier string
	// Start and End are the byte offsets of the string literal argument.
	Start int
	End   int
}

var (
	astPackage         = reflect.TypeOf(ast.Program{}).PkgPath()
	callExpressionType = reflect.TypeOf((*ast.CallExpression)(nil))
)

// findRequires parses module code and returns its static require calls in
// source order. Text that only looks like a call, in strings, templates,
// regular expressions or comments, is not reported.
func findRequires(name, code string) ([]requireCall, error) {
	program, err := parser.ParseFile(nil, name, code, 0)
	if err != nil {
		return nil, &ModuleParseError{Path: name, Err: err}
	}

	base := 1
	if program.File != nil {
		base = program.File.Base()
	}

	var calls []*ast.CallExpression
	collectCalls(reflect.ValueOf(program), make(map[nodeKey]bool), &calls)

	requires := make([]requireCall, 0, len(calls))
	for _, call := range calls {
		callee, ok := call.Callee.(*ast.Identifier)
		if !ok || callee.Name != "require" || len(call.ArgumentList) != 1 {
			continue
		}
		lit, ok := call.ArgumentList[0].(*ast.StringLiteral)
		if !ok {
			continue
		}

		start, end := int(lit.Idx0())-base, int(lit.Idx1())-base
		if start < 0 || end > len(code) || start >= end {
			return nil, &ModuleParseError{
				Path: name,
				Err:  fmt.Errorf("require argument at %d:%d is outside the module", start, end),
			}
		}
		requires = append(requires, requireCall{
			Specifier: lit.Value.String(),
			Start:     start,
			End:       end,
		})
	}

	sort.Slice(requires, func(i, j int) bool {
		return requires[i].Start < requires[j].Start
	})
	return requires, nil
}

type nodeKey struct {
	typ reflect.Type
	ptr uintptr
}

// collectCalls walks the syntax tree below v and gathers every call
// expression. Only values from the ast package are descended into; hoisted
// declaration lists repeat nodes, so each node is visited once.
func collectCalls(v reflect.Value, seen map[nodeKey]bool, out *[]*ast.CallExpression) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			collectCalls(v.Elem(), seen, out)
		}

	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		elem := v.Type().Elem()
		if elem.Kind() != reflect.Struct || elem.PkgPath() != astPackage {
			return
		}
		key := nodeKey{typ: v.Type(), ptr: v.Pointer()}
		if seen[key] {
			return
		}
		seen[key] = true

		if v.Type() == callExpressionType && v.CanInterface() {
			*out = append(*out, v.Interface().(*ast.CallExpression))
		}
		collectCalls(v.Elem(), seen, out)

	case reflect.Struct:
		if v.Type().PkgPath() != astPackage {
			return
		}
		for i := 0; i < v.NumField(); i++ {
			collectCalls(v.Field(i), seen, out)
		}

	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			collectCalls(v.Index(i), seen, out)
		}
	}
}
