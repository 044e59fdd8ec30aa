package bundle

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindRequires(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "static_calls_in_order",
			code: `var a = require("./a"); var b = __toESM(require('./b'));`,
			want: []string{"./a", "./b"},
		},
		{
			name: "string_literal",
			code: `exports.help = 'call require("./missing") to load';`,
		},
		{
			name: "template_literal",
			code: "exports.s = `x require(\"./b\") y`;",
		},
		{
			name: "regular_expression",
			code: `exports.re = /require\("\.\/c"\)/;`,
		},
		{
			name: "comments",
			code: "/*! require(\"./d\") */\n// require(\"./e\")\nvar f = require(\"./f\");",
			want: []string{"./f"},
		},
		{
			name: "member_and_dynamic_calls",
			code: `obj.require("./g"); require(name); require("./h", 1);`,
		},
		{
			name: "escaped_specifiers",
			code: `require('./it\'s'); require("./q\"d"); require('./tab\\t');`,
			want: []string{"./it's", `./q"d`, `./tab\t`},
		},
		{
			name: "nested_functions",
			code: `function load() { return function () { return require("./i"); }; }`,
			want: []string{"./i"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := findRequires("test.js", tt.code)
			if err != nil {
				t.Fatalf("findRequires() failed: %v", err)
			}

			var got []string
			for _, call := range calls {
				got = append(got, call.Specifier)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("specifiers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindRequiresOffsets(t *testing.T) {
	code := `var s = "require('./x')"; var lib = require("./lib");`

	calls, err := findRequires("test.js", code)
	if err != nil {
		t.Fatalf("findRequires() failed: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if got := code[calls[0].Start:calls[0].End]; got != `"./lib"` {
		t.Errorf("argument span = %s, want \"./lib\"", got)
	}
}

func TestFindRequiresSyntaxError(t *testing.T) {
	_, err := findRequires("broken.js", `var = ;`)

	var parseErr *ModuleParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("findRequires() error = %v, want ModuleParseError", err)
	}
	if parseErr.Path != "broken.js" {
		t.Errorf("Path = %s, want broken.js", parseErr.Path)
	}
}
