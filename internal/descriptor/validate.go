package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// Validate checks descriptor fields. The entry file must exist.
func (d *Descriptor) Validate() error {
	switch d.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return d.invalid("mode", fmt.Sprintf("unsupported mode: %q (must be one of: development, production)", d.Mode))
	}

	if d.Entry == "" {
		return d.invalid("entry", "entry is required")
	}
	if info, err := os.Stat(d.EntryPath()); err != nil || info.IsDir() {
		return d.invalid("entry", fmt.Sprintf("entry file %s does not exist", d.EntryPath()))
	}

	if d.Externals.ModulesDir == "" {
		return d.invalid("externals.modules_dir", "modules_dir is required")
	}

	if d.Output.Path == "" {
		return d.invalid("output.path", "output path is required")
	}
	if d.Output.Filename == "" {
		return d.invalid("output.filename", "output filename is required")
	}
	if strings.ContainsAny(d.Output.Filename, `/\`) {
		return d.invalid("output.filename", "output filename must not contain a directory")
	}
	if d.Output.LibraryTarget != LibraryTargetUMD {
		return d.invalid("output.library_target", fmt.Sprintf("unsupported library target: %q (must be umd)", d.Output.LibraryTarget))
	}
	if d.Output.Library == "" {
		return d.invalid("output.library", "library name is required")
	}
	if d.Output.GlobalObject == "" {
		return d.invalid("output.global_object", "global object is required")
	}

	if len(d.Resolve.Extensions) == 0 {
		return d.invalid("resolve.extensions", "at least one extension is required")
	}
	for _, ext := range d.Resolve.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return d.invalid("resolve.extensions", fmt.Sprintf("extension %q must start with a dot", ext))
		}
	}

	for i, rule := range d.Rules {
		if err := d.validateRule(i, rule); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(d.Define))
	for i, def := range d.Define {
		if err := d.validateDefine(i, def); err != nil {
			return err
		}
		if seen[def.Identifier] {
			return d.invalid(fmt.Sprintf("define[%d].identifier", i), fmt.Sprintf("duplicate identifier %q", def.Identifier))
		}
		seen[def.Identifier] = true
	}

	return nil
}

func (d *Descriptor) validateRule(i int, rule Rule) error {
	field := fmt.Sprintf("rules[%d]", i)

	if rule.Test == "" {
		return d.invalid(field+".test", "test pattern is required")
	}
	if _, err := regexp.Compile(rule.Test); err != nil {
		return d.invalid(field+".test", fmt.Sprintf("invalid pattern: %v", err))
	}
	if rule.Exclude != "" {
		if _, err := regexp.Compile(rule.Exclude); err != nil {
			return d.invalid(field+".exclude", fmt.Sprintf("invalid pattern: %v", err))
		}
	}

	switch rule.Transform {
	case TransformTypeScript, TransformJavaScript, TransformJSON, TransformWasm:
	default:
		return d.invalid(field+".transform", fmt.Sprintf("unknown transform: %q (must be one of: typescript, javascript, json, wasm)", rule.Transform))
	}

	if rule.Type != "" && rule.Type != ModuleTypeAuto {
		return d.invalid(field+".type", fmt.Sprintf("unsupported module type: %q (must be %s)", rule.Type, ModuleTypeAuto))
	}

	return nil
}

func (d *Descriptor) validateDefine(i int, def Define) error {
	field := fmt.Sprintf("define[%d]", i)

	if !identifierPattern.MatchString(def.Identifier) {
		return d.invalid(field+".identifier", fmt.Sprintf("invalid identifier %q", def.Identifier))
	}

	switch {
	case def.Value == "" && def.File == "":
		return d.invalid(field, "one of value or file is required")
	case def.Value != "" && def.File != "":
		return d.invalid(field, "value and file are mutually exclusive")
	case def.Value != "":
		if !json.Valid([]byte(def.Value)) && !identifierPattern.MatchString(def.Value) {
			return d.invalid(field+".value", "value must be JSON or an identifier")
		}
	}

	return nil
}

func (d *Descriptor) invalid(field, message string) error {
	return &DescriptorValidationError{
		Path:    d.Path(),
		Field:   field,
		Message: message,
	}
}
