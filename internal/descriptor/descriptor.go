// Package descriptor defines the build descriptor: the static configuration
// that tells the bundler which entry to start from, which dependencies stay
// external, how each file type is transformed and where the UMD artifact is
// written.
package descriptor

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the descriptor file name looked up when none is given.
const DefaultFile = "build.yaml"

// Mode controls optimization of the emitted artifact.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// TransformKind names the transform a rule routes matching files through.
type TransformKind string

const (
	TransformTypeScript TransformKind = "typescript"
	TransformJavaScript TransformKind = "javascript"
	TransformJSON       TransformKind = "json"
	TransformWasm       TransformKind = "wasm"
)

// ModuleTypeAuto marks a rule whose transform output is an ordinary
// JavaScript module.
const ModuleTypeAuto = "javascript/auto"

// LibraryTargetUMD is the only supported library target.
const LibraryTargetUMD = "umd"

// Descriptor is the build descriptor. Relative paths are resolved against
// the directory holding the descriptor file.
type Descriptor struct {
	Mode      Mode      `yaml:"mode"`
	Entry     string    `yaml:"entry"`
	Externals Externals `yaml:"externals"`
	Output    Output    `yaml:"output"`
	Resolve   Resolve   `yaml:"resolve"`
	Rules     []Rule    `yaml:"rules"`
	Define    []Define  `yaml:"define"`

	dir  string
	path string
}

// Externals configures which dependencies are left out of the bundle.
type Externals struct {
	// Every package directory found here is external.
	ModulesDir string `yaml:"modules_dir"`
}

// Output configures the emitted artifact.
type Output struct {
	Path          string `yaml:"path"`
	Filename      string `yaml:"filename"`
	LibraryTarget string `yaml:"library_target"`
	Library       string `yaml:"library"`
	GlobalObject  string `yaml:"global_object"`
}

// Resolve configures import resolution.
type Resolve struct {
	Extensions []string `yaml:"extensions"`
}

// Rule routes files whose path matches Test, and not Exclude, through a
// transform. Test and Exclude are regular expressions over the file path
// relative to the descriptor's directory, slash-separated.
type Rule struct {
	Test      string        `yaml:"test"`
	Transform TransformKind `yaml:"transform"`
	Exclude   string        `yaml:"exclude,omitempty"`
	Type      string        `yaml:"type,omitempty"`
}

// Define is one compile-time constant. Exactly one of Value and File is set:
// Value is substituted verbatim, File names a JSON document whose content is
// substituted.
type Define struct {
	Identifier string `yaml:"identifier"`
	Value      string `yaml:"value,omitempty"`
	File       string `yaml:"file,omitempty"`
}

// Default returns the zokrates-js descriptor rooted at dir.
func Default(dir string) *Descriptor {
	return &Descriptor{
		Mode:  ModeProduction,
		Entry: "index.js",
		Externals: Externals{
			ModulesDir: "./node_modules",
		},
		Output: Output{
			Path:          filepath.Join("dist", "umd"),
			Filename:      "index.js",
			LibraryTarget: LibraryTargetUMD,
			Library:       "zokrates-js",
			GlobalObject:  "this",
		},
		Resolve: Resolve{
			Extensions: []string{".js", ".ts", ".json"},
		},
		Rules: []Rule{
			{Test: `\.ts$`, Transform: TransformTypeScript, Exclude: `(node_modules|test)`},
			{Test: `\.wasm$`, Transform: TransformWasm, Type: ModuleTypeAuto},
		},
		Define: []Define{
			{Identifier: "pkg", File: "./package.json"},
			{Identifier: "window", Value: "{}"},
		},
		dir: filepath.Clean(dir),
	}
}

// ParseDescriptor reads and validates the descriptor file at path. Fields
// the file leaves out keep their Default values.
func ParseDescriptor(path string) (*Descriptor, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &DescriptorNotFoundError{Path: path, Err: err}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &DescriptorNotFoundError{Path: absPath, Err: err}
	}

	d := Default(filepath.Dir(absPath))
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, &DescriptorParseError{Path: absPath, Err: err}
	}
	d.path = absPath

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

// Path returns the descriptor file path, or the context directory for a
// descriptor that was not read from a file.
func (d *Descriptor) Path() string {
	if d.path == "" {
		return d.dir
	}
	return d.path
}

// Dir returns the context directory relative paths resolve against.
func (d *Descriptor) Dir() string {
	return d.dir
}

// EntryPath returns the absolute entry file path.
func (d *Descriptor) EntryPath() string {
	return d.abs(d.Entry)
}

// ModulesDir returns the absolute externals resolution directory.
func (d *Descriptor) ModulesDir() string {
	return d.abs(d.Externals.ModulesDir)
}

// OutputDir returns the absolute output directory.
func (d *Descriptor) OutputDir() string {
	return d.abs(d.Output.Path)
}

// OutputFile returns the absolute path of the artifact.
func (d *Descriptor) OutputFile() string {
	return filepath.Join(d.OutputDir(), d.Output.Filename)
}

// Production reports whether the artifact is minified.
func (d *Descriptor) Production() bool {
	return d.Mode == ModeProduction
}

func (d *Descriptor) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(d.dir, p)
}
