package bundle

import (
	"encoding/json"
	"path/filepath"
)

// Metafile describes a build in the shape of an esbuild metafile.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Rule    string           `json:"rule"`
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	EntryPoint string                  `json:"entryPoint"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// NewMetafile builds the metafile for a result. contextDir makes the output
// key relative, like the input keys.
func NewMetafile(result *Result, contextDir string) *Metafile {
	mf := &Metafile{
		Inputs:  make(map[string]MetafileInput, len(result.Modules)),
		Outputs: make(map[string]MetafileOutput, 1),
	}

	contrib := make(map[string]InputContrib, len(result.Modules))
	for _, m := range result.Modules {
		imports := make([]MetafileImport, 0, len(m.Imports))
		for _, imp := range m.Imports {
			mi := MetafileImport{Path: imp.Key, Kind: "require-call", Original: imp.Specifier}
			if imp.External {
				mi.Path = imp.Specifier
				mi.External = true
				mi.Original = ""
			}
			imports = append(imports, mi)
		}
		mf.Inputs[m.Key] = MetafileInput{Bytes: m.SourceBytes, Imports: imports, Rule: m.Rule}
		contrib[m.Key] = InputContrib{BytesInOutput: len(m.Code)}
	}

	outputImports := make([]MetafileImport, 0, len(result.Externals))
	for _, name := range result.Externals {
		outputImports = append(outputImports, MetafileImport{Path: name, Kind: "require-call", External: true})
	}

	outKey := result.OutputPath
	if rel, err := filepath.Rel(contextDir, result.OutputPath); err == nil {
		outKey = rel
	}

	entry := ""
	if len(result.Modules) > 0 {
		entry = result.Modules[0].Key
	}

	mf.Outputs[filepath.ToSlash(outKey)] = MetafileOutput{
		Bytes:      result.Bytes,
		Inputs:     contrib,
		Imports:    outputImports,
		EntryPoint: entry,
	}

	return mf
}

// WriteMetafile writes the metafile for result as indented JSON.
func WriteMetafile(result *Result, contextDir, path string) error {
	data, err := json.MarshalIndent(NewMetafile(result, contextDir), "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(path, append(data, '\n')); err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	return nil
}
