package descriptor

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
)

// Defines is the compile-time substitution table: identifier to the
// JavaScript expression that replaces every static reference to it.
type Defines map[string]string

// LoadDefines builds the substitution table. File-backed values are
// re-encoded as compact JSON with sorted object keys, so the table does not
// depend on the formatting of the source file.
func (d *Descriptor) LoadDefines() (Defines, error) {
	defines := make(Defines, len(d.Define))

	for _, def := range d.Define {
		if def.File == "" {
			defines[def.Identifier] = def.Value
			continue
		}

		code, err := loadJSONConstant(d.abs(def.File))
		if err != nil {
			return nil, &DefineLoadError{
				Identifier: def.Identifier,
				File:       d.abs(def.File),
				Err:        err,
			}
		}
		defines[def.Identifier] = code
	}

	return defines, nil
}

func loadJSONConstant(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return "", err
	}

	out, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Substitute returns the expression replacing identifier, if it is defined.
func (d Defines) Substitute(identifier string) (string, bool) {
	value, ok := d[identifier]
	return value, ok
}

// Identifiers returns the defined identifiers, sorted.
func (d Defines) Identifiers() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
