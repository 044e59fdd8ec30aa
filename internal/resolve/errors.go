package resolve

import (
	"fmt"
	"strings"
)

// ResolutionError occurs when an import specifier matches no file.
type ResolutionError struct {
	Specifier string
	// Importer is the file containing the import, empty for the entry.
	Importer string
	// Tried lists the candidate paths checked, in order.
	Tried []string
}

func (e *ResolutionError) Error() string {
	from := "entry"
	if e.Importer != "" {
		from = e.Importer
	}
	if len(e.Tried) == 0 {
		return fmt.Sprintf("cannot resolve '%s' from %s", e.Specifier, from)
	}
	return fmt.Sprintf("cannot resolve '%s' from %s (tried: %s)",
		e.Specifier, from, strings.Join(e.Tried, ", "))
}
