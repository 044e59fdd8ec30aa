package resolve

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Externals is the set of package names left out of the bundle.
type Externals struct {
	dir   string
	names map[string]bool
}

// ScanExternals lists the packages installed in dir. Scoped packages are
// recorded as "@scope/name"; ".bin" and other dot entries are skipped. A
// missing dir yields an empty set.
func ScanExternals(dir string, logger *zap.Logger) (*Externals, error) {
	logger = logger.With(zap.String("component", "externals"))

	ext := &Externals{dir: dir, names: make(map[string]bool)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Externals directory does not exist", zap.String("dir", dir))
			return ext, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !isDir(dir, entry) {
			continue
		}

		if !strings.HasPrefix(name, "@") {
			ext.names[name] = true
			continue
		}

		scoped, err := os.ReadDir(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, pkg := range scoped {
			if strings.HasPrefix(pkg.Name(), ".") || !isDir(filepath.Join(dir, name), pkg) {
				continue
			}
			ext.names[name+"/"+pkg.Name()] = true
		}
	}

	logger.Debug("Externals scanned",
		zap.String("dir", dir),
		zap.Int("count", len(ext.names)),
	)

	return ext, nil
}

// isDir follows symlinks, which package managers use for linked packages.
func isDir(parent string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}

// Dir returns the scanned directory.
func (e *Externals) Dir() string {
	return e.dir
}

// Exclude reports whether the package an import specifier refers to is
// external.
func (e *Externals) Exclude(specifier string) bool {
	return e.names[PackageName(specifier)]
}

// Names returns the external package names, sorted.
func (e *Externals) Names() []string {
	names := make([]string, 0, len(e.names))
	for name := range e.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of external packages.
func (e *Externals) Len() int {
	return len(e.names)
}

// PackageName returns the package part of a bare specifier:
// "foo/lib/x" -> "foo", "@scope/pkg/x" -> "@scope/pkg".
func PackageName(specifier string) string {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// IsBare reports whether a specifier names a package rather than a path.
func IsBare(specifier string) bool {
	return !strings.HasPrefix(specifier, "./") &&
		!strings.HasPrefix(specifier, "../") &&
		specifier != "." && specifier != ".." &&
		!filepath.IsAbs(specifier) &&
		!strings.HasPrefix(specifier, "/")
}
