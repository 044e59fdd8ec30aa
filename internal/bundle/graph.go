package bundle

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/woxQAQ/umdpack/internal/resolve"
	"github.com/woxQAQ/umdpack/internal/transform"
	"go.uber.org/zap"
)

// Module is one bundled file.
type Module struct {
	// ID is the position in discovery order; the entry is 0.
	ID   int
	Path string
	Key  string
	Rule string
	// SourceBytes is the size of the file before transformation.
	SourceBytes int
	// Code is the transformed body with internal requires rewritten to IDs.
	Code    string
	Imports []Import
}

// Import is one require call of a module.
type Import struct {
	Specifier string
	// Key of the bundled target, empty for externals.
	Key      string
	External bool
}

// graph walks the module graph depth-first in source order.
type graph struct {
	resolver   *resolve.Resolver
	classifier *transform.Classifier
	registry   *transform.Registry
	logger     *zap.Logger

	modules   []*Module
	byPath    map[string]*Module
	externals map[string]bool
}

func newGraph(resolver *resolve.Resolver, classifier *transform.Classifier, registry *transform.Registry, logger *zap.Logger) *graph {
	return &graph{
		resolver:   resolver,
		classifier: classifier,
		registry:   registry,
		logger:     logger,
		byPath:     make(map[string]*Module),
		externals:  make(map[string]bool),
	}
}

// visit adds the module at path and, recursively, everything it requires.
// IDs are assigned before recursing, so import cycles terminate.
func (g *graph) visit(ctx context.Context, path string) (*Module, error) {
	if m, ok := g.byPath[path]; ok {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &Module{
		ID:   len(g.modules),
		Path: path,
		Key:  g.classifier.Key(path),
	}
	g.modules = append(g.modules, m)
	g.byPath[path] = m

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceReadError{Path: path, Err: err}
	}
	m.SourceBytes = len(data)

	rule, err := g.classifier.Classify(path)
	if err != nil {
		return nil, err
	}
	m.Rule = rule.Name()

	code, err := g.registry.Transform(ctx, &transform.Source{
		Path: path,
		Key:  m.Key,
		Data: data,
		Rule: rule,
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Module transformed",
		zap.Int("id", m.ID),
		zap.String("file", m.Key),
		zap.String("rule", m.Rule),
	)

	m.Code, err = g.link(ctx, m, code)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// link resolves every static require in code and rewrites bundled targets
// to numeric IDs. External requires keep their specifier.
func (g *graph) link(ctx context.Context, m *Module, code string) (string, error) {
	calls, err := findRequires(m.Path, code)
	if err != nil {
		return "", err
	}
	if len(calls) == 0 {
		return code, nil
	}

	var b strings.Builder
	b.Grow(len(code))
	last := 0

	for _, call := range calls {
		res, err := g.resolver.Resolve(call.Specifier, m.Path)
		if err != nil {
			return "", err
		}

		if res.IsExternal() {
			g.externals[res.External] = true
			m.Imports = append(m.Imports, Import{Specifier: call.Specifier, External: true})
			continue
		}

		dep, err := g.visit(ctx, res.Path)
		if err != nil {
			return "", err
		}
		m.Imports = append(m.Imports, Import{Specifier: call.Specifier, Key: dep.Key})

		b.WriteString(code[last:call.Start])
		b.WriteString(strconv.Itoa(dep.ID))
		last = call.End
	}

	b.WriteString(code[last:])
	return b.String(), nil
}

// externalNames returns the external specifiers seen, sorted.
func (g *graph) externalNames() []string {
	names := make([]string, 0, len(g.externals))
	for name := range g.externals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
