package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/woxQAQ/umdpack/internal/descriptor"
)

// Rule is a compiled transform rule.
type Rule struct {
	// Index is the position in the descriptor, -1 for default handling.
	Index   int
	Test    *regexp.Regexp
	Exclude *regexp.Regexp
	Kind    descriptor.TransformKind
	Type    string
}

// Name identifies the rule in diagnostics.
func (r *Rule) Name() string {
	if r.Index < 0 {
		return fmt.Sprintf("default(%s)", r.Kind)
	}
	return fmt.Sprintf("rules[%d](%s)", r.Index, r.Kind)
}

// Matches reports whether the rule applies to a slash-separated path.
func (r *Rule) Matches(path string) bool {
	return r.Test.MatchString(path) && !r.excludes(path)
}

func (r *Rule) excludes(path string) bool {
	return r.Exclude != nil && r.Exclude.MatchString(path)
}

var defaultRules = map[string]descriptor.TransformKind{
	".js":   descriptor.TransformJavaScript,
	".mjs":  descriptor.TransformJavaScript,
	".cjs":  descriptor.TransformJavaScript,
	".json": descriptor.TransformJSON,
}

// Classifier selects the rule for each file. Patterns are matched against
// the file path relative to the context directory, slash-separated, so
// where the project is checked out does not change which rule applies.
type Classifier struct {
	dir   string
	rules []*Rule
}

// NewClassifier compiles the rules of d in declared order.
func NewClassifier(d *descriptor.Descriptor) (*Classifier, error) {
	rules := make([]*Rule, 0, len(d.Rules))
	for i, r := range d.Rules {
		test, err := regexp.Compile(r.Test)
		if err != nil {
			return nil, fmt.Errorf("rules[%d].test: %w", i, err)
		}
		rule := &Rule{Index: i, Test: test, Kind: r.Transform, Type: r.Type}
		if r.Exclude != "" {
			if rule.Exclude, err = regexp.Compile(r.Exclude); err != nil {
				return nil, fmt.Errorf("rules[%d].exclude: %w", i, err)
			}
		}
		rules = append(rules, rule)
	}
	return &Classifier{dir: d.Dir(), rules: rules}, nil
}

// Key returns the slash-separated path of file relative to the context
// directory.
func (c *Classifier) Key(path string) string {
	rel, err := filepath.Rel(c.dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Match returns the first rule matching path, if any.
func (c *Classifier) Match(path string) (*Rule, bool) {
	key := c.Key(path)
	for _, rule := range c.rules {
		if rule.Matches(key) {
			return rule, true
		}
	}
	return nil, false
}

// Classify returns the rule for path: the first matching rule, else default
// handling by extension. A file with neither is an UnhandledModuleError.
func (c *Classifier) Classify(path string) (*Rule, error) {
	if rule, ok := c.Match(path); ok {
		return rule, nil
	}

	key := c.Key(path)
	ext := strings.ToLower(filepath.Ext(path))

	// A rule that wants this file but excludes it wins over the default:
	// the file was deliberately kept out.
	for _, rule := range c.rules {
		if rule.Test.MatchString(key) && rule.excludes(key) {
			return nil, &UnhandledModuleError{Path: path, ExcludedBy: rule.Name()}
		}
	}

	if kind, ok := defaultRules[ext]; ok {
		return &Rule{Index: -1, Kind: kind}, nil
	}

	return nil, &UnhandledModuleError{Path: path}
}
