// Package frontend turns C++ source text into the translation-unit model
// consumed by the optimizer. It wraps tree-sitter's C++ grammar and performs
// the semantic collection the analysis needs: canonical identities for
// declarations, reference lists, preprocessor directive events and macro
// usage records.
package frontend

import (
	"context"
	"fmt"
	"os"

	"github.com/rsalesc/scpd-cpp-optimizer/pkg/tu"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Frontend parses C++ sources into tu.Units.
type Frontend struct {
	parser  *sitter.Parser
	defines map[string]string
}

// Option is a functional option for configuring Frontend.
type Option func(*Frontend)

// WithDefines sets the preprocessor definitions active for conditional
// evaluation, as NAME -> replacement text (empty string for plain -DNAME).
func WithDefines(defines map[string]string) Option {
	return func(f *Frontend) {
		for k, v := range defines {
			f.defines[k] = v
		}
	}
}

// New creates a front end with the C++ grammar loaded.
func New(opts ...Option) *Frontend {
	f := &Frontend{
		parser:  sitter.NewParser(),
		defines: make(map[string]string),
	}
	f.parser.SetLanguage(cpp.GetLanguage())
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close releases parser resources.
func (f *Frontend) Close() {
	f.parser.Close()
}

// ParseFile reads and parses a file into a translation unit.
func (f *Frontend) ParseFile(path string) (*tu.Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return f.Parse(source, path)
}

// Parse parses source text into a translation unit. Parse errors are fatal
// unless they occur inside a template declaration: the original toolchain
// forces parsing of delayed template bodies with diagnostics suppressed, and
// malformed unused generic code must not abort the run.
func (f *Frontend) Parse(source []byte, path string) (*tu.Unit, error) {
	tree, err := f.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if err := checkSyntax(root, source); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c := newCollector(source, path, f.defines)
	c.collectChildren(root, nil)
	if err := c.checkBalance(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.resolveAll()
	return c.unit, nil
}

// checkSyntax walks the tree looking for parse errors. Errors nested in a
// template declaration are suppressed.
func checkSyntax(root *sitter.Node, source []byte) error {
	var firstErr error
	var walk func(n *sitter.Node, inTemplate bool)
	walk = func(n *sitter.Node, inTemplate bool) {
		if firstErr != nil {
			return
		}
		if n.Type() == "template_declaration" {
			inTemplate = true
		}
		if n.IsError() || n.IsMissing() {
			if inTemplate {
				return
			}
			row := n.StartPoint().Row + 1
			col := n.StartPoint().Column + 1
			firstErr = fmt.Errorf("compilation error near %d:%d: %q", row, col, snippet(n, source))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), inTemplate)
		}
	}
	walk(root, false)
	return firstErr
}

func snippet(n *sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if end > uint32(len(source)) {
		end = uint32(len(source))
	}
	if end-start > 40 {
		end = start + 40
	}
	if start >= end {
		return ""
	}
	return string(source[start:end])
}

// nodeText extracts the source text for a node.
func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}
