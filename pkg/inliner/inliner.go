// Package inliner flattens a source file and its quoted includes into one
// self-contained translation unit, the form the optimizer analyzes. System
// includes in angle brackets are left untouched.
package inliner

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Inliner resolves and splices quoted #include directives recursively.
// Every file is inlined at most once, so mutually including headers
// terminate the same way include guards would make them.
type Inliner struct {
	includeDirs []string
	visited     map[string]bool
}

func New(includeDirs ...string) *Inliner {
	return &Inliner{
		includeDirs: includeDirs,
		visited:     make(map[string]bool),
	}
}

// InlineFile produces the flattened source for path.
func (in *Inliner) InlineFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := in.splice(abs, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (in *Inliner) splice(abs string, buf *bytes.Buffer) error {
	if in.visited[abs] {
		return nil
	}
	in.visited[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("failed to read include: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		name, quoted := parseInclude(line)
		if name == "" || !quoted {
			if !isPragmaOnce(line) {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			continue
		}
		target, ok := in.resolve(name, filepath.Dir(abs))
		if !ok {
			// Unresolvable quoted includes stay, like system ones.
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		if err := in.splice(target, buf); err != nil {
			return err
		}
	}
	return sc.Err()
}

// resolve searches for a quoted include next to the including file first,
// then through the configured include directories.
func (in *Inliner) resolve(name, fromDir string) (string, bool) {
	dirs := append([]string{fromDir}, in.includeDirs...)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs, true
			}
		}
	}
	return "", false
}

// parseInclude extracts the target of an #include line. The second return
// distinguishes "name" from <name>.
func parseInclude(line string) (string, bool) {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "#") {
		return "", false
	}
	s = strings.TrimSpace(s[1:])
	if !strings.HasPrefix(s, "include") {
		return "", false
	}
	s = strings.TrimSpace(s[len("include"):])
	if len(s) < 2 {
		return "", false
	}
	switch s[0] {
	case '"':
		if end := strings.IndexByte(s[1:], '"'); end >= 0 {
			return s[1 : 1+end], true
		}
	case '<':
		if end := strings.IndexByte(s[1:], '>'); end >= 0 {
			return s[1 : 1+end], false
		}
	}
	return "", false
}

func isPragmaOnce(line string) bool {
	s := strings.TrimSpace(line)
	if !strings.HasPrefix(s, "#") {
		return false
	}
	s = strings.TrimSpace(s[1:])
	return strings.HasPrefix(s, "pragma") && strings.Contains(s, "once")
}
